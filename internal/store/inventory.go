package store

import (
	"context"
	"fmt"

	"github.com/safar/storefront/internal/database"
)

// Inventory owns per-product availability. Decrements are conditional
// updates, never read-then-write: two checkouts racing for the same
// stock serialize on the row and at most one wins the last units.
type Inventory struct{}

func NewInventory() *Inventory { return &Inventory{} }

// HasSufficientStock reports whether the product currently has at least
// qty units. A product that does not exist has no stock.
func (Inventory) HasSufficientStock(ctx context.Context, q database.Querier, productID int64, qty int) (bool, error) {
	var ok bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM products
			WHERE id = $1 AND stock_quantity >= $2
		)`,
		productID, qty).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check stock: %w", err)
	}
	return ok, nil
}

// DecreaseStock subtracts qty from the product's availability. The
// update only matches rows that can absorb the full quantity, so stock
// never goes negative, not even transiently; an unmatched update means
// insufficient stock and leaves the row untouched.
func (Inventory) DecreaseStock(ctx context.Context, q database.Querier, productID int64, qty int) error {
	result, err := q.ExecContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock_quantity >= $1`,
		qty, productID)
	if err != nil {
		return fmt.Errorf("decrease stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrInsufficientStock
	}

	return nil
}

// IncreaseStock adds qty back unconditionally (restocking). Not part of
// the checkout path.
func (Inventory) IncreaseStock(ctx context.Context, q database.Querier, productID int64, qty int) error {
	result, err := q.ExecContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity + $1,
		     updated_at = NOW()
		 WHERE id = $2`,
		qty, productID)
	if err != nil {
		return fmt.Errorf("increase stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}
