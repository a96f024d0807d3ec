package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
)

// Carts owns the (user, product) -> quantity mapping. A unique index on
// (user_id, product_id) makes merge-on-add the only way a repeat add can
// land.
type Carts struct {
	products Products
}

func NewCarts() *Carts { return &Carts{} }

const (
	AddStatusSuccess = "success"
	AddStatusWarning = "warning"
)

type AddResult struct {
	Status  string           `json:"status"`
	Message string           `json:"message"`
	Item    *models.CartItem `json:"item"`
}

// AddToCart merges delta units of a product into the user's cart.
//
// The line is clamped to the product's current availability rather than
// rejected when the requested total exceeds stock; a clamped write
// reports AddStatusWarning. A product with zero stock can neither start
// a line nor top one up: both paths return ErrOutOfStock and write
// nothing, since the clamp would otherwise drive the line to zero. The
// product row is locked for the duration so the clamp decision and the
// write see the same availability.
func (c *Carts) AddToCart(ctx context.Context, db *sql.DB, userID, productID int64, delta int) (*AddResult, error) {
	if delta < 1 {
		return nil, fmt.Errorf("delta quantity must be positive, got %d", delta)
	}

	var result *AddResult

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		product, err := c.products.GetForUpdate(ctx, tx, productID)
		if err != nil {
			return err
		}
		if product.StockQuantity < 1 {
			return database.ErrOutOfStock
		}

		existing, err := findCartItem(ctx, tx, userID, productID)
		if err != nil && !errors.Is(err, database.ErrCartItemNotFound) {
			return err
		}

		if existing == nil {
			qty := delta
			status, message := AddStatusSuccess, "Product added to cart"
			if qty > product.StockQuantity {
				qty = product.StockQuantity
				status, message = AddStatusWarning, "Quantity adjusted to available stock"
			}

			item, err := insertCartItem(ctx, tx, userID, productID, qty)
			if err != nil {
				return err
			}
			item.Product = product

			result = &AddResult{Status: status, Message: message, Item: item}
			return nil
		}

		qty := existing.Quantity + delta
		status, message := AddStatusSuccess, "Product quantity updated in cart"
		if qty > product.StockQuantity {
			qty = product.StockQuantity
			status, message = AddStatusWarning, "Quantity adjusted to available stock"
		}

		if err := setCartItemQuantity(ctx, tx, existing.ID, qty); err != nil {
			return err
		}
		existing.Quantity = qty
		existing.Product = product

		result = &AddResult{Status: status, Message: message, Item: existing}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// UpdateQuantity sets an existing line to qty. Quantities below one are
// a caller bug; removal goes through RemoveItem.
func (Carts) UpdateQuantity(ctx context.Context, q database.Querier, itemID int64, qty int) error {
	if qty < 1 {
		return fmt.Errorf("quantity must be positive, got %d", qty)
	}

	result, err := q.ExecContext(ctx,
		`UPDATE cart_items
		 SET quantity = $1, updated_at = NOW()
		 WHERE id = $2`,
		qty, itemID)
	if err != nil {
		return fmt.Errorf("update cart item quantity: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrCartItemNotFound
	}

	return nil
}

func (Carts) RemoveItem(ctx context.Context, q database.Querier, itemID int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrCartItemNotFound
	}

	return nil
}

// ClearUserCart deletes every line of the user's cart and returns how
// many were removed. Clearing an already-empty cart is a no-op, not an
// error.
func (Carts) ClearUserCart(ctx context.Context, q database.Querier, userID int64) (int64, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// ItemsForUser returns the user's cart lines, each joined with the
// current product row so callers always price against live data.
func (Carts) ItemsForUser(ctx context.Context, q database.Querier, userID int64) ([]models.CartItem, error) {
	query := `
		SELECT ci.id, ci.user_id, ci.product_id, ci.quantity, ci.created_at, ci.updated_at,
		       p.id, p.sku, p.name, p.description, p.price, p.stock_quantity, p.created_at, p.updated_at
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.id`

	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	var items []models.CartItem
	for rows.Next() {
		var item models.CartItem
		var product models.Product
		err := rows.Scan(
			&item.ID,
			&item.UserID,
			&item.ProductID,
			&item.Quantity,
			&item.CreatedAt,
			&item.UpdatedAt,
			&product.ID,
			&product.SKU,
			&product.Name,
			&product.Description,
			&product.Price,
			&product.StockQuantity,
			&product.CreatedAt,
			&product.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		item.Product = &product
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func (Carts) GetItem(ctx context.Context, q database.Querier, itemID int64) (*models.CartItem, error) {
	item := &models.CartItem{}

	err := q.QueryRowContext(ctx,
		`SELECT id, user_id, product_id, quantity, created_at, updated_at
		 FROM cart_items
		 WHERE id = $1`,
		itemID).Scan(
		&item.ID,
		&item.UserID,
		&item.ProductID,
		&item.Quantity,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCartItemNotFound
		}
		return nil, fmt.Errorf("get cart item: %w", err)
	}

	return item, nil
}

// UserOwnsCartItem is the ownership check the authorization layer runs
// before allowing a mutation. A missing item is simply not owned.
func (Carts) UserOwnsCartItem(ctx context.Context, q database.Querier, itemID, userID int64) (bool, error) {
	var owns bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM cart_items
			WHERE id = $1 AND user_id = $2
		)`,
		itemID, userID).Scan(&owns)
	if err != nil {
		return false, fmt.Errorf("check cart item ownership: %w", err)
	}
	return owns, nil
}

func findCartItem(ctx context.Context, q database.Querier, userID, productID int64) (*models.CartItem, error) {
	item := &models.CartItem{}

	err := q.QueryRowContext(ctx,
		`SELECT id, user_id, product_id, quantity, created_at, updated_at
		 FROM cart_items
		 WHERE user_id = $1 AND product_id = $2`,
		userID, productID).Scan(
		&item.ID,
		&item.UserID,
		&item.ProductID,
		&item.Quantity,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCartItemNotFound
		}
		return nil, fmt.Errorf("find cart item: %w", err)
	}

	return item, nil
}

func insertCartItem(ctx context.Context, q database.Querier, userID, productID int64, qty int) (*models.CartItem, error) {
	item := &models.CartItem{}

	err := q.QueryRowContext(ctx,
		`INSERT INTO cart_items (user_id, product_id, quantity, created_at, updated_at)
		 VALUES ($1, $2, $3, NOW(), NOW())
		 RETURNING id, user_id, product_id, quantity, created_at, updated_at`,
		userID, productID, qty).Scan(
		&item.ID,
		&item.UserID,
		&item.ProductID,
		&item.Quantity,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert cart item: %w", err)
	}

	return item, nil
}

func setCartItemQuantity(ctx context.Context, q database.Querier, itemID int64, qty int) error {
	_, err := q.ExecContext(ctx,
		`UPDATE cart_items
		 SET quantity = $1, updated_at = NOW()
		 WHERE id = $2`,
		qty, itemID)
	if err != nil {
		return fmt.Errorf("set cart item quantity: %w", err)
	}
	return nil
}
