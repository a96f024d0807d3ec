// Package checkout converts a user's mutable cart into an immutable
// order. The whole conversion (stock decrements, order row, order
// items, cart clear) commits as one transaction: no observer ever sees
// an order without matching stock decrements, or stock decremented
// without an order.
package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/shopspring/decimal"
)

// CartStore is the slice of the cart repository the workflow consumes.
type CartStore interface {
	ItemsForUser(ctx context.Context, q database.Querier, userID int64) ([]models.CartItem, error)
	ClearUserCart(ctx context.Context, q database.Querier, userID int64) (int64, error)
}

// InventoryLedger reserves stock. DecreaseStock must be conditional:
// it fails without mutating when availability cannot absorb qty.
type InventoryLedger interface {
	DecreaseStock(ctx context.Context, q database.Querier, productID int64, qty int) error
}

// OrderLedger appends finalized orders and their lines.
type OrderLedger interface {
	CreateOrder(ctx context.Context, q database.Querier, userID int64, total decimal.Decimal, status string) (*models.Order, error)
	AddOrderItem(ctx context.Context, q database.Querier, orderID, productID int64, qty int, unitPrice decimal.Decimal) (*models.OrderItem, error)
}

// TxRunner executes fn atomically: every write fn issues through the
// Querier commits together or not at all.
type TxRunner func(ctx context.Context, fn func(q database.Querier) error) error

type Result struct {
	Order *models.Order   `json:"order"`
	Total decimal.Decimal `json:"total"`
}

type Validation struct {
	Valid     bool            `json:"valid"`
	Shortages []StockShortage `json:"errors"`
}

type Service struct {
	q         database.Querier
	carts     CartStore
	inventory InventoryLedger
	orders    OrderLedger
	runTx     TxRunner
	log       zerolog.Logger
}

// NewService wires the workflow onto a live database. The checkout
// transaction runs serializable and retries serialization conflicts.
func NewService(db *sql.DB, carts CartStore, inventory InventoryLedger, orders OrderLedger, log zerolog.Logger) *Service {
	return &Service{
		q:         db,
		carts:     carts,
		inventory: inventory,
		orders:    orders,
		runTx: func(ctx context.Context, fn func(q database.Querier) error) error {
			return database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
				return fn(tx)
			})
		},
		log: log,
	}
}

// ProcessCheckout turns the user's cart into a completed order.
//
// The cart is validated twice: once up front so the common failure
// (stale cart, stock sold out since the items were added) is cheap and
// carries full detail, and once more inside the transaction, because
// stock can change between the two reads. Prices are taken from the
// in-transaction read, so the order reflects catalog prices at commit
// time. Either every line commits or nothing does; on failure the cart
// is left exactly as it was.
func (s *Service) ProcessCheckout(ctx context.Context, userID int64) (*Result, error) {
	items, err := s.carts.ItemsForUser(ctx, s.q, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: load cart: %v", ErrCheckoutFailed, err)
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	if shortages := findShortages(items); len(shortages) > 0 {
		return nil, &InsufficientStockError{Shortages: shortages}
	}

	var (
		order *models.Order
		total decimal.Decimal
	)

	err = s.runTx(ctx, func(q database.Querier) error {
		lines, err := s.carts.ItemsForUser(ctx, q, userID)
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		// Stock may have moved since the preflight; collect shortages
		// from in-transaction reads so a lost race still reports full
		// detail instead of a bare failure.
		if shortages := findShortages(lines); len(shortages) > 0 {
			return &InsufficientStockError{Shortages: shortages}
		}

		total = decimal.Zero
		for _, line := range lines {
			if err := s.inventory.DecreaseStock(ctx, q, line.ProductID, line.Quantity); err != nil {
				return fmt.Errorf("reserve %d of product %d: %w", line.Quantity, line.ProductID, err)
			}
			lineTotal := line.Product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(2)
			total = total.Add(lineTotal)
		}

		order, err = s.orders.CreateOrder(ctx, q, userID, total, models.OrderStatusCompleted)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, line := range lines {
			item, err := s.orders.AddOrderItem(ctx, q, order.ID, line.ProductID, line.Quantity, line.Product.Price)
			if err != nil {
				return fmt.Errorf("add order item: %w", err)
			}
			order.Items = append(order.Items, *item)
		}

		if _, err := s.carts.ClearUserCart(ctx, q, userID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}

		return nil
	})
	if err != nil {
		var shortage *InsufficientStockError
		switch {
		case errors.Is(err, ErrEmptyCart):
			return nil, ErrEmptyCart
		case errors.As(err, &shortage):
			s.log.Info().
				Int64("user_id", userID).
				Int("shortages", len(shortage.Shortages)).
				Msg("checkout rejected, insufficient stock")
			return nil, shortage
		default:
			s.log.Error().
				Err(err).
				Int64("user_id", userID).
				Msg("checkout aborted, transaction rolled back")
			return nil, fmt.Errorf("%w: %v", ErrCheckoutFailed, err)
		}
	}

	s.log.Info().
		Int64("user_id", userID).
		Int64("order_id", order.ID).
		Str("total", total.StringFixed(2)).
		Msg("checkout completed")

	return &Result{Order: order, Total: total}, nil
}

// ValidateCart is the read-only preflight the cart UI calls before
// offering checkout. It commits nothing and reports every offending
// line.
func (s *Service) ValidateCart(ctx context.Context, userID int64) (*Validation, error) {
	items, err := s.carts.ItemsForUser(ctx, s.q, userID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	shortages := findShortages(items)
	return &Validation{
		Valid:     len(shortages) == 0,
		Shortages: shortages,
	}, nil
}

// findShortages checks every line against the product availability read
// alongside it. It never stops at the first violation.
func findShortages(items []models.CartItem) []StockShortage {
	var shortages []StockShortage
	for _, item := range items {
		if item.Product == nil {
			shortages = append(shortages, StockShortage{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: 0,
			})
			continue
		}
		if item.Product.StockQuantity < item.Quantity {
			shortages = append(shortages, StockShortage{
				ProductID:   item.ProductID,
				ProductName: item.Product.Name,
				Requested:   item.Quantity,
				Available:   item.Product.StockQuantity,
			})
		}
	}
	return shortages
}
