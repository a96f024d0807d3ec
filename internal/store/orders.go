package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/shopspring/decimal"
)

// Orders is the append-only order ledger. Orders and their items are
// written once; the only mutation ever applied afterwards is a status
// transition.
type Orders struct{}

func NewOrders() *Orders { return &Orders{} }

func newOrderNumber() string {
	return "ORD-" + uuid.NewString()
}

func (Orders) CreateOrder(ctx context.Context, q database.Querier, userID int64, total decimal.Decimal, status string) (*models.Order, error) {
	if !models.ValidOrderStatus(status) {
		return nil, fmt.Errorf("unknown order status %q, want one of %s",
			status, strings.Join(models.OrderStatuses(), ", "))
	}

	order := &models.Order{}

	err := q.QueryRowContext(ctx,
		`INSERT INTO orders (user_id, order_number, status, total_amount, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())
		 RETURNING id, user_id, order_number, status, total_amount, created_at, updated_at`,
		userID, newOrderNumber(), status, total).Scan(
		&order.ID,
		&order.UserID,
		&order.OrderNumber,
		&order.Status,
		&order.TotalAmount,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	return order, nil
}

// AddOrderItem appends a line to an order, snapshotting the unit price.
// The subtotal is computed here, in decimal, so the stored line always
// satisfies quantity * unit_price == subtotal.
func (Orders) AddOrderItem(ctx context.Context, q database.Querier, orderID, productID int64, qty int, unitPrice decimal.Decimal) (*models.OrderItem, error) {
	subtotal := unitPrice.Mul(decimal.NewFromInt(int64(qty))).Round(2)

	item := &models.OrderItem{}

	err := q.QueryRowContext(ctx,
		`INSERT INTO order_items (order_id, product_id, quantity, unit_price, subtotal, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 RETURNING id, order_id, product_id, quantity, unit_price, subtotal, created_at`,
		orderID, productID, qty, unitPrice, subtotal).Scan(
		&item.ID,
		&item.OrderID,
		&item.ProductID,
		&item.Quantity,
		&item.UnitPrice,
		&item.Subtotal,
		&item.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("add order item: %w", err)
	}

	return item, nil
}

// GetOrder loads an order with its items eagerly resolved, including
// the current product name for display.
func (o Orders) GetOrder(ctx context.Context, q database.Querier, id int64) (*models.Order, error) {
	order := &models.Order{}

	err := q.QueryRowContext(ctx,
		`SELECT id, user_id, order_number, status, total_amount, created_at, updated_at
		 FROM orders
		 WHERE id = $1`,
		id).Scan(
		&order.ID,
		&order.UserID,
		&order.OrderNumber,
		&order.Status,
		&order.TotalAmount,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	itemsByOrder, err := o.loadItems(ctx, q, []int64{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = itemsByOrder[order.ID]

	return order, nil
}

// ListUserOrders pages through a user's order history, most recent
// first with ascending id as the deterministic tiebreak. Items are
// eager-loaded for every order on the page.
func (o Orders) ListUserOrders(ctx context.Context, q database.Querier, userID int64, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	offset := (page - 1) * pageSize
	rows, err := q.QueryContext(ctx,
		`SELECT id, user_id, order_number, status, total_amount, created_at, updated_at
		 FROM orders
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id ASC
		 LIMIT $2 OFFSET $3`,
		userID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}

	if err := o.attachItems(ctx, q, orders); err != nil {
		return nil, err
	}

	return NewOffsetPage(orders, total, page, pageSize), nil
}

// ListUserOrdersCursor is the keyset variant for long histories, one
// page per (created_at, id) cursor step.
func (o Orders) ListUserOrdersCursor(ctx context.Context, q database.Querier, userID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, user_id, order_number, status, total_amount, created_at, updated_at
		 FROM orders
		 WHERE user_id = $1
		   AND (created_at, id) < ($2, $3)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $4`,
		userID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	if err := o.attachItems(ctx, q, orders); err != nil {
		return nil, err
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// UpdateStatus applies a status transition. Orders only ever move out
// of pending; completed and rejected are terminal.
func (Orders) UpdateStatus(ctx context.Context, q database.Querier, orderID int64, status string) error {
	if status != models.OrderStatusCompleted && status != models.OrderStatusRejected {
		return database.ErrInvalidTransition
	}

	result, err := q.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1, updated_at = NOW()
		 WHERE id = $2
		   AND status = $3`,
		status, orderID, models.OrderStatusPending)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var exists bool
		if err := q.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
			return fmt.Errorf("check order exists: %w", err)
		}
		if !exists {
			return database.ErrOrderNotFound
		}
		return database.ErrInvalidTransition
	}

	return nil
}

// OrdersOnDate returns every order created on the given calendar day,
// items included. Feeds the daily sales report.
func (o Orders) OrdersOnDate(ctx context.Context, q database.Querier, day time.Time) ([]models.Order, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	rows, err := q.QueryContext(ctx,
		`SELECT id, user_id, order_number, status, total_amount, created_at, updated_at
		 FROM orders
		 WHERE created_at >= $1 AND created_at < $2
		 ORDER BY created_at, id`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("list orders by date: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}

	if err := o.attachItems(ctx, q, orders); err != nil {
		return nil, err
	}

	return orders, nil
}

func scanOrders(rows *sql.Rows) ([]models.Order, error) {
	var orders []models.Order
	for rows.Next() {
		var order models.Order
		err := rows.Scan(
			&order.ID,
			&order.UserID,
			&order.OrderNumber,
			&order.Status,
			&order.TotalAmount,
			&order.CreatedAt,
			&order.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

func (o Orders) attachItems(ctx context.Context, q database.Querier, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	for i, order := range orders {
		ids[i] = order.ID
	}

	itemsByOrder, err := o.loadItems(ctx, q, ids)
	if err != nil {
		return err
	}

	for i := range orders {
		orders[i].Items = itemsByOrder[orders[i].ID]
	}

	return nil
}

func (Orders) loadItems(ctx context.Context, q database.Querier, orderIDs []int64) (map[int64][]models.OrderItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT oi.id, oi.order_id, oi.product_id, COALESCE(p.name, ''), oi.quantity, oi.unit_price, oi.subtotal, oi.created_at
		 FROM order_items oi
		 LEFT JOIN products p ON p.id = oi.product_id
		 WHERE oi.order_id = ANY($1)
		 ORDER BY oi.order_id, oi.id`,
		pq.Array(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	itemsByOrder := make(map[int64][]models.OrderItem)
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		itemsByOrder[item.OrderID] = append(itemsByOrder[item.OrderID], item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return itemsByOrder, nil
}
