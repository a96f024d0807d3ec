package integration

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/store"
	"github.com/shopspring/decimal"
)

func TestGetOrderEagerLoadsItems(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	orders := store.NewOrders()

	user := createTestUser(t, db, "orders1@example.com")
	product := createTestProduct(t, db, "ORD-001", "Widget", "50.00", 10)

	order, err := orders.CreateOrder(ctx, db, user.ID, decimal.RequireFromString("100.00"), models.OrderStatusCompleted)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if _, err := orders.AddOrderItem(ctx, db, order.ID, product.ID, 2, decimal.RequireFromString("50.00")); err != nil {
		t.Fatalf("AddOrderItem: %v", err)
	}

	loaded, err := orders.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}

	if len(loaded.Items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(loaded.Items))
	}
	item := loaded.Items[0]
	if item.ProductName != "Widget" {
		t.Errorf("Expected product name Widget, got %q", item.ProductName)
	}
	if !item.UnitPrice.Equal(decimal.RequireFromString("50.00")) {
		t.Errorf("Expected unit price 50.00, got %s", item.UnitPrice)
	}
	if !item.Subtotal.Equal(decimal.RequireFromString("100.00")) {
		t.Errorf("Expected subtotal 100.00, got %s", item.Subtotal)
	}
}

func TestCreateOrderRejectsUnknownStatus(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	orders := store.NewOrders()

	user := createTestUser(t, db, "orders7@example.com")

	_, err := orders.CreateOrder(ctx, db, user.ID, decimal.NewFromInt(10), "shipped")
	if err == nil {
		t.Fatal("Expected error for unknown status")
	}
	if !strings.Contains(err.Error(), models.OrderStatusPending) {
		t.Errorf("Error should name the valid statuses, got %q", err)
	}
}

func TestListUserOrdersNewestFirst(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	orders := store.NewOrders()

	user := createTestUser(t, db, "orders2@example.com")
	other := createTestUser(t, db, "orders3@example.com")

	var created []int64
	for i := 0; i < 5; i++ {
		order, err := orders.CreateOrder(ctx, db, user.ID, decimal.NewFromInt(int64(10*(i+1))), models.OrderStatusCompleted)
		if err != nil {
			t.Fatalf("CreateOrder %d: %v", i, err)
		}
		created = append(created, order.ID)
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := orders.CreateOrder(ctx, db, other.ID, decimal.NewFromInt(999), models.OrderStatusCompleted); err != nil {
		t.Fatalf("CreateOrder for other user: %v", err)
	}

	page, err := orders.ListUserOrders(ctx, db, user.ID, 1, 3)
	if err != nil {
		t.Fatalf("ListUserOrders: %v", err)
	}

	if page.Total != 5 {
		t.Errorf("Expected total 5, got %d", page.Total)
	}
	if page.TotalPages != 2 {
		t.Errorf("Expected 2 pages, got %d", page.TotalPages)
	}

	items, ok := page.Items.([]models.Order)
	if !ok {
		t.Fatalf("Unexpected items type %T", page.Items)
	}
	if len(items) != 3 {
		t.Fatalf("Expected 3 orders on page 1, got %d", len(items))
	}
	if items[0].ID != created[4] {
		t.Errorf("Expected newest order %d first, got %d", created[4], items[0].ID)
	}
	for i := 1; i < len(items); i++ {
		if items[i].CreatedAt.After(items[i-1].CreatedAt) {
			t.Error("Orders must be sorted by creation time descending")
		}
	}
}

func TestListUserOrdersCursor(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	orders := store.NewOrders()

	user := createTestUser(t, db, "orders4@example.com")

	for i := 0; i < 5; i++ {
		if _, err := orders.CreateOrder(ctx, db, user.ID, decimal.NewFromInt(int64(i+1)), models.OrderStatusCompleted); err != nil {
			t.Fatalf("CreateOrder %d: %v", i, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	var seen int
	cursor := ""
	for {
		page, err := orders.ListUserOrdersCursor(ctx, db, user.ID, cursor, 2)
		if err != nil {
			t.Fatalf("ListUserOrdersCursor: %v", err)
		}
		items := page.Items.([]models.Order)
		seen += len(items)
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	if seen != 5 {
		t.Errorf("Expected to walk all 5 orders, got %d", seen)
	}
}

func TestUpdateOrderStatusTransitions(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	orders := store.NewOrders()

	user := createTestUser(t, db, "orders5@example.com")

	order, err := orders.CreateOrder(ctx, db, user.ID, decimal.NewFromInt(10), models.OrderStatusPending)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if err := orders.UpdateStatus(ctx, db, order.ID, models.OrderStatusCompleted); err != nil {
		t.Fatalf("UpdateStatus pending->completed: %v", err)
	}

	// Completed is terminal.
	err = orders.UpdateStatus(ctx, db, order.ID, models.OrderStatusRejected)
	if !errors.Is(err, database.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}

	err = orders.UpdateStatus(ctx, db, order.ID, models.OrderStatusPending)
	if !errors.Is(err, database.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for move back to pending, got %v", err)
	}

	err = orders.UpdateStatus(ctx, db, 999999, models.OrderStatusCompleted)
	if !errors.Is(err, database.ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrdersOnDate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	orders := store.NewOrders()

	user := createTestUser(t, db, "orders6@example.com")
	product := createTestProduct(t, db, "ORD-002", "Widget", "25.00", 10)

	order, err := orders.CreateOrder(ctx, db, user.ID, decimal.RequireFromString("50.00"), models.OrderStatusCompleted)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if _, err := orders.AddOrderItem(ctx, db, order.ID, product.ID, 2, decimal.RequireFromString("25.00")); err != nil {
		t.Fatalf("AddOrderItem: %v", err)
	}

	today, err := orders.OrdersOnDate(ctx, db, time.Now())
	if err != nil {
		t.Fatalf("OrdersOnDate today: %v", err)
	}
	if len(today) != 1 {
		t.Fatalf("Expected 1 order today, got %d", len(today))
	}
	if len(today[0].Items) != 1 {
		t.Errorf("Expected items to be eager-loaded, got %d", len(today[0].Items))
	}

	yesterday, err := orders.OrdersOnDate(ctx, db, time.Now().AddDate(0, 0, -1))
	if err != nil {
		t.Fatalf("OrdersOnDate yesterday: %v", err)
	}
	if len(yesterday) != 0 {
		t.Errorf("Expected no orders yesterday, got %d", len(yesterday))
	}
}
