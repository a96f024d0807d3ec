package report

import (
	"context"
	"testing"
	"time"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrders struct {
	orders []models.Order
}

func (f fakeOrders) OrdersOnDate(_ context.Context, _ database.Querier, _ time.Time) ([]models.Order, error) {
	return f.orders, nil
}

func TestDailySummary(t *testing.T) {
	src := fakeOrders{orders: []models.Order{
		{
			Status:      models.OrderStatusCompleted,
			TotalAmount: decimal.RequireFromString("426.50"),
			Items: []models.OrderItem{
				{Quantity: 2},
				{Quantity: 3},
			},
		},
		{
			Status:      models.OrderStatusCompleted,
			TotalAmount: decimal.RequireFromString("19.99"),
			Items: []models.OrderItem{
				{Quantity: 1},
			},
		},
		{
			// Rejected orders are not revenue.
			Status:      models.OrderStatusRejected,
			TotalAmount: decimal.RequireFromString("999.99"),
			Items: []models.OrderItem{
				{Quantity: 9},
			},
		},
	}}

	day := time.Date(2026, 3, 14, 13, 45, 0, 0, time.UTC)
	summary, err := DailySummary(context.Background(), nil, src, day)

	require.NoError(t, err)
	assert.Equal(t, 2, summary.OrderCount)
	assert.Equal(t, 6, summary.ItemsSold)
	assert.True(t, summary.GrossRevenue.Equal(decimal.RequireFromString("446.49")),
		"expected 446.49, got %s", summary.GrossRevenue)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), summary.Date)
}

func TestDailySummaryEmptyDay(t *testing.T) {
	summary, err := DailySummary(context.Background(), nil, fakeOrders{}, time.Now())

	require.NoError(t, err)
	assert.Equal(t, 0, summary.OrderCount)
	assert.Equal(t, 0, summary.ItemsSold)
	assert.True(t, summary.GrossRevenue.IsZero())
}
