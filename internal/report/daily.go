// Package report aggregates finalized orders into daily sales
// summaries. Delivery (mail, dashboards) is owned by whatever runs the
// report binary.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/shopspring/decimal"
)

type OrderSource interface {
	OrdersOnDate(ctx context.Context, q database.Querier, day time.Time) ([]models.Order, error)
}

type Summary struct {
	Date         time.Time       `json:"date"`
	OrderCount   int             `json:"order_count"`
	ItemsSold    int             `json:"items_sold"`
	GrossRevenue decimal.Decimal `json:"gross_revenue"`
}

// DailySummary rolls up every completed order of the given calendar
// day. Rejected and pending orders are not revenue.
func DailySummary(ctx context.Context, q database.Querier, orders OrderSource, day time.Time) (*Summary, error) {
	all, err := orders.OrdersOnDate(ctx, q, day)
	if err != nil {
		return nil, fmt.Errorf("load orders for %s: %w", day.Format("2006-01-02"), err)
	}

	summary := &Summary{
		Date:         time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location()),
		GrossRevenue: decimal.Zero,
	}

	for _, order := range all {
		if !order.IsCompleted() {
			continue
		}
		summary.OrderCount++
		summary.GrossRevenue = summary.GrossRevenue.Add(order.TotalAmount)
		for _, item := range order.Items {
			summary.ItemsSold += item.Quantity
		}
	}

	return summary, nil
}
