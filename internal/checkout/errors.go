package checkout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/safar/storefront/internal/database"
)

var (
	// ErrEmptyCart means there was nothing to check out. No side
	// effects have occurred.
	ErrEmptyCart = errors.New("cart is empty, nothing to checkout")

	// ErrCheckoutFailed covers unexpected persistence failures during
	// the commit. The transaction has been rolled back and the cart is
	// intact; the caller may retry.
	ErrCheckoutFailed = errors.New("checkout failed")
)

// StockShortage describes one cart line that exceeds current
// availability.
type StockShortage struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product"`
	Requested   int    `json:"requested"`
	Available   int    `json:"available"`
}

// InsufficientStockError reports every offending line at once so the
// user can fix the whole cart in one pass.
type InsufficientStockError struct {
	Shortages []StockShortage
}

func (e *InsufficientStockError) Error() string {
	if len(e.Shortages) == 0 {
		return "insufficient stock"
	}

	var b strings.Builder
	b.WriteString("insufficient stock: ")
	for i, s := range e.Shortages {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s (requested %d, available %d)", s.ProductName, s.Requested, s.Available)
	}
	return b.String()
}

// Is lets callers match with errors.Is(err, database.ErrInsufficientStock)
// without caring about the detail carrier.
func (e *InsufficientStockError) Is(target error) bool {
	return target == database.ErrInsufficientStock
}
