package coupon

import (
	"context"
	"strings"

	"kart-checkout/internal/model"

	"github.com/shopspring/decimal"
)

// Validator asks the shop backend whether a coupon code applies to a subtotal.
type Validator interface {
	// ValidateCoupon returns the backend's verdict. A transport failure or a
	// non-2xx answer is returned as an error.
	ValidateCoupon(ctx context.Context, code string, subtotal decimal.Decimal) (*model.CouponValidation, error)
}

// Messages shown to the shopper when a code cannot be applied.
const (
	MsgEmptyCode   = "Please enter a coupon code"
	MsgInvalidCode = "Invalid coupon code"
)

// NormalizeCode trims and upper-cases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Total returns subtotal minus discount plus shipping, never below zero.
func Total(subtotal, discount, shipping decimal.Decimal) decimal.Decimal {
	total := subtotal.Sub(discount).Add(shipping)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}
