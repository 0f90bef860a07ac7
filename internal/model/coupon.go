package model

import "github.com/shopspring/decimal"

// DiscountType enumerates how a coupon reduces the subtotal.
type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

// AppliedCoupon is the coupon currently reducing the order total.
type AppliedCoupon struct {
	Code           string          `json:"code"`
	DiscountType   DiscountType    `json:"discount_type"`
	DiscountValue  decimal.Decimal `json:"discount_value"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Description    string          `json:"description"`
}

// CouponValidation is the shop backend's verdict on a coupon code.
type CouponValidation struct {
	Valid          bool            `json:"valid"`
	Code           string          `json:"code"`
	DiscountType   DiscountType    `json:"discount_type"`
	DiscountValue  decimal.Decimal `json:"discount_value"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Description    string          `json:"description"`
}
