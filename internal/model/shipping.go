package model

import "github.com/shopspring/decimal"

// ShippingRate is one row of the per-country rate table.
type ShippingRate struct {
	Country               string          `json:"country"`
	Rate                  decimal.Decimal `json:"rate"`
	FreeShippingThreshold decimal.Decimal `json:"free_shipping_threshold"`
}

// ShippingQuote is the shipping cost derived for a country and subtotal.
type ShippingQuote struct {
	Country       string          `json:"country"`
	Cost          decimal.Decimal `json:"cost"`
	FreeThreshold decimal.Decimal `json:"free_threshold"`
	IsFree        bool            `json:"is_free"`
}

// RemainingForFree returns how much more the shopper has to spend to get
// free shipping. Zero when shipping is already free or no threshold exists.
func (q ShippingQuote) RemainingForFree(subtotal decimal.Decimal) decimal.Decimal {
	if q.IsFree || !q.FreeThreshold.IsPositive() {
		return decimal.Zero
	}
	remaining := q.FreeThreshold.Sub(subtotal)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}
