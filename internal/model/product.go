package model

import "github.com/shopspring/decimal"

// LineItem is a product reference held in the cart together with the
// display price captured when it was added.
type LineItem struct {
	ProductID      string          `json:"product_id"`
	Name           string          `json:"name"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Quantity       int             `json:"quantity"`
	AgeRestricted  bool            `json:"is_18_plus"`
	AlcoholContent float64         `json:"alcohol_content,omitempty"`
}

// Total returns unit price times quantity.
func (li LineItem) Total() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// RequiresAgeVerification reports whether the product may only be sold after
// the shopper confirms legal age.
func (li LineItem) RequiresAgeVerification() bool {
	return li.AgeRestricted || li.AlcoholContent > 0
}

// CartSnapshot is an immutable view of the cart at one point in time.
type CartSnapshot struct {
	Items    []LineItem      `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// IsEmpty reports whether the snapshot holds no line items.
func (c CartSnapshot) IsEmpty() bool {
	return len(c.Items) == 0
}

// HasAgeRestrictedItems reports whether any line item needs age verification.
func (c CartSnapshot) HasAgeRestrictedItems() bool {
	for _, item := range c.Items {
		if item.RequiresAgeVerification() {
			return true
		}
	}
	return false
}

// ItemCount returns the sum of all quantities.
func (c CartSnapshot) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}
