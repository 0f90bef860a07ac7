package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CheckoutRequest is the order payload posted to the shop backend.
// Prices are deliberately absent; the backend recomputes them.
type CheckoutRequest struct {
	CustomerName          string             `json:"customer_name"`
	CustomerEmail         string             `json:"customer_email"`
	CustomerPhone         string             `json:"customer_phone"`
	ShippingAddress       string             `json:"shipping_address"`
	ShippingCity          string             `json:"shipping_city"`
	ShippingPostal        string             `json:"shipping_postal"`
	ShippingCountry       string             `json:"shipping_country"`
	BillingSameAsShipping bool               `json:"billing_same_as_shipping"`
	BillingAddress        string             `json:"billing_address"`
	BillingCity           string             `json:"billing_city"`
	BillingPostal         string             `json:"billing_postal"`
	BillingCountry        string             `json:"billing_country"`
	Notes                 *string            `json:"notes"`
	Items                 []OrderItemRequest `json:"items"`
	OriginURL             string             `json:"origin_url"`
	CustomerID            *string            `json:"customer_id"`
	CouponCode            *string            `json:"coupon_code"`
}

// OrderItemRequest represents a single item in an order request.
type OrderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CheckoutRedirect is the shop backend's answer to an order submission.
type CheckoutRedirect struct {
	CheckoutURL  string          `json:"checkout_url"`
	SessionToken string          `json:"session_token,omitempty"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	DemoMode     bool            `json:"demo_mode"`
}

// SessionSnapshot is the persisted form of a checkout session.
type SessionSnapshot struct {
	ID        uuid.UUID       `json:"id"`
	Step      Step            `json:"step"`
	Items     []LineItem      `json:"items"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Draft     DraftOrder      `json:"draft"`
	Coupon    *AppliedCoupon  `json:"coupon,omitempty"`
	AuthToken string          `json:"-"`
	Customer  *Customer       `json:"customer,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}
