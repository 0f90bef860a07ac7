package model

import "strings"

// DefaultCountry is preselected for shipping and billing addresses.
const DefaultCountry = "Österreich"

// Contact holds the shopper's contact details.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Address is a postal address.
type Address struct {
	Street     string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal"`
	Country    string `json:"country"`
}

// AccountRequest carries the credentials for inline account creation.
// Passwords never leave the process in serialized form.
type AccountRequest struct {
	Password        string `json:"-"`
	ConfirmPassword string `json:"-"`
}

// DraftOrder is the order aggregate built up across the checkout steps.
type DraftOrder struct {
	Contact               Contact         `json:"contact"`
	ShippingAddress       Address         `json:"shipping_address"`
	BillingAddress        Address         `json:"billing_address"`
	BillingSameAsShipping bool            `json:"billing_same_as_shipping"`
	SaveAddress           bool            `json:"save_address"`
	Notes                 string          `json:"notes,omitempty"`
	Account               *AccountRequest `json:"account,omitempty"`
	AgeVerified           bool            `json:"age_verified"`
	TermsAccepted         bool            `json:"terms_accepted"`
}

// NewDraftOrder returns an empty draft with billing tied to shipping.
func NewDraftOrder(country string) *DraftOrder {
	if country == "" {
		country = DefaultCountry
	}
	return &DraftOrder{
		ShippingAddress:       Address{Country: country},
		BillingAddress:        Address{Country: country},
		BillingSameAsShipping: true,
	}
}

// WantsAccount reports whether the shopper opted into inline registration.
func (d *DraftOrder) WantsAccount() bool {
	return d.Account != nil
}

// EffectiveBilling returns the address the order will be billed to.
func (d *DraftOrder) EffectiveBilling() Address {
	if d.BillingSameAsShipping {
		return d.ShippingAddress
	}
	return d.BillingAddress
}

// Clone returns a deep copy of the draft.
func (d *DraftOrder) Clone() DraftOrder {
	c := *d
	if d.Account != nil {
		acct := *d.Account
		c.Account = &acct
	}
	return c
}

// NormalizeEmail lower-cases and trims an email address for comparisons.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
