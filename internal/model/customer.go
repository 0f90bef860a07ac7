package model

// Customer is a registered shop customer as returned by the shop backend.
type Customer struct {
	ID                    string `json:"id"`
	Email                 string `json:"email"`
	FirstName             string `json:"first_name"`
	LastName              string `json:"last_name"`
	Phone                 string `json:"phone,omitempty"`
	DefaultAddress        string `json:"default_address,omitempty"`
	DefaultCity           string `json:"default_city,omitempty"`
	DefaultPostal         string `json:"default_postal,omitempty"`
	DefaultCountry        string `json:"default_country,omitempty"`
	BillingSameAsShipping *bool  `json:"billing_same_as_shipping,omitempty"`
	BillingAddress        string `json:"billing_address,omitempty"`
	BillingCity           string `json:"billing_city,omitempty"`
	BillingPostal         string `json:"billing_postal,omitempty"`
	BillingCountry        string `json:"billing_country,omitempty"`
}

// FullName joins first and last name.
func (c *Customer) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// RegisterRequest is the payload for creating a customer account.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
}

// Registration is the result of a successful registration.
type Registration struct {
	Token    string   `json:"token"`
	Customer Customer `json:"customer"`
}

// ProfileUpdate persists the shopper's default addresses.
type ProfileUpdate struct {
	DefaultAddress        string `json:"default_address"`
	DefaultCity           string `json:"default_city"`
	DefaultPostal         string `json:"default_postal"`
	DefaultCountry        string `json:"default_country"`
	BillingSameAsShipping bool   `json:"billing_same_as_shipping"`
	BillingAddress        string `json:"billing_address"`
	BillingCity           string `json:"billing_city"`
	BillingPostal         string `json:"billing_postal"`
	BillingCountry        string `json:"billing_country"`
	Phone                 string `json:"phone"`
}

// CheckoutStatus describes how the payment side is configured.
type CheckoutStatus struct {
	DemoMode bool `json:"demo_mode"`
}
