// Package validation checks a draft order one checkout step at a time.
//
// Every function is pure: it reads the draft and the cart and returns the
// field errors it found. An empty result means the step may be left.
package validation

import (
	"regexp"
	"strings"

	"kart-checkout/internal/model"
)

// Form field names used as keys in model.ValidationErrors.
const (
	FieldCart            = "cart"
	FieldName            = "customer_name"
	FieldEmail           = "customer_email"
	FieldPhone           = "customer_phone"
	FieldPassword        = "password"
	FieldConfirmPassword = "confirm_password"
	FieldAddress         = "shipping_address"
	FieldCity            = "shipping_city"
	FieldPostal          = "shipping_postal"
	FieldBillingAddress  = "billing_address"
	FieldBillingCity     = "billing_city"
	FieldBillingPostal   = "billing_postal"
	FieldAge             = "age"
	FieldTerms           = "terms"
)

// MsgEmailRegistered directs the shopper to sign in instead of registering.
const MsgEmailRegistered = "This email is already registered. Please sign in."

// MinPhoneDigits and MinPasswordLength bound the contact step.
const (
	MinPhoneDigits    = 6
	MinPasswordLength = 6
)

var (
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	postalPattern = regexp.MustCompile(`^\d{4,5}$`)
)

// ContactOptions carries what the contact step knows beyond the draft itself.
type ContactOptions struct {
	// LoggedIn shoppers never register inline.
	LoggedIn bool
	// EmailRegistered is the latest email-existence result for the draft email.
	EmailRegistered bool
}

// Step validates whatever step is being advanced past.
func Step(step model.Step, draft *model.DraftOrder, cart model.CartSnapshot, opts ContactOptions) model.ValidationErrors {
	switch step {
	case model.StepCart:
		return Cart(cart)
	case model.StepContact:
		return Contact(draft, opts)
	case model.StepShipping:
		return Shipping(draft)
	case model.StepPayment:
		return Payment(draft, cart)
	default:
		return model.ValidationErrors{}
	}
}

// Cart requires at least one line item.
func Cart(cart model.CartSnapshot) model.ValidationErrors {
	errs := model.ValidationErrors{}
	if cart.IsEmpty() {
		errs.Add(FieldCart, model.FieldRequired, "Your cart is empty")
	}
	return errs
}

// Contact validates name, email, phone and, when the shopper creates an
// account, the password pair and the email's availability.
func Contact(draft *model.DraftOrder, opts ContactOptions) model.ValidationErrors {
	errs := model.ValidationErrors{}
	c := draft.Contact

	if strings.TrimSpace(c.Name) == "" {
		errs.Add(FieldName, model.FieldRequired, "Name is required")
	}

	email := strings.TrimSpace(c.Email)
	switch {
	case email == "":
		errs.Add(FieldEmail, model.FieldRequired, "Email is required")
	case !IsEmail(email):
		errs.Add(FieldEmail, model.FieldInvalid, "Invalid email address")
	}

	switch {
	case strings.TrimSpace(c.Phone) == "":
		errs.Add(FieldPhone, model.FieldRequired, "Phone number is required")
	case PhoneDigits(c.Phone) < MinPhoneDigits:
		errs.Add(FieldPhone, model.FieldInvalid, "Invalid phone number")
	}

	if !draft.WantsAccount() || opts.LoggedIn {
		return errs
	}

	acct := draft.Account
	switch {
	case acct.Password == "":
		errs.Add(FieldPassword, model.FieldRequired, "Password is required")
	case len([]rune(acct.Password)) < MinPasswordLength:
		errs.Add(FieldPassword, model.FieldInvalid, "Password must be at least 6 characters")
	}
	if acct.Password != acct.ConfirmPassword {
		errs.Add(FieldConfirmPassword, model.FieldMismatch, "Passwords do not match")
	}

	if opts.EmailRegistered && !errs.Has(FieldEmail) {
		errs.Add(FieldEmail, model.FieldConflict, MsgEmailRegistered)
	}
	return errs
}

// Shipping validates the shipping address and, when it differs, the billing address.
func Shipping(draft *model.DraftOrder) model.ValidationErrors {
	errs := model.ValidationErrors{}
	validateAddress(errs, draft.ShippingAddress, FieldAddress, FieldCity, FieldPostal)
	if !draft.BillingSameAsShipping {
		validateAddress(errs, draft.BillingAddress, FieldBillingAddress, FieldBillingCity, FieldBillingPostal)
	}
	return errs
}

func validateAddress(errs model.ValidationErrors, a model.Address, street, city, postal string) {
	if strings.TrimSpace(a.Street) == "" {
		errs.Add(street, model.FieldRequired, "Address is required")
	}
	if strings.TrimSpace(a.City) == "" {
		errs.Add(city, model.FieldRequired, "City is required")
	}
	switch p := strings.TrimSpace(a.PostalCode); {
	case p == "":
		errs.Add(postal, model.FieldRequired, "Postal code is required")
	case !postalPattern.MatchString(p):
		errs.Add(postal, model.FieldInvalid, "Invalid postal code")
	}
}

// Payment requires the terms to be accepted and, for age-restricted carts,
// the age confirmation.
func Payment(draft *model.DraftOrder, cart model.CartSnapshot) model.ValidationErrors {
	errs := model.ValidationErrors{}
	if cart.HasAgeRestrictedItems() && !draft.AgeVerified {
		errs.Add(FieldAge, model.FieldRequired, "Please confirm that you are at least 18 years old")
	}
	if !draft.TermsAccepted {
		errs.Add(FieldTerms, model.FieldRequired, "Please accept the terms and conditions")
	}
	return errs
}

// IsEmail reports whether s looks like local@domain.tld.
func IsEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// PhoneDigits counts the digits in a phone number, ignoring formatting.
func PhoneDigits(phone string) int {
	n := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
