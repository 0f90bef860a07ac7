package checkout

import (
	"kart-checkout/internal/coupon"
	"kart-checkout/internal/model"
	"kart-checkout/internal/shipping"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// State is what the storefront renders: where the shopper is, what is wrong
// and what the order will cost. Totals are for display only.
type State struct {
	ID                      uuid.UUID              `json:"id"`
	Step                    model.Step             `json:"step"`
	StepName                string                 `json:"step_name"`
	Errors                  model.ValidationErrors `json:"errors"`
	Cart                    model.CartSnapshot     `json:"cart"`
	ItemCount               int                    `json:"item_count"`
	Draft                   model.DraftOrder       `json:"draft"`
	AgeVerificationRequired bool                   `json:"age_verification_required"`
	Coupon                  *model.AppliedCoupon   `json:"coupon,omitempty"`
	CouponError             string                 `json:"coupon_error,omitempty"`
	CouponBusy              bool                   `json:"coupon_busy"`
	Advancing               bool                   `json:"advancing"`
	Email                   EmailStatus            `json:"email_check"`
	Shipping                model.ShippingQuote    `json:"shipping"`
	RemainingForFree        decimal.Decimal        `json:"remaining_for_free_shipping"`
	Discount                decimal.Decimal        `json:"discount"`
	Total                   decimal.Decimal        `json:"total"`
	Countries               []string               `json:"countries"`
	DemoMode                bool                   `json:"demo_mode"`
	Authenticated           bool                   `json:"authenticated"`
	Customer                *model.Customer        `json:"customer,omitempty"`
	CheckoutURL             string                 `json:"checkout_url,omitempty"`
}

// State returns a consistent view of the flow.
func (f *Flow) State() State {
	snap := f.cart.Snapshot()

	f.mu.Lock()
	defer f.mu.Unlock()

	quote := shipping.Resolve(f.rates, f.draft.ShippingAddress.Country, snap.Subtotal)
	discount := f.coupons.Discount(snap.Subtotal)

	s := State{
		ID:                      f.id,
		Step:                    f.step,
		StepName:                f.step.String(),
		Errors:                  f.errors.Clone(),
		Cart:                    snap,
		ItemCount:               snap.ItemCount(),
		Draft:                   f.draft.Clone(),
		AgeVerificationRequired: snap.HasAgeRestrictedItems(),
		Coupon:                  f.coupons.Applied(),
		CouponBusy:              f.coupons.Busy(),
		Advancing:               f.advancing,
		Email: EmailStatus{
			Checking: f.email.checking,
			Known:    f.email.known,
			Exists:   f.email.exists,
		},
		Shipping:         quote,
		RemainingForFree: quote.RemainingForFree(snap.Subtotal),
		Discount:         discount,
		Total:            coupon.Total(snap.Subtotal, discount, quote.Cost),
		Countries:        shipping.Countries(f.rates),
		DemoMode:         f.status.DemoMode,
		Authenticated:    f.session.IsAuthenticated(),
		Customer:         f.session.Customer(),
	}
	if err := f.coupons.Err(); err != nil {
		s.CouponError = err.Error()
	}
	if f.redirect != nil {
		s.CheckoutURL = f.redirect.CheckoutURL
		if f.redirect.DemoMode {
			s.DemoMode = true
		}
	}
	return s
}
