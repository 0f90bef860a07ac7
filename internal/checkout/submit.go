package checkout

import (
	"context"
	"errors"
	"strings"

	"kart-checkout/internal/auth"
	"kart-checkout/internal/model"

	"github.com/rs/zerolog"
)

// Messages shown when an order cannot be submitted.
const (
	MsgOrderFailed   = "Error creating order"
	MsgNoCheckoutURL = "No checkout URL received"
	MsgNetwork       = "Network error. Please check your connection and try again."
)

// OrderGateway is the order and customer side of the shop backend.
type OrderGateway interface {
	CheckoutStatus(ctx context.Context) (*model.CheckoutStatus, error)
	CreateCheckout(ctx context.Context, req model.CheckoutRequest, idempotencyKey string) (*model.CheckoutRedirect, error)
	CustomerProfile(ctx context.Context, token string) (*model.Customer, error)
	UpdateProfile(ctx context.Context, token string, update model.ProfileUpdate) error
}

// Submitter hands a finished draft to the order gateway.
type Submitter struct {
	orders    OrderGateway
	originURL string
	logger    zerolog.Logger
}

// NewSubmitter creates a submitter. originURL tells the payment page where
// to send the shopper back to.
func NewSubmitter(orders OrderGateway, originURL string, logger zerolog.Logger) *Submitter {
	return &Submitter{
		orders:    orders,
		originURL: originURL,
		logger:    logger.With().Str("component", "order-submitter").Logger(),
	}
}

// Order is everything a submission needs.
type Order struct {
	Draft   model.DraftOrder
	Cart    model.CartSnapshot
	Coupon  *model.AppliedCoupon
	Session auth.Session
	// AttemptID is sent as the idempotency key.
	AttemptID string
}

// Submit posts the order and returns the payment redirect.
//
// When a signed-in shopper asked to save the address, the profile is updated
// first. That update is best effort and never blocks the order.
func (s *Submitter) Submit(ctx context.Context, order Order) (*model.CheckoutRedirect, error) {
	if order.Cart.IsEmpty() {
		return nil, model.ErrEmptyCart
	}

	if order.Draft.SaveAddress && order.Session != nil && order.Session.IsAuthenticated() {
		if err := s.orders.UpdateProfile(ctx, order.Session.Token(), ProfileFromDraft(&order.Draft)); err != nil {
			s.logger.Warn().Err(err).Msg("failed to save address to profile")
		}
	}

	req := BuildCheckoutRequest(&order.Draft, order.Cart, order.Coupon, customerID(order.Session), s.originURL)

	redirect, err := s.orders.CreateCheckout(ctx, req, order.AttemptID)
	if err != nil {
		return nil, s.classify(err)
	}
	if redirect == nil || strings.TrimSpace(redirect.CheckoutURL) == "" {
		s.logger.Error().Msg("order created without checkout URL")
		return nil, &model.SubmissionError{Message: MsgNoCheckoutURL}
	}

	s.logger.Info().
		Int("items", len(req.Items)).
		Bool("coupon", req.CouponCode != nil).
		Bool("demo_mode", redirect.DemoMode).
		Msg("order submitted")
	return redirect, nil
}

func (s *Submitter) classify(err error) error {
	var netErr *model.NetworkError
	if errors.As(err, &netErr) {
		s.logger.Error().Err(err).Msg("order submission failed")
		return err
	}

	msg := model.UpstreamDetail(err)
	if msg == "" {
		msg = MsgOrderFailed
	}
	if IsPaymentConfigurationMessage(msg) {
		s.logger.Error().Err(err).Msg("payment provider not configured")
		return &model.PaymentConfigurationError{Err: err}
	}
	s.logger.Warn().Err(err).Msg("order rejected")
	return &model.SubmissionError{Message: msg, Err: err}
}

// IsPaymentConfigurationMessage reports whether a backend message points at
// a misconfigured payment provider rather than a problem with the order.
func IsPaymentConfigurationMessage(msg string) bool {
	return strings.Contains(msg, "API Key") || strings.Contains(msg, "Invalid")
}

// BuildCheckoutRequest assembles the order payload. Line items carry only
// product and quantity; the backend prices them.
func BuildCheckoutRequest(d *model.DraftOrder, cart model.CartSnapshot, c *model.AppliedCoupon, customerID, originURL string) model.CheckoutRequest {
	items := make([]model.OrderItemRequest, 0, len(cart.Items))
	for _, it := range cart.Items {
		items = append(items, model.OrderItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	billing := d.EffectiveBilling()
	req := model.CheckoutRequest{
		CustomerName:          strings.TrimSpace(d.Contact.Name),
		CustomerEmail:         strings.TrimSpace(d.Contact.Email),
		CustomerPhone:         strings.TrimSpace(d.Contact.Phone),
		ShippingAddress:       strings.TrimSpace(d.ShippingAddress.Street),
		ShippingCity:          strings.TrimSpace(d.ShippingAddress.City),
		ShippingPostal:        strings.TrimSpace(d.ShippingAddress.PostalCode),
		ShippingCountry:       d.ShippingAddress.Country,
		BillingSameAsShipping: d.BillingSameAsShipping,
		BillingAddress:        strings.TrimSpace(billing.Street),
		BillingCity:           strings.TrimSpace(billing.City),
		BillingPostal:         strings.TrimSpace(billing.PostalCode),
		BillingCountry:        billing.Country,
		Items:                 items,
		OriginURL:             originURL,
	}
	if notes := strings.TrimSpace(d.Notes); notes != "" {
		req.Notes = &notes
	}
	if customerID != "" {
		req.CustomerID = &customerID
	}
	if c != nil && c.Code != "" {
		code := c.Code
		req.CouponCode = &code
	}
	return req
}

// ProfileFromDraft builds the profile update for "save address".
func ProfileFromDraft(d *model.DraftOrder) model.ProfileUpdate {
	billing := d.EffectiveBilling()
	return model.ProfileUpdate{
		DefaultAddress:        d.ShippingAddress.Street,
		DefaultCity:           d.ShippingAddress.City,
		DefaultPostal:         d.ShippingAddress.PostalCode,
		DefaultCountry:        d.ShippingAddress.Country,
		BillingSameAsShipping: d.BillingSameAsShipping,
		BillingAddress:        billing.Street,
		BillingCity:           billing.City,
		BillingPostal:         billing.PostalCode,
		BillingCountry:        billing.Country,
		Phone:                 d.Contact.Phone,
	}
}

func customerID(session auth.Session) string {
	if session == nil || !session.IsAuthenticated() {
		return ""
	}
	if c := session.Customer(); c != nil {
		return c.ID
	}
	return ""
}
