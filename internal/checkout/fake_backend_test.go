package checkout

import (
	"context"
	"strings"
	"sync"
	"testing"

	"kart-checkout/internal/auth"
	"kart-checkout/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// fakeBackend stands in for every shop backend collaborator of a flow.
type fakeBackend struct {
	mu sync.Mutex

	rates    []model.ShippingRate
	ratesErr error
	status   model.CheckoutStatus

	// percentCoupons maps a code to its percentage.
	percentCoupons map[string]int64
	couponHook     func()

	emailExists map[string]bool
	emailHook   func(ctx context.Context, email string)

	registerHook  func()
	registerErr   error
	registrations []model.RegisterRequest
	registerKeys  []string

	profile        *model.Customer
	profileUpdates []model.ProfileUpdate
	profileErr     error

	checkoutErr  error
	checkoutReqs []model.CheckoutRequest
	checkoutKeys []string
	redirect     *model.CheckoutRedirect
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		rates: []model.ShippingRate{
			{Country: "Österreich", Rate: dec("4.90"), FreeShippingThreshold: dec("50")},
			{Country: "Deutschland", Rate: dec("7.90"), FreeShippingThreshold: dec("100")},
		},
		percentCoupons: map[string]int64{"SAVE10": 10},
		emailExists:    map[string]bool{},
		redirect:       &model.CheckoutRedirect{CheckoutURL: "https://pay.example/session/1"},
	}
}

func (b *fakeBackend) Rates(ctx context.Context) ([]model.ShippingRate, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rates, b.ratesErr
}

func (b *fakeBackend) ValidateCoupon(ctx context.Context, code string, subtotal decimal.Decimal) (*model.CouponValidation, error) {
	b.mu.Lock()
	hook := b.couponHook
	b.mu.Unlock()
	if hook != nil {
		hook()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	pct, ok := b.percentCoupons[code]
	if !ok {
		return nil, &model.UpstreamError{Op: "validate coupon", Status: 404, Detail: "Coupon not found"}
	}
	return &model.CouponValidation{
		Valid:          true,
		Code:           code,
		DiscountType:   model.DiscountPercent,
		DiscountValue:  decimal.NewFromInt(pct),
		DiscountAmount: subtotal.Mul(decimal.NewFromInt(pct)).Div(decimal.NewFromInt(100)).Round(2),
	}, nil
}

func (b *fakeBackend) EmailExists(ctx context.Context, email string) (bool, error) {
	b.mu.Lock()
	hook := b.emailHook
	b.mu.Unlock()
	if hook != nil {
		hook(ctx, email)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.emailExists[strings.ToLower(email)], nil
}

func (b *fakeBackend) RegisterCustomer(ctx context.Context, req model.RegisterRequest, key string) (*model.Registration, error) {
	b.mu.Lock()
	hook := b.registerHook
	b.mu.Unlock()
	if hook != nil {
		hook()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registrations = append(b.registrations, req)
	b.registerKeys = append(b.registerKeys, key)
	if b.registerErr != nil {
		return nil, b.registerErr
	}
	return &model.Registration{
		Token:    "tok-registered",
		Customer: model.Customer{ID: "cust-1", Email: req.Email, FirstName: req.FirstName, LastName: req.LastName},
	}, nil
}

func (b *fakeBackend) CheckoutStatus(ctx context.Context) (*model.CheckoutStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.status
	return &s, nil
}

func (b *fakeBackend) CreateCheckout(ctx context.Context, req model.CheckoutRequest, key string) (*model.CheckoutRedirect, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkoutReqs = append(b.checkoutReqs, req)
	b.checkoutKeys = append(b.checkoutKeys, key)
	if b.checkoutErr != nil {
		return nil, b.checkoutErr
	}
	return b.redirect, nil
}

func (b *fakeBackend) CustomerProfile(ctx context.Context, token string) (*model.Customer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.profileErr != nil {
		return nil, b.profileErr
	}
	if b.profile == nil {
		return nil, &model.UpstreamError{Op: "fetch profile", Status: 401, Detail: "Not authenticated"}
	}
	c := *b.profile
	return &c, nil
}

func (b *fakeBackend) UpdateProfile(ctx context.Context, token string, update model.ProfileUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.profileUpdates = append(b.profileUpdates, update)
	return b.profileErr
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func deps(b *fakeBackend) Dependencies {
	return Dependencies{Rates: b, Coupons: b, Registry: b, Orders: b}
}

func newTestFlow(t *testing.T, b *fakeBackend, session auth.Session, items ...model.LineItem) *Flow {
	t.Helper()
	f := NewFlow(uuid.New(), items, session, deps(b), Options{OriginURL: "https://shop.example"}, zerolog.Nop())
	f.Start(context.Background())
	return f
}

func lineItem(id, price string, qty int) model.LineItem {
	return model.LineItem{ProductID: id, Name: "Product " + id, UnitPrice: dec(price), Quantity: qty}
}

func validContact() model.Contact {
	return model.Contact{Name: "Anna Huber", Email: "anna@example.at", Phone: "+43 660 1234567"}
}

func validShipping(country string) ShippingDetails {
	return ShippingDetails{
		Address:               model.Address{Street: "Hauptstraße 1", City: "Wien", PostalCode: "1010", Country: country},
		BillingSameAsShipping: true,
	}
}
