package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"kart-checkout/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// ShopBackend is an in-process stand-in for the shop API. It knows one
// coupon (WELCOME10, ten percent) and ships to Austria for 5.90, free from 50.
type ShopBackend struct {
	Server *httptest.Server

	mu            sync.Mutex
	registered    map[string]model.Customer
	registrations []string // idempotency keys
	orders        []model.CheckoutRequest
	profiles      []model.ProfileUpdate
}

// NewShopBackend starts the backend; it is closed when the test ends.
func NewShopBackend(t *testing.T) *ShopBackend {
	t.Helper()

	b := &ShopBackend{registered: make(map[string]model.Customer)}

	r := chi.NewRouter()
	r.Get("/shipping-rates", b.rates)
	r.Get("/checkout/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, model.CheckoutStatus{DemoMode: true})
	})
	r.Post("/coupons/validate", b.validateCoupon)
	r.Get("/customer/check-email", b.checkEmail)
	r.Post("/customer/register", b.register)
	r.Get("/customer/profile", b.profile)
	r.Put("/customer/profile", b.updateProfile)
	r.Post("/orders/create-checkout", b.createCheckout)

	b.Server = httptest.NewServer(r)
	t.Cleanup(b.Server.Close)
	return b
}

// RegisterExisting adds a customer that already has an account.
func (b *ShopBackend) RegisterExisting(email string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registered[strings.ToLower(email)] = model.Customer{ID: "existing-" + email, Email: email}
}

// Registrations returns the idempotency keys of all registrations received.
func (b *ShopBackend) Registrations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.registrations...)
}

// Orders returns all order submissions received.
func (b *ShopBackend) Orders() []model.CheckoutRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.CheckoutRequest(nil), b.orders...)
}

func (b *ShopBackend) rates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []model.ShippingRate{
		{Country: "Österreich", Rate: decimal.RequireFromString("5.90"), FreeShippingThreshold: decimal.RequireFromString("50.00")},
		{Country: "Deutschland", Rate: decimal.RequireFromString("9.90"), FreeShippingThreshold: decimal.RequireFromString("100.00")},
	})
}

func (b *ShopBackend) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code     string  `json:"code"`
		Subtotal float64 `json:"subtotal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid body"})
		return
	}
	if req.Code != "WELCOME10" {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Coupon not found"})
		return
	}
	subtotal := decimal.NewFromFloat(req.Subtotal)
	writeJSON(w, http.StatusOK, model.CouponValidation{
		Valid:          true,
		Code:           req.Code,
		DiscountType:   model.DiscountPercent,
		DiscountValue:  decimal.NewFromInt(10),
		DiscountAmount: subtotal.Div(decimal.NewFromInt(10)).Round(2),
		Description:    "10% off your first order",
	})
}

func (b *ShopBackend) checkEmail(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	_, exists := b.registered[strings.ToLower(r.URL.Query().Get("email"))]
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

func (b *ShopBackend) register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid body"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	key := strings.ToLower(req.Email)
	if _, ok := b.registered[key]; ok {
		writeJSON(w, http.StatusConflict, map[string]string{"detail": "Email already registered"})
		return
	}
	customer := model.Customer{
		ID:        "cust-" + key,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	}
	b.registered[key] = customer
	b.registrations = append(b.registrations, r.Header.Get("Idempotency-Key"))
	writeJSON(w, http.StatusCreated, model.Registration{Token: "token-" + customer.ID, Customer: customer})
}

func (b *ShopBackend) customerFor(r *http.Request) (model.Customer, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.registered {
		if token == "token-"+c.ID {
			return c, true
		}
	}
	return model.Customer{}, false
}

func (b *ShopBackend) profile(w http.ResponseWriter, r *http.Request) {
	c, ok := b.customerFor(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (b *ShopBackend) updateProfile(w http.ResponseWriter, r *http.Request) {
	if _, ok := b.customerFor(r); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
		return
	}
	var update model.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid body"})
		return
	}
	b.mu.Lock()
	b.profiles = append(b.profiles, update)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (b *ShopBackend) createCheckout(w http.ResponseWriter, r *http.Request) {
	var req model.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid body"})
		return
	}

	b.mu.Lock()
	b.orders = append(b.orders, req)
	n := len(b.orders)
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, model.CheckoutRedirect{
		CheckoutURL:  "https://pay.example.com/session/" + r.Header.Get("Idempotency-Key"),
		SessionToken: "cs_test_" + string(rune('a'+n)),
		DemoMode:     true,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
