package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"kart-checkout/internal/checkout"
	"kart-checkout/internal/model"
	"kart-checkout/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CheckoutHandler handles checkout session HTTP requests.
type CheckoutHandler struct {
	service service.CheckoutService
	logger  zerolog.Logger
}

// NewCheckoutHandler creates a new checkout handler.
func NewCheckoutHandler(service service.CheckoutService, logger zerolog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service: service,
		logger:  logger.With().Str("handler", "checkout").Logger(),
	}
}

// CreateRequest starts a checkout session.
type CreateRequest struct {
	Items []model.LineItem `json:"items"`
}

// QuantityRequest changes the quantity of one cart line.
type QuantityRequest struct {
	Quantity int `json:"quantity"`
}

// AccountRequest opts into or out of inline account creation.
type AccountRequest struct {
	CreateAccount   bool   `json:"create_account"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// CouponRequest applies a coupon code.
type CouponRequest struct {
	Code string `json:"code"`
}

// Create handles POST /api/checkout requests.
func (h *CheckoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !h.decode(w, r, &req) {
		return
	}

	flow, err := h.service.Create(r.Context(), bearerToken(r), req.Items)
	if err != nil {
		writeFailure(w, err, nil, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, flow.State())
}

// Get handles GET /api/checkout/{id} requests.
func (h *CheckoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.flow(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, flow.State())
}

// Delete handles DELETE /api/checkout/{id} requests.
func (h *CheckoutHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		writeFailure(w, err, nil, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddItem handles POST /api/checkout/{id}/items requests.
func (h *CheckoutHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.flow(w, r)
	if !ok {
		return
	}

	var item model.LineItem
	if !h.decode(w, r, &item) {
		return
	}
	if strings.TrimSpace(item.ProductID) == "" {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "product_id is required", h.logger)
		return
	}

	h.respond(w, flow, flow.Cart().Add(item))
}

// UpdateItem handles PATCH /api/checkout/{id}/items/{productID} requests.
// A quantity of zero or less removes the line.
func (h *CheckoutHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.flow(w, r)
	if !ok {
		return
	}

	var req QuantityRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.respond(w, flow, flow.Cart().UpdateQuantity(chi.URLParam(r, "productID"), req.Quantity))
}

// RemoveItem handles DELETE /api/checkout/{id}/items/{productID} requests.
func (h *CheckoutHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.flow(w, r)
	if !ok {
		return
	}
	h.respond(w, flow, flow.Cart().Remove(chi.URLParam(r, "productID")))
}

// SetContact handles PUT /api/checkout/{id}/contact requests.
func (h *CheckoutHandler) SetContact(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.flow(w, r)
	if !ok {
		return
	}

	var contact model.Contact
	if !h.decode(w, r, &contact) {
		return
	}

	state, err := flow.SetContact(contact)
	h.respondState(w, state, err)
}

// SetAccount handles PUT /api/checkout/{id}/account requests.
func (h *CheckoutHandler) SetAccount(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.flow(w, r)
	if !ok {
		return
	}

	var req AccountRequest
	if !h.decode(w, r, &req) {
		return
	}

	var acct *model.AccountRequest
	if req.CreateAccount {
		acct = &model.AccountRequest{Password: req.Password, ConfirmPassword: req.ConfirmPassword}
	}

	state, err := flow.SetAccount(acct)
	h.respondState(w, state, err)
}

// SetShipping handles PUT /api/checkout/{id}/shipping requests.
func (h *CheckoutHandler) SetShipping(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.flow(w, r)
	if !ok {
		return
	}

	details := checkout.ShippingDetails{BillingSameAsShipping: true}
	if !h.decode(w, r, &details) {
		return
	}

	state, err := flow.SetShipping(details)
	h.respondState(w, state, err)
}

// SetPayment handles PUT /api/checkout/{id}/payment requests.
func (h *CheckoutHandler) SetPayment(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.flow(w, r)
	if !ok {
		return
	}

	var details checkout.PaymentDetails
	if !h.decode(w, r, &details) {
		return
	}

	state, err := flow.SetPayment(details)
	h.respondState(w, state, err)
}

// CheckEmail handles POST /api/checkout/{id}/email-check requests.
func (h *CheckoutHandler) CheckEmail(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.flow(w, r)
	if !ok {
		return
	}
	state, err := flow.CheckEmail(r.Context())
	h.respondState(w, state, err)
}

// ApplyCoupon handles POST /api/checkout/{id}/coupon requests.
func (h *CheckoutHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.flow(w, r)
	if !ok {
		return
	}

	var req CouponRequest
	if !h.decode(w, r, &req) {
		return
	}

	state, err := flow.ApplyCoupon(r.Context(), req.Code)
	h.respondState(w, state, err)
}

// RemoveCoupon handles DELETE /api/checkout/{id}/coupon requests.
func (h *CheckoutHandler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.flow(w, r)
	if !ok {
		return
	}
	state, err := flow.RemoveCoupon()
	h.respondState(w, state, err)
}

// Advance handles POST /api/checkout/{id}/advance requests.
func (h *CheckoutHandler) Advance(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.flow(w, r)
	if !ok {
		return
	}
	state, err := flow.Advance(r.Context())
	h.respondState(w, state, err)
}

// Retreat handles POST /api/checkout/{id}/retreat requests.
func (h *CheckoutHandler) Retreat(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.flow(w, r)
	if !ok {
		return
	}
	state, err := flow.Retreat()
	h.respondState(w, state, err)
}

func (h *CheckoutHandler) respond(w http.ResponseWriter, flow *checkout.Flow, err error) {
	h.respondState(w, flow.State(), err)
}

func (h *CheckoutHandler) respondState(w http.ResponseWriter, state checkout.State, err error) {
	if err != nil {
		writeFailure(w, err, &state, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *CheckoutHandler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeSessionNotFound, "invalid checkout session ID format", h.logger)
		return uuid.Nil, false
	}
	return id, true
}

func (h *CheckoutHandler) flow(w http.ResponseWriter, r *http.Request) (*checkout.Flow, bool) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return nil, false
	}
	flow, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeFailure(w, err, nil, h.logger)
		return nil, false
	}
	return flow, true
}

func (h *CheckoutHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return false
	}
	return true
}

// bearerToken returns the shopper's auth token, if the request carries one.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
