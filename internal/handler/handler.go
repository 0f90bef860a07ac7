package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"kart-checkout/internal/checkout"
	"kart-checkout/internal/model"

	"github.com/rs/zerolog"
)

// ErrorResponse is an error body, optionally carrying the checkout state the
// storefront should render alongside it.
type ErrorResponse struct {
	model.ErrorResponse
	State *checkout.State `json:"state,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log the error but don't expose it to the client
		return
	}
}

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, code, message string, logger zerolog.Logger) {
	logger.Error().Str("error", message).Str("code", code).Int("status", status).Msg("handler error")
	writeJSON(w, status, ErrorResponse{ErrorResponse: model.ErrorResponse{Error: code, Message: message}})
}

// writeFailure maps a checkout error onto a status code. state, when not
// nil, is returned with the error so the client can show field messages.
func writeFailure(w http.ResponseWriter, err error, state *checkout.State, logger zerolog.Logger) {
	status, body := classify(err)
	body.State = state

	event := logger.Warn()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		event = logger.Error()
	}
	event.Err(err).Str("code", body.Error).Int("status", status).Msg("checkout request failed")

	writeJSON(w, status, body)
}

func classify(err error) (int, ErrorResponse) {
	var (
		couponErr     *model.CouponRejectionError
		validationErr *model.ValidationError
		conflictErr   *model.AccountConflictError
		paymentErr    *model.PaymentConfigurationError
		networkErr    *model.NetworkError
		regErr        *model.RegistrationError
		submitErr     *model.SubmissionError
		domainErr     *model.DomainError
	)

	resp := func(code, message string, fields model.ValidationErrors) ErrorResponse {
		return ErrorResponse{ErrorResponse: model.ErrorResponse{Error: code, Message: message, Fields: fields}}
	}

	switch {
	case errors.As(err, &couponErr):
		return http.StatusBadRequest, resp(model.ErrCodeCouponRejected, couponErr.Reason, nil)
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity, resp(model.ErrCodeValidation, validationErr.Error(), validationErr.Fields)
	case errors.As(err, &conflictErr):
		return http.StatusConflict, resp(model.ErrCodeAccountConflict, conflictErr.Error(), conflictErr.Fields)
	case errors.As(err, &paymentErr):
		return http.StatusServiceUnavailable, resp(model.ErrCodePaymentConfig, paymentErr.Error(), nil)
	case errors.As(err, &networkErr):
		return http.StatusBadGateway, resp(model.ErrCodeNetwork, checkout.MsgNetwork, nil)
	case errors.As(err, &regErr):
		return http.StatusUnprocessableEntity, resp(model.ErrCodeRegistrationFailed, regErr.Message, nil)
	case errors.As(err, &submitErr):
		return http.StatusUnprocessableEntity, resp(model.ErrCodeSubmissionFailed, submitErr.Message, nil)
	case errors.As(err, &domainErr):
		return domainStatus(domainErr), resp(domainErr.Code, domainErr.Message, nil)
	default:
		return http.StatusInternalServerError, resp(model.ErrCodeInternalError, "internal server error", nil)
	}
}

func domainStatus(err *model.DomainError) int {
	switch err.Code {
	case model.ErrCodeSessionNotFound, model.ErrCodeItemNotFound:
		return http.StatusNotFound
	case model.ErrCodeBusy:
		return http.StatusTooManyRequests
	case model.ErrCodeCheckoutNotPossible:
		return http.StatusUnprocessableEntity
	case model.ErrCodeUnauthorised:
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}
