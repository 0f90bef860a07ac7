package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Error   string           `json:"error"`
	Message string           `json:"message"`
	Fields  ValidationErrors `json:"fields,omitempty"`
}

// Standard error codes for API responses
const (
	ErrCodeInvalidJSON         = "INVALID_JSON"
	ErrCodeValidation          = "VALIDATION_FAILED"
	ErrCodeAccountConflict     = "ACCOUNT_CONFLICT"
	ErrCodeRegistrationFailed  = "REGISTRATION_FAILED"
	ErrCodeCouponRejected      = "COUPON_REJECTED"
	ErrCodeNetwork             = "UPSTREAM_UNAVAILABLE"
	ErrCodePaymentConfig       = "PAYMENT_NOT_CONFIGURED"
	ErrCodeSubmissionFailed    = "SUBMISSION_FAILED"
	ErrCodeSessionNotFound     = "SESSION_NOT_FOUND"
	ErrCodeItemNotFound        = "ITEM_NOT_FOUND"
	ErrCodeInvalidQuantity     = "INVALID_QUANTITY"
	ErrCodeBusy                = "BUSY"
	ErrCodeUnauthorised        = "UNAUTHORIZED"
	ErrCodeInternalError       = "INTERNAL_ERROR"
	ErrCodeCheckoutNotPossible = "CHECKOUT_NOT_POSSIBLE"
)

// Domain errors for business logic
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrSessionNotFound = NewDomainError(ErrCodeSessionNotFound, "Checkout session not found or expired")
	ErrItemNotFound    = NewDomainError(ErrCodeItemNotFound, "Item is not in the cart")
	ErrInvalidQuantity = NewDomainError(ErrCodeInvalidQuantity, "Quantity must be greater than zero")
	ErrBusy            = NewDomainError(ErrCodeBusy, "Another request for this checkout is still in progress")
	ErrEmptyCart       = NewDomainError(ErrCodeCheckoutNotPossible, "Your cart is empty")

	ErrCouponDiscarded = NewDomainError(ErrCodeCouponRejected, "Your checkout changed while the coupon was checked. Please apply it again")
)

// Field error codes.
const (
	FieldRequired = "required"
	FieldInvalid  = "invalid"
	FieldMismatch = "mismatch"
	FieldConflict = "conflict"
	FieldFailed   = "failed"
)

// FieldError describes why a single form field was rejected.
type FieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationErrors maps a form field name to its error.
type ValidationErrors map[string]FieldError

// Add records an error for field.
func (v ValidationErrors) Add(field, code, message string) {
	v[field] = FieldError{Code: code, Message: message}
}

// Has reports whether field has an error.
func (v ValidationErrors) Has(field string) bool {
	_, ok := v[field]
	return ok
}

// Fields returns the sorted names of all rejected fields.
func (v ValidationErrors) Fields() []string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a copy safe to hand out.
func (v ValidationErrors) Clone() ValidationErrors {
	c := make(ValidationErrors, len(v))
	for k, e := range v {
		c[k] = e
	}
	return c
}

// ValidationError blocks advancing past Step until the fields are fixed.
type ValidationError struct {
	Step   Step
	Fields ValidationErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s step has invalid fields: %s", e.Step, strings.Join(e.Fields.Fields(), ", "))
}

// AccountConflictError means the email already belongs to a registered
// customer who should sign in instead.
type AccountConflictError struct {
	Email  string
	Fields ValidationErrors
}

func (e *AccountConflictError) Error() string {
	return fmt.Sprintf("email %s is already registered", e.Email)
}

// NetworkError wraps a transport failure while talking to the shop backend.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// UpstreamError is a non-2xx answer from the shop backend.
type UpstreamError struct {
	Op     string
	Status int
	Detail string
}

func (e *UpstreamError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Detail)
}

// UpstreamDetail returns the server-provided message of err, if any.
func UpstreamDetail(err error) string {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Detail
	}
	return ""
}

// PaymentConfigurationError means the payment provider is unusable; the
// shopper should contact support rather than retry.
type PaymentConfigurationError struct {
	Err error
}

func (e *PaymentConfigurationError) Error() string {
	return "Payment system is being configured. Please contact us."
}

func (e *PaymentConfigurationError) Unwrap() error {
	return e.Err
}

// CouponRejectionError means a coupon code could not be applied.
type CouponRejectionError struct {
	Code   string
	Reason string
	Err    error
}

func (e *CouponRejectionError) Error() string {
	return e.Reason
}

func (e *CouponRejectionError) Unwrap() error {
	return e.Err
}

// RegistrationError means inline account creation failed.
type RegistrationError struct {
	Message string
	Err     error
}

func (e *RegistrationError) Error() string {
	return e.Message
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// SubmissionError means the shop backend refused the order.
type SubmissionError struct {
	Message string
	Err     error
}

func (e *SubmissionError) Error() string {
	return e.Message
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
