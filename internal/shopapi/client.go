// Package shopapi is the HTTP client for the shop backend that owns
// customers, coupons, shipping rates and orders.
package shopapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kart-checkout/internal/model"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Client talks to the shop backend REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger.With().Str("component", "shop-api").Logger(),
	}
}

type requestOptions struct {
	token          string
	idempotencyKey string
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// ShippingRates fetches the per-country rate table.
func (c *Client) ShippingRates(ctx context.Context) ([]model.ShippingRate, error) {
	var rates []model.ShippingRate
	if err := c.do(ctx, "fetch shipping rates", http.MethodGet, "/shipping-rates", nil, &rates, requestOptions{}); err != nil {
		return nil, err
	}
	return rates, nil
}

// Rates lets the client serve as a shipping rate source.
func (c *Client) Rates(ctx context.Context) ([]model.ShippingRate, error) {
	return c.ShippingRates(ctx)
}

// CheckoutStatus fetches how the payment side is configured.
func (c *Client) CheckoutStatus(ctx context.Context) (*model.CheckoutStatus, error) {
	var status model.CheckoutStatus
	if err := c.do(ctx, "fetch checkout status", http.MethodGet, "/checkout/status", nil, &status, requestOptions{}); err != nil {
		return nil, err
	}
	return &status, nil
}

// ValidateCoupon asks whether code applies to subtotal.
func (c *Client) ValidateCoupon(ctx context.Context, code string, subtotal decimal.Decimal) (*model.CouponValidation, error) {
	body := struct {
		Code     string  `json:"code"`
		Subtotal float64 `json:"subtotal"`
	}{Code: code, Subtotal: subtotal.InexactFloat64()}

	var result model.CouponValidation
	if err := c.do(ctx, "validate coupon", http.MethodPost, "/coupons/validate", body, &result, requestOptions{}); err != nil {
		return nil, err
	}
	return &result, nil
}

// EmailExists reports whether a customer with email is registered.
func (c *Client) EmailExists(ctx context.Context, email string) (bool, error) {
	var result struct {
		Exists bool `json:"exists"`
	}
	path := "/customer/check-email?email=" + url.QueryEscape(email)
	if err := c.do(ctx, "check email", http.MethodGet, path, nil, &result, requestOptions{}); err != nil {
		return false, err
	}
	return result.Exists, nil
}

// RegisterCustomer creates a customer account.
func (c *Client) RegisterCustomer(ctx context.Context, req model.RegisterRequest, idempotencyKey string) (*model.Registration, error) {
	var reg model.Registration
	if err := c.do(ctx, "register customer", http.MethodPost, "/customer/register", req, &reg, requestOptions{idempotencyKey: idempotencyKey}); err != nil {
		return nil, err
	}
	return &reg, nil
}

// CustomerProfile fetches the profile of the customer owning token.
func (c *Client) CustomerProfile(ctx context.Context, token string) (*model.Customer, error) {
	var customer model.Customer
	if err := c.do(ctx, "fetch profile", http.MethodGet, "/customer/profile", nil, &customer, requestOptions{token: token}); err != nil {
		return nil, err
	}
	return &customer, nil
}

// UpdateProfile stores default and billing addresses for the customer owning token.
func (c *Client) UpdateProfile(ctx context.Context, token string, update model.ProfileUpdate) error {
	return c.do(ctx, "update profile", http.MethodPut, "/customer/profile", update, nil, requestOptions{token: token})
}

// CreateCheckout submits an order and returns the payment redirect.
func (c *Client) CreateCheckout(ctx context.Context, req model.CheckoutRequest, idempotencyKey string) (*model.CheckoutRedirect, error) {
	var redirect model.CheckoutRedirect
	if err := c.do(ctx, "create checkout", http.MethodPost, "/orders/create-checkout", req, &redirect, requestOptions{idempotencyKey: idempotencyKey}); err != nil {
		return nil, err
	}
	return &redirect, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any, opts requestOptions) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.token)
	}
	if opts.idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", opts.idempotencyKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("op", op).Msg("shop API request failed")
		return &model.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("shop API response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &model.UpstreamError{Op: op, Status: resp.StatusCode, Detail: parseDetail(raw)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to decode %s response: empty body", op)
		}
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

// parseDetail extracts the backend's error message. The backend answers
// {"detail": "..."} for handled errors and a list of objects with "msg" for
// request validation failures.
func parseDetail(raw []byte) string {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(body.Detail, &s); err == nil {
		return s
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(body.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
