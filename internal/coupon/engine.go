package coupon

import (
	"context"
	"errors"
	"sync"

	"kart-checkout/internal/model"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Engine holds the coupon applied to one checkout. At most one coupon is
// active; applying another replaces it.
type Engine struct {
	validator Validator
	logger    zerolog.Logger

	mu      sync.Mutex
	applied *model.AppliedCoupon
	lastErr error
	busy    bool
	// gen changes on Remove and Restore; an Apply that started under an
	// older generation drops its result.
	gen uint64
}

// NewEngine creates a discount engine backed by validator.
func NewEngine(validator Validator, logger zerolog.Logger) *Engine {
	return &Engine{
		validator: validator,
		logger:    logger.With().Str("component", "discount-engine").Logger(),
	}
}

// Apply validates code against subtotal and makes it the active coupon.
//
// The previously applied coupon is cleared as soon as the request starts, so
// a rejected code leaves no coupon applied. Only one Apply runs at a time;
// a concurrent call fails with model.ErrBusy and changes nothing. When Remove
// or Restore runs while the request is in flight, the answer is discarded and
// model.ErrCouponDiscarded is returned.
func (e *Engine) Apply(ctx context.Context, code string, subtotal decimal.Decimal) (*model.AppliedCoupon, error) {
	code = NormalizeCode(code)

	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return nil, model.ErrBusy
	}
	if code == "" {
		err := &model.CouponRejectionError{Reason: MsgEmptyCode}
		e.lastErr = err
		e.mu.Unlock()
		return nil, err
	}
	e.busy = true
	e.applied = nil
	e.lastErr = nil
	gen := e.gen
	e.mu.Unlock()

	applied, err := e.validate(ctx, code, subtotal)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy = false
	if e.gen != gen {
		e.logger.Debug().Str("code", code).Msg("coupon answer discarded, checkout changed")
		return nil, model.ErrCouponDiscarded
	}
	if err != nil {
		e.lastErr = err
		e.logger.Warn().Err(err).Str("code", code).Msg("coupon rejected")
		return nil, err
	}
	e.applied = applied
	e.logger.Debug().
		Str("code", applied.Code).
		Str("discount", applied.DiscountAmount.StringFixed(2)).
		Msg("coupon applied")
	c := *applied
	return &c, nil
}

func (e *Engine) validate(ctx context.Context, code string, subtotal decimal.Decimal) (*model.AppliedCoupon, error) {
	result, err := e.validator.ValidateCoupon(ctx, code, subtotal)
	if err != nil {
		reason := model.UpstreamDetail(err)
		if reason == "" {
			reason = MsgInvalidCode
		}
		var netErr *model.NetworkError
		if errors.As(err, &netErr) {
			e.logger.Error().Err(err).Str("code", code).Msg("coupon validation unavailable")
		}
		return nil, &model.CouponRejectionError{Code: code, Reason: reason, Err: err}
	}
	if result == nil || !result.Valid || !result.DiscountAmount.IsPositive() {
		return nil, &model.CouponRejectionError{Code: code, Reason: MsgInvalidCode}
	}

	applied := &model.AppliedCoupon{
		Code:           result.Code,
		DiscountType:   result.DiscountType,
		DiscountValue:  result.DiscountValue,
		DiscountAmount: decimal.Min(result.DiscountAmount, subtotal),
		Description:    result.Description,
	}
	if applied.Code == "" {
		applied.Code = code
	}
	return applied, nil
}

// Remove clears the active coupon and any rejection message.
func (e *Engine) Remove() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applied = nil
	e.lastErr = nil
	e.gen++
}

// Applied returns a copy of the active coupon, or nil.
func (e *Engine) Applied() *model.AppliedCoupon {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.applied == nil {
		return nil
	}
	c := *e.applied
	return &c
}

// Err returns the rejection from the last Apply, if it failed.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Busy reports whether a validation request is in flight.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

// Restore reinstates a previously applied coupon without contacting the backend.
func (e *Engine) Restore(c *model.AppliedCoupon) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen++
	if c == nil {
		e.applied = nil
		return
	}
	cp := *c
	e.applied = &cp
}

// Discount returns the amount the active coupon takes off subtotal. The
// amount never exceeds subtotal.
func (e *Engine) Discount(subtotal decimal.Decimal) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.applied == nil || !subtotal.IsPositive() {
		return decimal.Zero
	}
	return decimal.Min(e.applied.DiscountAmount, subtotal)
}
