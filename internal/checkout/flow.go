// Package checkout drives a shopper from cart to payment redirect.
package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"kart-checkout/internal/account"
	"kart-checkout/internal/auth"
	"kart-checkout/internal/cart"
	"kart-checkout/internal/coupon"
	"kart-checkout/internal/model"
	"kart-checkout/internal/shipping"
	"kart-checkout/internal/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Keys for errors that belong to a step rather than a single field.
const (
	ErrorKeyRegistration = "registration"
	ErrorKeySubmit       = "submit"
)

// Dependencies are the backend collaborators of a flow.
type Dependencies struct {
	Rates    shipping.RateSource
	Coupons  coupon.Validator
	Registry account.Registry
	Orders   OrderGateway
}

// Options configure a flow.
type Options struct {
	OriginURL      string
	DefaultCountry string
}

// Flow is one shopper's checkout: the cart, the draft order and the step
// they are on. All methods are safe for concurrent use.
type Flow struct {
	id        uuid.UUID
	createdAt time.Time
	opts      Options
	deps      Dependencies
	session   auth.Session
	cart      *cart.Store
	coupons   *coupon.Engine
	submitter *Submitter
	logger    zerolog.Logger

	mu        sync.Mutex
	step      model.Step
	draft     *model.DraftOrder
	errors    model.ValidationErrors
	rates     []model.ShippingRate
	status    model.CheckoutStatus
	email     emailCheck
	advancing bool
	attemptID string
	linker    *account.Linker
	redirect  *model.CheckoutRedirect

	listenerMu sync.Mutex
	listeners  map[int]func(State)
	nextID     int
}

// NewFlow starts a checkout over items for the shopper behind session.
func NewFlow(id uuid.UUID, items []model.LineItem, session auth.Session, deps Dependencies, opts Options, logger zerolog.Logger) *Flow {
	if opts.DefaultCountry == "" {
		opts.DefaultCountry = model.DefaultCountry
	}
	if session == nil {
		session = auth.NewTokenSession("", nil)
	}
	logger = logger.With().Str("component", "checkout-flow").Str("session_id", id.String()).Logger()

	f := &Flow{
		id:        id,
		createdAt: time.Now().UTC(),
		opts:      opts,
		deps:      deps,
		session:   session,
		cart:      cart.New(items...),
		coupons:   coupon.NewEngine(deps.Coupons, logger),
		submitter: NewSubmitter(deps.Orders, opts.OriginURL, logger),
		logger:    logger,
		step:      model.StepCart,
		draft:     model.NewDraftOrder(opts.DefaultCountry),
		errors:    model.ValidationErrors{},
		attemptID: uuid.NewString(),
		linker:    account.NewLinker(deps.Registry, session, logger),
		listeners: make(map[int]func(State)),
	}
	f.cart.OnChange(f.onCartChange)
	return f
}

// ID returns the session identifier.
func (f *Flow) ID() uuid.UUID { return f.id }

// Cart returns the cart store owned by this flow.
func (f *Flow) Cart() *cart.Store { return f.cart }

// Session returns the shopper's authentication capability.
func (f *Flow) Session() auth.Session { return f.session }

// Start fetches the rate table and the payment status and, for signed-in
// shoppers, prefills the draft from their profile. Failures leave defaults
// in place.
func (f *Flow) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)

	if f.deps.Rates != nil {
		g.Go(func() error {
			rates, err := f.deps.Rates.Rates(gctx)
			if err != nil {
				f.logger.Warn().Err(err).Msg("failed to fetch shipping rates, using default cost")
				return nil
			}
			f.mu.Lock()
			f.rates = rates
			f.mu.Unlock()
			return nil
		})
	}

	if f.deps.Orders != nil {
		g.Go(func() error {
			status, err := f.deps.Orders.CheckoutStatus(gctx)
			if err != nil {
				f.logger.Warn().Err(err).Msg("failed to fetch checkout status")
				return nil
			}
			f.mu.Lock()
			f.status = *status
			f.mu.Unlock()
			return nil
		})

		if token := f.session.Token(); token != "" {
			g.Go(func() error {
				profile, err := f.deps.Orders.CustomerProfile(gctx, token)
				if err != nil {
					f.logger.Warn().Err(err).Msg("failed to fetch customer profile")
					return nil
				}
				f.session.Establish(token, *profile)
				f.mu.Lock()
				prefill(f.draft, profile)
				f.mu.Unlock()
				return nil
			})
		}
	}

	_ = g.Wait()
	f.publish()
}

// prefill copies profile data into empty draft fields.
func prefill(d *model.DraftOrder, c *model.Customer) {
	fill := func(dst *string, v string) {
		if strings.TrimSpace(*dst) == "" && v != "" {
			*dst = v
		}
	}
	fill(&d.Contact.Name, c.FullName())
	fill(&d.Contact.Email, c.Email)
	fill(&d.Contact.Phone, c.Phone)
	fill(&d.ShippingAddress.Street, c.DefaultAddress)
	fill(&d.ShippingAddress.City, c.DefaultCity)
	fill(&d.ShippingAddress.PostalCode, c.DefaultPostal)
	if c.DefaultCountry != "" {
		d.ShippingAddress.Country = c.DefaultCountry
	}
	if c.BillingSameAsShipping != nil && !*c.BillingSameAsShipping {
		d.BillingSameAsShipping = false
		fill(&d.BillingAddress.Street, c.BillingAddress)
		fill(&d.BillingAddress.City, c.BillingCity)
		fill(&d.BillingAddress.PostalCode, c.BillingPostal)
		if c.BillingCountry != "" {
			d.BillingAddress.Country = c.BillingCountry
		}
	}
}

// Advance leaves the current step when its validation passes.
//
// Validation errors replace the previous error set. Leaving Contact with an
// account request registers the customer first; leaving Payment submits the
// order and, on success, starts a fresh draft. Failures keep the step.
func (f *Flow) Advance(ctx context.Context) (State, error) {
	f.mu.Lock()
	if f.advancing {
		f.mu.Unlock()
		return f.State(), model.ErrBusy
	}

	in := f.inputLocked()
	h := stepHandlers[in.step]
	errs := in.validate()
	f.errors = errs
	if len(errs) > 0 {
		f.mu.Unlock()
		f.logger.Debug().Str("step", in.step.String()).Strs("fields", errs.Fields()).Msg("step blocked by validation")
		f.publish()
		if fe, ok := errs[validation.FieldEmail]; ok && fe.Code == model.FieldConflict {
			return f.State(), &model.AccountConflictError{Email: in.draft.Contact.Email, Fields: errs.Clone()}
		}
		return f.State(), &model.ValidationError{Step: in.step, Fields: errs.Clone()}
	}

	if !h.hasEffect(in) {
		next, _ := h.complete(ctx, f, in)
		f.step = next.next
		f.mu.Unlock()
		f.logger.Debug().Str("from", in.step.String()).Str("to", next.next.String()).Msg("step advanced")
		f.publish()
		return f.State(), nil
	}

	f.advancing = true
	f.mu.Unlock()
	f.publish()

	next, err := h.complete(ctx, f, in)

	f.mu.Lock()
	f.advancing = false
	if err != nil {
		f.errors = model.ValidationErrors{}
		f.errors.Add(scopeKey(in.step), model.FieldFailed, userMessage(err))
		f.mu.Unlock()
		f.publish()
		return f.State(), err
	}

	if next.redirect != nil {
		f.finishLocked(next.redirect)
	} else if f.step == in.step {
		f.step = next.next
	}
	f.mu.Unlock()
	f.logger.Debug().Str("from", in.step.String()).Str("to", next.next.String()).Msg("step advanced")
	f.publish()
	return f.State(), nil
}

// Retreat moves one step back and clears all errors.
func (f *Flow) Retreat() (State, error) {
	f.mu.Lock()
	if f.advancing {
		f.mu.Unlock()
		return f.State(), model.ErrBusy
	}
	if f.step > model.StepCart {
		f.step--
	}
	f.errors = model.ValidationErrors{}
	f.mu.Unlock()
	f.publish()
	return f.State(), nil
}

func (f *Flow) inputLocked() *stepInput {
	snap := f.cart.Snapshot()
	return &stepInput{
		step:            f.step,
		draft:           f.draft.Clone(),
		cart:            snap,
		coupon:          f.coupons.Applied(),
		loggedIn:        f.session.IsAuthenticated(),
		emailRegistered: f.email.registered(f.draft.Contact.Email),
		attemptID:       f.attemptID,
		linker:          f.linker,
	}
}

// finishLocked discards the submitted draft and starts a new attempt.
func (f *Flow) finishLocked(redirect *model.CheckoutRedirect) {
	f.redirect = redirect
	f.resetDraftLocked()
	f.logger.Info().Bool("demo_mode", redirect.DemoMode).Msg("checkout handed off to payment")
}

func (f *Flow) resetDraftLocked() {
	f.draft = model.NewDraftOrder(f.opts.DefaultCountry)
	if c := f.session.Customer(); c != nil && f.session.IsAuthenticated() {
		prefill(f.draft, c)
	}
	f.step = model.StepCart
	f.errors = model.ValidationErrors{}
	f.coupons.Remove()
	f.email.reset()
	f.attemptID = uuid.NewString()
	f.linker = account.NewLinker(f.deps.Registry, f.session, f.logger)
}

func (f *Flow) onCartChange(snap model.CartSnapshot) {
	if snap.IsEmpty() {
		f.mu.Lock()
		f.resetDraftLocked()
		f.mu.Unlock()
		f.logger.Debug().Msg("cart emptied, draft discarded")
	}
	f.publish()
}

func scopeKey(step model.Step) string {
	if step.IsFinal() {
		return ErrorKeySubmit
	}
	return ErrorKeyRegistration
}

// userMessage is the text shown for a failed step side effect.
func userMessage(err error) string {
	var netErr *model.NetworkError
	var regErr *model.RegistrationError
	switch {
	case errors.As(err, &regErr):
		return regErr.Message
	case errors.As(err, &netErr):
		return MsgNetwork
	default:
		return err.Error()
	}
}

// SetContact replaces the contact details. Errors on edited fields are
// cleared; a changed email forgets the previous existence check.
func (f *Flow) SetContact(c model.Contact) (State, error) {
	f.mu.Lock()
	if f.advancing {
		f.mu.Unlock()
		return f.State(), model.ErrBusy
	}
	old := f.draft.Contact
	f.draft.Contact = c
	if old.Name != c.Name {
		delete(f.errors, validation.FieldName)
	}
	if old.Phone != c.Phone {
		delete(f.errors, validation.FieldPhone)
	}
	if old.Email != c.Email {
		delete(f.errors, validation.FieldEmail)
		if model.NormalizeEmail(old.Email) != model.NormalizeEmail(c.Email) {
			f.email.reset()
		}
	}
	f.mu.Unlock()
	f.publish()
	return f.State(), nil
}

// SetAccount opts into inline registration with the given credentials, or
// out of it when acct is nil.
func (f *Flow) SetAccount(acct *model.AccountRequest) (State, error) {
	f.mu.Lock()
	if f.advancing {
		f.mu.Unlock()
		return f.State(), model.ErrBusy
	}
	if acct == nil {
		f.draft.Account = nil
		if fe, ok := f.errors[validation.FieldEmail]; ok && fe.Code == model.FieldConflict {
			delete(f.errors, validation.FieldEmail)
		}
	} else {
		a := *acct
		f.draft.Account = &a
	}
	delete(f.errors, validation.FieldPassword)
	delete(f.errors, validation.FieldConfirmPassword)
	delete(f.errors, ErrorKeyRegistration)
	f.mu.Unlock()
	f.publish()
	return f.State(), nil
}

// ShippingDetails is the shipping step form.
type ShippingDetails struct {
	Address               model.Address `json:"shipping"`
	BillingSameAsShipping bool          `json:"billing_same_as_shipping"`
	BillingAddress        model.Address `json:"billing"`
	SaveAddress           bool          `json:"save_address"`
	Notes                 string        `json:"notes"`
}

// SetShipping replaces the address block of the draft.
func (f *Flow) SetShipping(s ShippingDetails) (State, error) {
	f.mu.Lock()
	if f.advancing {
		f.mu.Unlock()
		return f.State(), model.ErrBusy
	}
	if s.Address.Country == "" {
		s.Address.Country = f.opts.DefaultCountry
	}
	if s.BillingAddress.Country == "" {
		s.BillingAddress.Country = f.opts.DefaultCountry
	}
	old := f.draft
	clearIfChanged(f.errors, old.ShippingAddress, s.Address,
		validation.FieldAddress, validation.FieldCity, validation.FieldPostal)
	clearIfChanged(f.errors, old.BillingAddress, s.BillingAddress,
		validation.FieldBillingAddress, validation.FieldBillingCity, validation.FieldBillingPostal)
	if s.BillingSameAsShipping {
		delete(f.errors, validation.FieldBillingAddress)
		delete(f.errors, validation.FieldBillingCity)
		delete(f.errors, validation.FieldBillingPostal)
	}

	f.draft.ShippingAddress = s.Address
	f.draft.BillingSameAsShipping = s.BillingSameAsShipping
	f.draft.BillingAddress = s.BillingAddress
	f.draft.SaveAddress = s.SaveAddress
	f.draft.Notes = s.Notes
	f.mu.Unlock()
	f.publish()
	return f.State(), nil
}

func clearIfChanged(errs model.ValidationErrors, old, cur model.Address, street, city, postal string) {
	if old.Street != cur.Street {
		delete(errs, street)
	}
	if old.City != cur.City {
		delete(errs, city)
	}
	if old.PostalCode != cur.PostalCode {
		delete(errs, postal)
	}
}

// PaymentDetails is the payment step form.
type PaymentDetails struct {
	AgeVerified   bool `json:"age_verified"`
	TermsAccepted bool `json:"terms_accepted"`
}

// SetPayment records the legal confirmations.
func (f *Flow) SetPayment(p PaymentDetails) (State, error) {
	f.mu.Lock()
	if f.advancing {
		f.mu.Unlock()
		return f.State(), model.ErrBusy
	}
	if p.AgeVerified != f.draft.AgeVerified {
		delete(f.errors, validation.FieldAge)
	}
	if p.TermsAccepted != f.draft.TermsAccepted {
		delete(f.errors, validation.FieldTerms)
	}
	f.draft.AgeVerified = p.AgeVerified
	f.draft.TermsAccepted = p.TermsAccepted
	f.mu.Unlock()
	f.publish()
	return f.State(), nil
}

// ApplyCoupon validates code against the current subtotal.
func (f *Flow) ApplyCoupon(ctx context.Context, code string) (State, error) {
	if f.isAdvancing() {
		return f.State(), model.ErrBusy
	}
	_, err := f.coupons.Apply(ctx, code, f.cart.Subtotal())
	f.publish()
	return f.State(), err
}

// RemoveCoupon drops the applied coupon.
func (f *Flow) RemoveCoupon() (State, error) {
	if f.isAdvancing() {
		return f.State(), model.ErrBusy
	}
	f.coupons.Remove()
	f.publish()
	return f.State(), nil
}

// isAdvancing reports whether a step side effect is in flight. The draft and
// coupon are frozen until it returns.
func (f *Flow) isAdvancing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.advancing
}

// Subscribe registers fn to receive every new state. The returned function
// unsubscribes.
func (f *Flow) Subscribe(fn func(State)) func() {
	f.listenerMu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	f.listenerMu.Unlock()

	return func() {
		f.listenerMu.Lock()
		delete(f.listeners, id)
		f.listenerMu.Unlock()
	}
}

func (f *Flow) publish() {
	f.listenerMu.Lock()
	fns := make([]func(State), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.listenerMu.Unlock()
	if len(fns) == 0 {
		return
	}

	state := f.State()
	for _, fn := range fns {
		fn(state)
	}
}

// Snapshot returns the persistable form of the flow.
func (f *Flow) Snapshot() model.SessionSnapshot {
	snap := f.cart.Snapshot()

	f.mu.Lock()
	defer f.mu.Unlock()
	return model.SessionSnapshot{
		ID:        f.id,
		Step:      f.step,
		Items:     snap.Items,
		Subtotal:  snap.Subtotal,
		Draft:     f.draft.Clone(),
		Coupon:    f.coupons.Applied(),
		AuthToken: f.session.Token(),
		Customer:  f.session.Customer(),
		CreatedAt: f.createdAt,
	}
}

// Restore reinstates step, draft and coupon from a snapshot. The cart and
// session are expected to be rebuilt by the caller from the same snapshot.
func (f *Flow) Restore(snap model.SessionSnapshot) {
	f.mu.Lock()
	d := snap.Draft.Clone()
	if d.ShippingAddress.Country == "" {
		d.ShippingAddress.Country = f.opts.DefaultCountry
	}
	if d.BillingAddress.Country == "" {
		d.BillingAddress.Country = f.opts.DefaultCountry
	}
	f.draft = &d
	f.step = model.StepCart
	if snap.Step.Valid() && !f.cart.Snapshot().IsEmpty() {
		f.step = snap.Step
	}
	if !snap.CreatedAt.IsZero() {
		f.createdAt = snap.CreatedAt
	}
	f.coupons.Restore(snap.Coupon)
	f.mu.Unlock()
}
