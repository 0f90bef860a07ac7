package checkout

import (
	"context"

	"kart-checkout/internal/account"
	"kart-checkout/internal/model"
	"kart-checkout/internal/validation"
)

// stepInput is the consistent view a step handler works on. It is captured
// under the flow lock; handlers never touch flow state directly.
type stepInput struct {
	step            model.Step
	draft           model.DraftOrder
	cart            model.CartSnapshot
	coupon          *model.AppliedCoupon
	loggedIn        bool
	emailRegistered bool
	attemptID       string
	linker          *account.Linker
}

// validate returns the field errors blocking the step being left.
func (in *stepInput) validate() model.ValidationErrors {
	return validation.Step(in.step, &in.draft, in.cart, validation.ContactOptions{
		LoggedIn:        in.loggedIn,
		EmailRegistered: in.emailRegistered,
	})
}

// transition is the outcome of leaving a step.
type transition struct {
	next     model.Step
	redirect *model.CheckoutRedirect
}

// stepHandler owns the side effects of leaving one step.
type stepHandler interface {
	// hasEffect reports whether complete talks to the backend.
	hasEffect(in *stepInput) bool
	// complete runs once validation passed, outside the flow lock.
	complete(ctx context.Context, f *Flow, in *stepInput) (transition, error)
}

var stepHandlers = map[model.Step]stepHandler{
	model.StepCart:     cartStep{},
	model.StepContact:  contactStep{},
	model.StepShipping: shippingStep{},
	model.StepPayment:  paymentStep{},
}

func forward(in *stepInput) transition {
	return transition{next: in.step + 1}
}

type cartStep struct{}

func (cartStep) hasEffect(*stepInput) bool { return false }

func (cartStep) complete(_ context.Context, _ *Flow, in *stepInput) (transition, error) {
	return forward(in), nil
}

type contactStep struct{}

func (contactStep) hasEffect(in *stepInput) bool {
	return in.draft.WantsAccount() && !in.loggedIn
}

// complete registers the shopper when they asked for an account.
func (s contactStep) complete(ctx context.Context, _ *Flow, in *stepInput) (transition, error) {
	if !s.hasEffect(in) {
		return forward(in), nil
	}
	if _, err := in.linker.Register(ctx, in.draft.Contact, *in.draft.Account); err != nil {
		return transition{}, err
	}
	return forward(in), nil
}

type shippingStep struct{}

func (shippingStep) hasEffect(*stepInput) bool { return false }

func (shippingStep) complete(_ context.Context, _ *Flow, in *stepInput) (transition, error) {
	return forward(in), nil
}

type paymentStep struct{}

func (paymentStep) hasEffect(*stepInput) bool { return true }

// complete submits the order instead of moving to another step.
func (paymentStep) complete(ctx context.Context, f *Flow, in *stepInput) (transition, error) {
	redirect, err := f.submitter.Submit(ctx, Order{
		Draft:     in.draft,
		Cart:      in.cart,
		Coupon:    in.coupon,
		Session:   f.session,
		AttemptID: in.attemptID,
	})
	if err != nil {
		return transition{}, err
	}
	return transition{next: model.StepCart, redirect: redirect}, nil
}
