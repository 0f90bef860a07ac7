package checkout

import (
	"context"
	"strings"

	"kart-checkout/internal/model"
	"kart-checkout/internal/validation"
)

// emailCheck tracks the latest email-existence lookup. Each lookup takes a
// new generation; results from older generations are dropped.
type emailCheck struct {
	gen      uint64
	email    string
	known    bool
	exists   bool
	checking bool
	cancel   context.CancelFunc
}

// registered reports whether email is known to belong to a customer.
func (e *emailCheck) registered(email string) bool {
	return e.known && e.exists && e.email == model.NormalizeEmail(email)
}

// reset cancels any lookup in flight and forgets the last result.
func (e *emailCheck) reset() {
	if e.cancel != nil {
		e.cancel()
	}
	e.gen++
	e.email = ""
	e.known = false
	e.exists = false
	e.checking = false
	e.cancel = nil
}

// EmailStatus is the observable part of the email check.
type EmailStatus struct {
	Checking bool `json:"checking"`
	Known    bool `json:"known"`
	Exists   bool `json:"exists"`
}

// CheckEmail looks up whether the draft email is already registered. It only
// runs for signed-out shoppers who asked for an account. A newer check or an
// email edit supersedes a running one; the superseded result is discarded.
func (f *Flow) CheckEmail(ctx context.Context) (State, error) {
	f.mu.Lock()
	email := strings.TrimSpace(f.draft.Contact.Email)
	if !f.draft.WantsAccount() || f.session.IsAuthenticated() || !strings.Contains(email, "@") {
		f.mu.Unlock()
		return f.State(), nil
	}

	f.email.reset()
	gen := f.email.gen
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	f.email.cancel = cancel
	f.email.checking = true
	linker := f.linker
	f.mu.Unlock()
	f.publish()

	exists, err := linker.CheckEmail(ctx, email)

	f.mu.Lock()
	if f.email.gen != gen {
		f.mu.Unlock()
		f.logger.Debug().Msg("discarding superseded email check")
		return f.State(), nil
	}
	f.email.checking = false
	f.email.cancel = nil
	if err != nil {
		f.mu.Unlock()
		f.logger.Warn().Err(err).Msg("email check failed")
		f.publish()
		return f.State(), nil
	}
	f.email.email = model.NormalizeEmail(email)
	f.email.known = true
	f.email.exists = exists
	if exists {
		f.errors.Add(validation.FieldEmail, model.FieldConflict, validation.MsgEmailRegistered)
	} else if fe, ok := f.errors[validation.FieldEmail]; ok && fe.Code == model.FieldConflict {
		delete(f.errors, validation.FieldEmail)
	}
	f.mu.Unlock()
	f.publish()
	return f.State(), nil
}
