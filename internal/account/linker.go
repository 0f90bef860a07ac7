// Package account creates customer accounts inline during checkout.
package account

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode"

	"kart-checkout/internal/auth"
	"kart-checkout/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// MsgRegistrationFailed is shown when the backend gives no reason.
const MsgRegistrationFailed = "Registration failed"

// Registry is the customer directory of the shop backend.
type Registry interface {
	// EmailExists reports whether a customer with email is registered.
	EmailExists(ctx context.Context, email string) (bool, error)
	// RegisterCustomer creates a customer. Requests repeating idempotencyKey
	// must not create a second account.
	RegisterCustomer(ctx context.Context, req model.RegisterRequest, idempotencyKey string) (*model.Registration, error)
}

// Linker registers a customer at most once per checkout attempt and signs
// the shopper in on success.
type Linker struct {
	registry Registry
	session  auth.Session
	logger   zerolog.Logger

	group singleflight.Group

	mu   sync.Mutex
	keys map[string]string
	done map[string]*model.Registration
}

// NewLinker creates a linker for one checkout attempt.
func NewLinker(registry Registry, session auth.Session, logger zerolog.Logger) *Linker {
	return &Linker{
		registry: registry,
		session:  session,
		logger:   logger.With().Str("component", "account-linker").Logger(),
		keys:     make(map[string]string),
		done:     make(map[string]*model.Registration),
	}
}

// SplitName splits a full name at the first whitespace into first and last name.
func SplitName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	i := strings.IndexFunc(full, unicode.IsSpace)
	if i < 0 {
		return full, ""
	}
	return full[:i], strings.TrimSpace(full[i:])
}

// CheckEmail reports whether email already belongs to a customer.
func (l *Linker) CheckEmail(ctx context.Context, email string) (bool, error) {
	return l.registry.EmailExists(ctx, strings.TrimSpace(email))
}

// Register creates the account described by contact and credentials.
//
// Concurrent calls for the same email share one request. A successful
// registration is remembered, so later calls return it without contacting
// the backend. Failed attempts are retried with the same idempotency key.
func (l *Linker) Register(ctx context.Context, contact model.Contact, acct model.AccountRequest) (*model.Registration, error) {
	email := model.NormalizeEmail(contact.Email)

	l.mu.Lock()
	if reg, ok := l.done[email]; ok {
		l.mu.Unlock()
		return reg, nil
	}
	key, ok := l.keys[email]
	if !ok {
		key = uuid.NewString()
		l.keys[email] = key
	}
	l.mu.Unlock()

	v, err, shared := l.group.Do(email, func() (any, error) {
		first, last := SplitName(contact.Name)
		reg, err := l.registry.RegisterCustomer(ctx, model.RegisterRequest{
			Email:     strings.TrimSpace(contact.Email),
			Password:  acct.Password,
			FirstName: first,
			LastName:  last,
			Phone:     strings.TrimSpace(contact.Phone),
		}, key)
		if err != nil {
			return nil, err
		}

		l.mu.Lock()
		l.done[email] = reg
		l.mu.Unlock()
		l.session.Establish(reg.Token, reg.Customer)
		return reg, nil
	})
	if err != nil {
		msg := model.UpstreamDetail(err)
		if msg == "" {
			msg = MsgRegistrationFailed
		}
		var netErr *model.NetworkError
		if errors.As(err, &netErr) {
			l.logger.Error().Err(err).Msg("registration request failed")
		} else {
			l.logger.Warn().Err(err).Msg("registration rejected")
		}
		return nil, &model.RegistrationError{Message: msg, Err: err}
	}

	reg := v.(*model.Registration)
	l.logger.Info().
		Str("customer_id", reg.Customer.ID).
		Bool("shared", shared).
		Msg("customer registered")
	return reg, nil
}
