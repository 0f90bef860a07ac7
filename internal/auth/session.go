// Package auth models the shopper's authenticated session as a capability
// handed to the checkout flow.
package auth

import (
	"sync"

	"kart-checkout/internal/model"
)

// Session is the shopper's sign-in state.
type Session interface {
	// Token returns the bearer token, or "" when signed out.
	Token() string
	// Customer returns the signed-in customer, or nil.
	Customer() *model.Customer
	// IsAuthenticated reports whether a token is present.
	IsAuthenticated() bool
	// Establish signs the shopper in.
	Establish(token string, customer model.Customer)
}

// TokenSession is an in-memory Session.
type TokenSession struct {
	mu       sync.RWMutex
	token    string
	customer *model.Customer
}

// NewTokenSession creates a session. An empty token yields a signed-out session.
func NewTokenSession(token string, customer *model.Customer) *TokenSession {
	s := &TokenSession{token: token}
	if customer != nil {
		c := *customer
		s.customer = &c
	}
	return s
}

func (s *TokenSession) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *TokenSession) Customer() *model.Customer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.customer == nil {
		return nil
	}
	c := *s.customer
	return &c
}

func (s *TokenSession) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

func (s *TokenSession) Establish(token string, customer model.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.customer = &customer
}

// SetCustomer attaches a profile to an already authenticated session.
func (s *TokenSession) SetCustomer(customer model.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customer = &customer
}
