package service

import (
	"context"

	"kart-checkout/internal/checkout"
	"kart-checkout/internal/model"

	"github.com/google/uuid"
)

// CheckoutService owns the live checkout sessions.
type CheckoutService interface {
	// Create starts a checkout over items for the shopper holding token.
	// An empty token means a guest.
	Create(ctx context.Context, token string, items []model.LineItem) (*checkout.Flow, error)

	// Get returns the session with id, restoring it from storage when it is
	// not live. Returns model.ErrSessionNotFound for unknown or expired IDs.
	Get(ctx context.Context, id uuid.UUID) (*checkout.Flow, error)

	// Delete discards a session.
	Delete(ctx context.Context, id uuid.UUID) error

	// Sweep drops expired sessions and reports how many stored ones were removed.
	Sweep(ctx context.Context) (int64, error)
}
