package repository

import (
	"context"
	"time"

	"kart-checkout/internal/model"

	"github.com/google/uuid"
)

// SessionRepository defines the interface for checkout session persistence.
type SessionRepository interface {
	// Save inserts or replaces a session snapshot.
	Save(ctx context.Context, snap *model.SessionSnapshot) error

	// Get retrieves an unexpired session by ID. Returns nil, nil when the
	// session does not exist or has expired.
	Get(ctx context.Context, id uuid.UUID) (*model.SessionSnapshot, error)

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteExpired removes every session that expired before now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
