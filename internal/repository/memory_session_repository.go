package repository

import (
	"context"
	"sync"
	"time"

	"kart-checkout/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// memorySessionRepository keeps sessions in process memory.
type memorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]model.SessionSnapshot
	now      func() time.Time
	logger   zerolog.Logger
}

// NewMemorySessionRepository creates an in-memory session repository.
func NewMemorySessionRepository(logger zerolog.Logger) SessionRepository {
	return &memorySessionRepository{
		sessions: make(map[uuid.UUID]model.SessionSnapshot),
		now:      time.Now,
		logger:   logger.With().Str("repository", "session-memory").Logger(),
	}
}

func (r *memorySessionRepository) Save(_ context.Context, snap *model.SessionSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[snap.ID] = copySnapshot(snap)
	return nil
}

func (r *memorySessionRepository) Get(_ context.Context, id uuid.UUID) (*model.SessionSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.sessions[id]
	if !ok || !snap.ExpiresAt.After(r.now()) {
		return nil, nil
	}
	c := copySnapshot(&snap)
	return &c, nil
}

func (r *memorySessionRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *memorySessionRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, snap := range r.sessions {
		if !snap.ExpiresAt.After(now) {
			delete(r.sessions, id)
			n++
		}
	}
	if n > 0 {
		r.logger.Debug().Int64("count", n).Msg("expired sessions removed")
	}
	return n, nil
}

func copySnapshot(s *model.SessionSnapshot) model.SessionSnapshot {
	c := *s
	c.Items = append([]model.LineItem(nil), s.Items...)
	c.Draft = s.Draft.Clone()
	if s.Coupon != nil {
		coupon := *s.Coupon
		c.Coupon = &coupon
	}
	if s.Customer != nil {
		customer := *s.Customer
		c.Customer = &customer
	}
	return c
}
