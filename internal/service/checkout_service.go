package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kart-checkout/internal/auth"
	"kart-checkout/internal/checkout"
	"kart-checkout/internal/model"
	"kart-checkout/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const persistTimeout = 5 * time.Second

type liveSession struct {
	flow        *checkout.Flow
	expiresAt   time.Time
	unsubscribe func()

	// saves orders snapshot capture and write, so an older snapshot never
	// lands after a newer one.
	saves sync.Mutex
}

// checkoutService implements CheckoutService.
type checkoutService struct {
	repo   repository.SessionRepository
	deps   checkout.Dependencies
	opts   checkout.Options
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger

	restores singleflight.Group

	mu   sync.Mutex
	live map[uuid.UUID]*liveSession
}

// NewCheckoutService creates a new checkout service. Every state change of a
// session is written through to repo and extends its lifetime by ttl.
func NewCheckoutService(
	repo repository.SessionRepository,
	deps checkout.Dependencies,
	opts checkout.Options,
	ttl time.Duration,
	logger zerolog.Logger,
) CheckoutService {
	return &checkoutService{
		repo:   repo,
		deps:   deps,
		opts:   opts,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With().Str("service", "checkout").Logger(),
		live:   make(map[uuid.UUID]*liveSession),
	}
}

// Create starts a new checkout session.
func (s *checkoutService) Create(ctx context.Context, token string, items []model.LineItem) (*checkout.Flow, error) {
	session := auth.NewTokenSession(token, nil)
	flow := checkout.NewFlow(uuid.New(), items, session, s.deps, s.opts, s.logger)

	ls := s.track(flow)
	flow.Start(ctx)

	if err := s.persist(ctx, ls); err != nil {
		s.forget(flow.ID())
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	s.logger.Info().
		Str("session_id", flow.ID().String()).
		Int("item_count", len(items)).
		Bool("authenticated", token != "").
		Msg("checkout session created")

	return flow, nil
}

// Get returns a live session or restores a stored one.
func (s *checkoutService) Get(ctx context.Context, id uuid.UUID) (*checkout.Flow, error) {
	if flow := s.lookup(id); flow != nil {
		return flow, nil
	}

	v, err, _ := s.restores.Do(id.String(), func() (any, error) {
		if flow := s.lookup(id); flow != nil {
			return flow, nil
		}
		return s.restore(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*checkout.Flow), nil
}

func (s *checkoutService) restore(ctx context.Context, id uuid.UUID) (*checkout.Flow, error) {
	snap, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkout session: %w", err)
	}
	if snap == nil {
		s.logger.Debug().Str("session_id", id.String()).Msg("checkout session not found")
		return nil, model.ErrSessionNotFound
	}

	session := auth.NewTokenSession(snap.AuthToken, snap.Customer)
	flow := checkout.NewFlow(snap.ID, snap.Items, session, s.deps, s.opts, s.logger)
	flow.Restore(*snap)

	s.track(flow)
	flow.Start(ctx)

	s.logger.Debug().
		Str("session_id", id.String()).
		Str("step", snap.Step.String()).
		Msg("checkout session restored")

	return flow, nil
}

// Delete discards a session.
func (s *checkoutService) Delete(ctx context.Context, id uuid.UUID) error {
	s.forget(id)
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete checkout session: %w", err)
	}
	s.logger.Debug().Str("session_id", id.String()).Msg("checkout session deleted")
	return nil
}

// Sweep drops expired sessions.
func (s *checkoutService) Sweep(ctx context.Context) (int64, error) {
	now := s.now()

	s.mu.Lock()
	var expired []*liveSession
	for id, ls := range s.live {
		if !ls.expiresAt.After(now) {
			expired = append(expired, ls)
			delete(s.live, id)
		}
	}
	s.mu.Unlock()

	for _, ls := range expired {
		ls.unsubscribe()
	}

	removed, err := s.repo.DeleteExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep checkout sessions: %w", err)
	}

	if len(expired) > 0 || removed > 0 {
		s.logger.Info().
			Int("live_expired", len(expired)).
			Int64("stored_removed", removed).
			Msg("expired checkout sessions swept")
	}
	return removed, nil
}

func (s *checkoutService) lookup(id uuid.UUID) *checkout.Flow {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, ok := s.live[id]
	if !ok {
		return nil
	}
	if !ls.expiresAt.After(s.now()) {
		return nil
	}
	return ls.flow
}

// track makes flow live and persists every state change it publishes.
func (s *checkoutService) track(flow *checkout.Flow) *liveSession {
	ls := &liveSession{flow: flow, expiresAt: s.now().Add(s.ttl)}
	ls.unsubscribe = flow.Subscribe(func(checkout.State) {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := s.persist(ctx, ls); err != nil {
			s.logger.Error().Err(err).Str("session_id", flow.ID().String()).Msg("failed to persist checkout session")
		}
	})

	s.mu.Lock()
	if prev, ok := s.live[flow.ID()]; ok {
		prev.unsubscribe()
	}
	s.live[flow.ID()] = ls
	s.mu.Unlock()
	return ls
}

func (s *checkoutService) forget(id uuid.UUID) {
	s.mu.Lock()
	ls, ok := s.live[id]
	delete(s.live, id)
	s.mu.Unlock()
	if ok {
		ls.unsubscribe()
	}
}

// persist saves the current snapshot and extends the session's lifetime.
// Saves of one session run one at a time, each taking its snapshot under the
// same lock.
func (s *checkoutService) persist(ctx context.Context, ls *liveSession) error {
	ls.saves.Lock()
	defer ls.saves.Unlock()

	flow := ls.flow
	now := s.now().UTC()
	snap := flow.Snapshot()
	snap.UpdatedAt = now
	snap.ExpiresAt = now.Add(s.ttl)

	if err := s.repo.Save(ctx, &snap); err != nil {
		return err
	}

	s.mu.Lock()
	if cur, ok := s.live[flow.ID()]; ok && cur == ls {
		ls.expiresAt = snap.ExpiresAt
	}
	s.mu.Unlock()
	return nil
}
