package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kart-checkout/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// sessionRepository implements the SessionRepository interface using PostgreSQL.
type sessionRepository struct {
	pool   *pgxpool.Pool
	tokens *TokenCipher
	logger zerolog.Logger
}

// NewSessionRepository creates a new PostgreSQL-backed session repository.
// Shopper tokens are stored encrypted with tokens.
func NewSessionRepository(pool *pgxpool.Pool, tokens *TokenCipher, logger zerolog.Logger) SessionRepository {
	return &sessionRepository{
		pool:   pool,
		tokens: tokens,
		logger: logger.With().Str("repository", "session").Logger(),
	}
}

// Save upserts the snapshot.
func (r *sessionRepository) Save(ctx context.Context, snap *model.SessionSnapshot) error {
	items, err := json.Marshal(snap.Items)
	if err != nil {
		return fmt.Errorf("failed to encode items: %w", err)
	}
	draft, err := json.Marshal(snap.Draft)
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}
	coupon, err := nullableJSON(snap.Coupon)
	if err != nil {
		return fmt.Errorf("failed to encode coupon: %w", err)
	}
	customer, err := nullableJSON(snap.Customer)
	if err != nil {
		return fmt.Errorf("failed to encode customer: %w", err)
	}
	token, err := r.tokens.Seal(snap.AuthToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt auth token: %w", err)
	}

	query := `
		INSERT INTO checkout_sessions
			(id, step, items, subtotal, draft, coupon, auth_token, customer, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			step = EXCLUDED.step,
			items = EXCLUDED.items,
			subtotal = EXCLUDED.subtotal,
			draft = EXCLUDED.draft,
			coupon = EXCLUDED.coupon,
			auth_token = EXCLUDED.auth_token,
			customer = EXCLUDED.customer,
			updated_at = EXCLUDED.updated_at,
			expires_at = EXCLUDED.expires_at
	`

	_, err = r.pool.Exec(ctx, query,
		snap.ID,
		int16(snap.Step),
		items,
		snap.Subtotal,
		draft,
		coupon,
		token,
		customer,
		snap.CreatedAt,
		snap.UpdatedAt,
		snap.ExpiresAt,
	)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("session_id", snap.ID.String()).
			Msg("failed to save session")
		return fmt.Errorf("failed to save session: %w", err)
	}

	r.logger.Debug().
		Str("session_id", snap.ID.String()).
		Str("step", snap.Step.String()).
		Msg("session saved")

	return nil
}

// Get retrieves an unexpired session.
func (r *sessionRepository) Get(ctx context.Context, id uuid.UUID) (*model.SessionSnapshot, error) {
	query := `
		SELECT id, step, items, subtotal, draft, coupon, auth_token, customer, created_at, updated_at, expires_at
		FROM checkout_sessions
		WHERE id = $1 AND expires_at > NOW()
	`

	var (
		snap                             model.SessionSnapshot
		step                             int16
		items, draft, coupon, customer []byte
		token                          string
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&snap.ID,
		&step,
		&items,
		&snap.Subtotal,
		&draft,
		&coupon,
		&token,
		&customer,
		&snap.CreatedAt,
		&snap.UpdatedAt,
		&snap.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Str("session_id", id.String()).Msg("session not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("session_id", id.String()).Msg("failed to query session")
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	snap.Step = model.Step(step)
	if err := json.Unmarshal(items, &snap.Items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	if err := json.Unmarshal(draft, &snap.Draft); err != nil {
		return nil, fmt.Errorf("failed to decode draft: %w", err)
	}
	if len(coupon) > 0 {
		if err := json.Unmarshal(coupon, &snap.Coupon); err != nil {
			return nil, fmt.Errorf("failed to decode coupon: %w", err)
		}
	}
	if len(customer) > 0 {
		if err := json.Unmarshal(customer, &snap.Customer); err != nil {
			return nil, fmt.Errorf("failed to decode customer: %w", err)
		}
	}

	// A token sealed under another key continues the checkout as a guest.
	snap.AuthToken, err = r.tokens.Open(token)
	if err != nil {
		r.logger.Warn().Err(err).Str("session_id", id.String()).Msg("dropping unreadable auth token")
		snap.AuthToken = ""
		snap.Customer = nil
	}

	return &snap, nil
}

// Delete removes a session.
func (r *sessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM checkout_sessions WHERE id = $1`, id); err != nil {
		r.logger.Error().Err(err).Str("session_id", id.String()).Msg("failed to delete session")
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions that expired before now.
func (r *sessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM checkout_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to delete expired sessions")
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// nullableJSON encodes v, mapping a nil pointer to SQL NULL.
func nullableJSON[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
