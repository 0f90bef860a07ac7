package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionSchema = `
	CREATE TABLE IF NOT EXISTS checkout_sessions (
		id UUID PRIMARY KEY,
		step SMALLINT NOT NULL CHECK (step BETWEEN 0 AND 3),
		items JSONB NOT NULL,
		subtotal NUMERIC(12,2) NOT NULL CHECK (subtotal >= 0),
		draft JSONB NOT NULL,
		coupon JSONB,
		auth_token TEXT NOT NULL DEFAULT '',
		customer JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_checkout_sessions_expires_at ON checkout_sessions (expires_at);
`

// EnsureSchema creates the session table when it does not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, sessionSchema); err != nil {
		return fmt.Errorf("failed to create session schema: %w", err)
	}
	return nil
}
