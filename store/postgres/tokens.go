package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/awe-platform/authcore/store"
)

// Tokens implements store.Tokens on pgxpool. Rows carry only the sha-256
// of the raw secret; the secret itself never reaches the database.
type Tokens struct {
	pool *pgxpool.Pool
}

func NewTokens(pool *pgxpool.Pool) *Tokens {
	return &Tokens{pool: pool}
}

// Create upserts on (kind, user_id): issuing a new token silently burns
// any older one of the same kind for that user.
func (r *Tokens) Create(ctx context.Context, kind store.TokenKind, userID, secretHash string, ttl time.Duration) error {
	query := `INSERT INTO auth_tokens (kind, user_id, secret_hash, expires_at)
		VALUES ($1, $2, $3, NOW() + $4)
		ON CONFLICT (kind, user_id)
		DO UPDATE SET secret_hash = EXCLUDED.secret_hash, expires_at = EXCLUDED.expires_at`
	if _, err := r.pool.Exec(ctx, query, kind, userID, secretHash, ttl); err != nil {
		return fmt.Errorf("create %s token: %w", kind, err)
	}
	return nil
}

func (r *Tokens) Consume(ctx context.Context, kind store.TokenKind, secretHash string) (string, error) {
	query := `DELETE FROM auth_tokens
		WHERE kind = $1 AND secret_hash = $2 AND expires_at > NOW()
		RETURNING user_id`
	var userID string
	err := r.pool.QueryRow(ctx, query, kind, secretHash).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("consume %s token: %w", kind, err)
	}
	return userID, nil
}
