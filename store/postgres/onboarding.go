package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/awe-platform/authcore/store"
)

// Onboarding implements store.Onboarding on pgxpool.
type Onboarding struct {
	pool *pgxpool.Pool
}

func NewOnboarding(pool *pgxpool.Pool) *Onboarding {
	return &Onboarding{pool: pool}
}

func (r *Onboarding) Ensure(ctx context.Context, userID string) error {
	query := `INSERT INTO onboarding (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("ensure onboarding: %w", err)
	}
	return nil
}

func (r *Onboarding) Completed(ctx context.Context, userID string) (bool, error) {
	var done bool
	err := r.pool.QueryRow(ctx, `SELECT completed FROM onboarding WHERE user_id = $1`, userID).Scan(&done)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("onboarding status: %w", err)
	}
	return done, nil
}

func (r *Onboarding) MarkCompleted(ctx context.Context, userID string) error {
	query := `UPDATE onboarding SET completed = TRUE, completed_at = NOW() WHERE user_id = $1`
	tag, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("complete onboarding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
