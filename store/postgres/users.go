package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/awe-platform/authcore/rbac"
	"github.com/awe-platform/authcore/store"
)

// Users implements store.Users on pgxpool.
type Users struct {
	pool *pgxpool.Pool
}

func NewUsers(pool *pgxpool.Pool) *Users {
	return &Users{pool: pool}
}

const userColumns = `id, email, username, password_hash, roles, verified,
	COALESCE(mfa_secret, ''), mfa_confirmed, impersonating_user_id,
	last_login_at, created_at`

func scanUser(row pgx.Row) (*store.User, error) {
	var (
		u     store.User
		roles []string
		imp   *string
		last  *time.Time
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &roles, &u.Verified,
		&u.MFASecret, &u.MFAConfirmed, &imp, &last, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Roles = make([]rbac.Role, len(roles))
	for i, r := range roles {
		u.Roles[i] = rbac.Role(r)
	}
	if imp != nil {
		u.ImpersonatingUserID = *imp
	}
	if last != nil {
		u.LastLoginAt = *last
	}
	return &u, nil
}

func (r *Users) Create(ctx context.Context, u *store.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.Email = strings.ToLower(u.Email)

	roles := make([]string, len(u.Roles))
	for i, role := range u.Roles {
		roles[i] = string(role)
	}

	query := `INSERT INTO users
		(id, email, username, password_hash, roles, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query,
		u.ID, u.Email, u.Username, u.PasswordHash, roles, u.Verified, u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *Users) FindByEmail(ctx context.Context, email string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.pool.QueryRow(ctx, query, strings.ToLower(email)))
}

func (r *Users) FindByID(ctx context.Context, id string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *Users) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *Users) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at)
}

func (r *Users) SetVerified(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE users SET verified = TRUE WHERE id = $1`, id)
}

func (r *Users) SetMFASecret(ctx context.Context, id, secret string) error {
	query := `UPDATE users SET mfa_secret = $2, mfa_confirmed = FALSE WHERE id = $1`
	return r.exec(ctx, query, id, secret)
}

func (r *Users) ConfirmMFA(ctx context.Context, id string) error {
	query := `UPDATE users SET mfa_confirmed = TRUE WHERE id = $1 AND mfa_secret IS NOT NULL`
	return r.exec(ctx, query, id)
}

func (r *Users) SetImpersonation(ctx context.Context, adminID, targetID string) error {
	query := `UPDATE users SET impersonating_user_id = $2 WHERE id = $1`
	return r.exec(ctx, query, adminID, targetID)
}

func (r *Users) ClearImpersonation(ctx context.Context, adminID string) error {
	query := `UPDATE users SET impersonating_user_id = NULL WHERE id = $1`
	return r.exec(ctx, query, adminID)
}

// ResetPassword consumes the live reset token and rewrites the password
// hash inside one transaction, so a raced duplicate submission loses
// cleanly on the token delete.
func (r *Users) ResetPassword(ctx context.Context, secretHash, newHash string) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback(ctx)

	var userID string
	consume := `DELETE FROM auth_tokens
		WHERE kind = $1 AND secret_hash = $2 AND expires_at > NOW()
		RETURNING user_id`
	err = tx.QueryRow(ctx, consume, store.TokenReset, secretHash).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("consume reset token: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, newHash); err != nil {
		return "", fmt.Errorf("update password: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit reset: %w", err)
	}
	return userID, nil
}
