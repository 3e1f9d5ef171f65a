// Package store defines the durable-storage ports the auth engine depends
// on. The engine never talks to a database directly; it holds a Store and
// calls these interfaces with a bounded context. Implementations live in
// store/postgres (pgx) and store/memory (tests, demos).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/awe-platform/authcore/rbac"
)

var (
	// ErrNotFound is returned when a row does not exist. For single-use
	// tokens it also covers expired and already-consumed tokens; the
	// three cases are indistinguishable on purpose.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicate is returned by Users.Create when the email is taken.
	ErrDuplicate = errors.New("store: duplicate")
)

// User is the persisted account row. Email is stored lowercased; the
// engine normalizes before every call.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Roles        []rbac.Role
	Verified     bool

	// MFASecret is set at enrollment; MFAConfirmed flips only after the
	// owner has produced one valid code. Both must be true for a login
	// to demand a step-up.
	MFASecret    string
	MFAConfirmed bool

	// ImpersonatingUserID points at the account this user acts as. Only
	// ever set on SUPER_ADMIN rows.
	ImpersonatingUserID string

	LastLoginAt time.Time
	CreatedAt   time.Time
}

// MFAEnabled reports whether logins for this user require a TOTP code.
func (u *User) MFAEnabled() bool { return u.MFASecret != "" && u.MFAConfirmed }

// Users is the account repository.
type Users interface {
	// Create inserts the row, filling ID and CreatedAt if empty.
	// A taken email yields ErrDuplicate.
	Create(ctx context.Context, u *User) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)

	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	SetVerified(ctx context.Context, id string) error

	// SetMFASecret stores a pending secret and clears the confirmed flag;
	// ConfirmMFA flips it after a live code verified.
	SetMFASecret(ctx context.Context, id, secret string) error
	ConfirmMFA(ctx context.Context, id string) error

	SetImpersonation(ctx context.Context, adminID, targetID string) error
	ClearImpersonation(ctx context.Context, adminID string) error

	// ResetPassword consumes the live reset token identified by secretHash
	// and updates that user's password hash in one transaction, returning
	// the user id. A missing, expired or spent token is ErrNotFound and
	// leaves the password untouched.
	ResetPassword(ctx context.Context, secretHash, newHash string) (userID string, err error)
}

// TokenKind discriminates the single-use token table.
type TokenKind string

const (
	TokenVerification TokenKind = "verification"
	TokenReset        TokenKind = "reset"
)

// Tokens is the single-use token repository. Only the sha-256 of the raw
// secret is ever persisted; lookups are by that hash.
type Tokens interface {
	// Create stores a token, replacing any live token of the same kind
	// for the user.
	Create(ctx context.Context, kind TokenKind, userID, secretHash string, ttl time.Duration) error

	// Consume atomically deletes a live token and returns its owner.
	// Expired or unknown hashes are ErrNotFound.
	Consume(ctx context.Context, kind TokenKind, secretHash string) (userID string, err error)
}

// RoleCatalog is the role→permission mapping read by rbac.Resolver.
type RoleCatalog interface {
	rbac.Catalog
}

// Onboarding tracks the per-user onboarding row surfaced in LoginResult.
type Onboarding interface {
	// Ensure creates the row on first login; existing rows are untouched.
	Ensure(ctx context.Context, userID string) error
	Completed(ctx context.Context, userID string) (bool, error)
	MarkCompleted(ctx context.Context, userID string) error
}

// Store bundles every durable port the engine needs.
type Store struct {
	Users      Users
	Tokens     Tokens
	Roles      RoleCatalog
	Onboarding Onboarding
}
