package authcore

import (
	"context"
	"errors"
	"strings"

	"github.com/awe-platform/authcore/event"
	"github.com/awe-platform/authcore/rbac"
	"github.com/awe-platform/authcore/store"
)

const minPasswordLength = 8

// Register creates an account with the default MEMBER role and issues a
// verification token. The account cannot log in until VerifyEmail runs.
// A taken email is ErrAccountExists; no verification mail is re-sent on
// that path, ResendVerification exists for it.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if err := validateRegisterInput(email, input.Password); err != nil {
		return nil, err
	}

	hash, err := e.hasher.Hash(input.Password)
	if err != nil {
		return nil, e.internal("hash password", err)
	}

	u := &store.User{
		Email:        email,
		Username:     strings.TrimSpace(input.Username),
		PasswordHash: hash,
		Roles:        []rbac.Role{rbac.RoleMember},
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.store.Users.Create(sctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			e.record("signup_failed", "", "", false, ErrAccountExists)
			return nil, ErrAccountExists
		}
		return nil, e.internal("create user", err)
	}

	if err := e.sendVerification(ctx, u, event.NameUserRegistered); err != nil {
		// Account exists; the user can still request a fresh link.
		e.log.Error().Err(err).Str("user_id", u.ID).Msg("verification token issue failed")
	}

	e.metrics.registrations.Inc()
	e.record("signup_success", u.ID, "", true, nil)
	return userView(u), nil
}

// VerifyEmail consumes a verification token and marks the account
// verified. Any dead token is ErrInvalidToken.
func (e *Engine) VerifyEmail(ctx context.Context, rawToken string) error {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	userID, err := e.store.Tokens.Consume(sctx, store.TokenVerification, hashMailToken(rawToken))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.record("email_verify_failed", "", "", false, ErrInvalidToken)
			return ErrInvalidToken
		}
		return e.internal("consume verification token", err)
	}
	if err := e.store.Users.SetVerified(sctx, userID); err != nil {
		return e.internal("set verified", err)
	}
	e.record("email_verified", userID, "", true, nil)
	return nil
}

// ResendVerification issues a fresh verification token. It reveals
// nothing: unknown and already-verified emails both return nil with no
// side effect.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	u, err := e.store.Users.FindByEmail(sctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return e.internal("find user", err)
	}
	if u.Verified {
		return nil
	}
	return e.sendVerification(ctx, u, event.NameVerificationRequested)
}

// sendVerification replaces the user's live verification token and emits
// the mail event carrying the raw secret.
func (e *Engine) sendVerification(ctx context.Context, u *store.User, name string) error {
	raw, hash, err := newMailToken()
	if err != nil {
		return e.internal("mint verification token", err)
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.store.Tokens.Create(sctx, store.TokenVerification, u.ID, hash, e.config.Mail.VerificationTTL); err != nil {
		return e.internal("store verification token", err)
	}

	e.events.Send(ctx, name, map[string]any{
		"user_id": u.ID,
		"email":   u.Email,
		"token":   raw,
	})
	return nil
}

func validateRegisterInput(email, pass string) error {
	if email == "" || !strings.Contains(email, "@") {
		return ErrInvalidCredentials
	}
	if len(pass) < minPasswordLength {
		return ErrInvalidCredentials
	}
	return nil
}
