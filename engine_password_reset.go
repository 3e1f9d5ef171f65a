package authcore

import (
	"context"
	"errors"
	"strings"

	"github.com/awe-platform/authcore/event"
	"github.com/awe-platform/authcore/store"
)

// RequestPasswordReset issues a single-use reset token for the account, if
// one exists. The response is identical either way so the endpoint cannot
// be used to probe for registered emails.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	u, err := e.store.Users.FindByEmail(sctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return e.internal("find user", err)
	}

	raw, hash, err := newMailToken()
	if err != nil {
		return e.internal("mint reset token", err)
	}
	if err := e.store.Tokens.Create(sctx, store.TokenReset, u.ID, hash, e.config.Mail.ResetTTL); err != nil {
		return e.internal("store reset token", err)
	}

	e.events.Send(ctx, event.NamePasswordResetRequested, map[string]any{
		"user_id": u.ID,
		"email":   u.Email,
		"token":   raw,
	})
	e.record("password_reset_requested", u.ID, "", true, nil)
	return nil
}

// ResetPassword consumes a reset token and installs the new password. The
// token burn and the hash update are one storage transaction, and every
// live session is revoked afterwards.
func (e *Engine) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return ErrInvalidCredentials
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return e.internal("hash password", err)
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	userID, err := e.store.Users.ResetPassword(sctx, hashMailToken(rawToken), hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.record("password_reset_failed", "", "", false, ErrInvalidToken)
			return ErrInvalidToken
		}
		return e.internal("reset password", err)
	}

	// The reset only fully takes effect once every old session is dead;
	// fail closed rather than report a success that leaves them live.
	if err := e.sessions.RevokeAll(ctx, userID); err != nil {
		e.record("password_reset_failed", userID, "", false, ErrStoreUnavailable)
		return e.internal("post-reset revocation", err)
	}

	e.metrics.passwordResets.Inc()
	e.metrics.sessionsRevoked.Inc()
	e.events.Send(ctx, event.NamePasswordChanged, map[string]any{"user_id": userID})
	e.record("password_reset_success", userID, "", true, nil)
	return nil
}
