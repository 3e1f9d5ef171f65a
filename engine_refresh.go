package authcore

import (
	"context"
	"errors"

	"github.com/awe-platform/authcore/session"
	"github.com/awe-platform/authcore/store"
)

// Refresh rotates a session and issues a fresh token pair. A refresh
// token whose session is gone is treated as replayed: every session the
// user owns is revoked and the caller only sees ErrInvalidToken.
func (e *Engine) Refresh(ctx context.Context, rawRefresh, ip, userAgent string) (*LoginResult, error) {
	claims, err := e.tokens.VerifyRefresh(rawRefresh)
	if err != nil {
		return nil, ErrInvalidToken
	}

	sess, err := e.sessions.Rotate(ctx, claims.SessionID, claims.Subject, ip, userAgent)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, e.revokeOnReplay(ctx, claims.Subject, ip)
		}
		return nil, e.internal("rotate session", err)
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	u, err := e.store.Users.FindByID(sctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Account deleted since the token was minted; burn the
			// session we just created.
			if derr := e.sessions.Delete(ctx, sess.ID); derr != nil {
				e.log.Warn().Err(derr).Msg("orphan session cleanup failed")
			}
			return nil, ErrInvalidToken
		}
		return nil, e.internal("find user", err)
	}

	result, err := e.completeAuth(ctx, u, sess, ip)
	if err != nil {
		return nil, err
	}
	e.metrics.refreshes.WithLabelValues(outcomeSuccess).Inc()
	e.record("refresh_success", u.ID, ip, true, nil)
	return result, nil
}

// revokeOnReplay is the blast-radius response to a dead refresh token.
// The legitimate holder logs in again; a thief holds nothing.
func (e *Engine) revokeOnReplay(ctx context.Context, userID, ip string) error {
	if err := e.sessions.RevokeAll(ctx, userID); err != nil {
		e.log.Error().Err(err).Str("user_id", userID).Msg("mass revocation failed")
	}
	e.metrics.refreshes.WithLabelValues(outcomeReplay).Inc()
	e.metrics.sessionsRevoked.Inc()
	e.record("refresh_token_reuse_or_invalid", userID, ip, false, ErrInvalidToken)
	return ErrInvalidToken
}

// Logout deletes the refresh token's session. It always appears to
// succeed: an invalid or already-spent token changes nothing and reveals
// nothing.
func (e *Engine) Logout(ctx context.Context, rawRefresh string) error {
	claims, err := e.tokens.VerifyRefresh(rawRefresh)
	if err != nil {
		return nil
	}
	if err := e.sessions.Delete(ctx, claims.SessionID); err != nil {
		e.log.Warn().Err(err).Msg("logout session delete failed")
		return nil
	}
	e.record("logout_success", claims.Subject, "", true, nil)
	return nil
}
