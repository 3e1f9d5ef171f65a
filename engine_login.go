package authcore

import (
	"context"
	"errors"
	"strings"

	"github.com/awe-platform/authcore/event"
	"github.com/awe-platform/authcore/session"
	"github.com/awe-platform/authcore/store"
	"github.com/awe-platform/authcore/token"
)

// dummyHash burns comparison time for unknown emails so the miss path is
// not measurably faster than a wrong password. It must stay a parseable
// PHC string with the default work factor or the burn silently vanishes.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=2$AAAAAAAAAAAAAAAAAAAAAA==$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="

// Login checks credentials and either finishes the login or pauses it
// behind MFA. Unknown email, missing hash, and wrong password all come
// back as ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, email, pass, ip, userAgent string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if dec, err := e.globalLimiter.Consume(ctx, ip); err != nil || !dec.Allowed {
		if err != nil {
			e.log.Warn().Err(err).Msg("global limiter unavailable")
		}
		if !dec.Allowed {
			e.metrics.logins.WithLabelValues(outcomeRateLimited).Inc()
			e.record("login_rate_limited", "", ip, false, ErrRateLimited)
			return nil, ErrRateLimited
		}
	}

	// Fail closed: redis trouble on the login bucket denies the attempt.
	dec, err := e.loginLimiter.Consume(ctx, email)
	if err != nil {
		e.log.Error().Err(err).Msg("login limiter unavailable")
	}
	if !dec.Allowed {
		e.metrics.logins.WithLabelValues(outcomeRateLimited).Inc()
		e.record("login_rate_limited", "", ip, false, ErrRateLimited)
		return nil, ErrRateLimited
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	u, err := e.store.Users.FindByEmail(sctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.hasher.Compare(pass, dummyHash)
			return nil, e.loginDenied(ip)
		}
		return nil, e.internal("find user", err)
	}

	if u.PasswordHash == "" || !e.hasher.Compare(pass, u.PasswordHash) {
		return nil, e.loginDenied(ip)
	}

	if !u.Verified {
		if err := e.sendVerification(ctx, u, event.NameVerificationRequested); err != nil {
			e.log.Error().Err(err).Str("user_id", u.ID).Msg("verification resend failed")
		}
		e.record("login_failed", u.ID, ip, false, ErrEmailNotVerified)
		return nil, ErrEmailNotVerified
	}

	if u.MFAEnabled() {
		stepUp, err := e.tokens.SignStepUp(u.ID)
		if err != nil {
			return nil, e.internal("sign step-up token", err)
		}
		e.record("login_mfa_required", u.ID, ip, true, nil)
		return &LoginResult{MFARequired: true, MFAToken: stepUp}, nil
	}

	return e.finalizeLogin(ctx, u, ip, userAgent)
}

// VerifyMFAAndLogin completes a login paused by Login. The step-up token
// must verify as its own class; access and refresh tokens are rejected.
// Code guesses draw from a per-user bucket so the six-digit space cannot
// be walked inside the step-up TTL.
func (e *Engine) VerifyMFAAndLogin(ctx context.Context, mfaToken, code, ip, userAgent string) (*LoginResult, error) {
	userID, err := e.tokens.VerifyStepUp(mfaToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	// Fail closed, same as the login bucket.
	dec, err := e.mfaLimiter.Consume(ctx, userID)
	if err != nil {
		e.log.Error().Err(err).Msg("mfa limiter unavailable")
	}
	if !dec.Allowed {
		e.metrics.mfaChecks.WithLabelValues(outcomeRateLimited).Inc()
		e.record("mfa_rate_limited", userID, ip, false, ErrRateLimited)
		return nil, ErrRateLimited
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	u, err := e.store.Users.FindByID(sctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, e.internal("find user", err)
	}
	if !u.MFAEnabled() {
		// Same response as a wrong code: the token holder learns
		// nothing about the account's MFA state.
		return nil, ErrInvalidCredentials
	}

	ok, err := e.totp.Verify(u.MFASecret, code, e.now())
	if err != nil {
		return nil, e.internal("verify totp", err)
	}
	if !ok {
		e.metrics.mfaChecks.WithLabelValues(outcomeDenied).Inc()
		e.record("mfa_failed", u.ID, ip, false, ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	if err := e.mfaLimiter.Reset(ctx, userID); err != nil {
		e.log.Warn().Err(err).Msg("mfa limiter reset failed")
	}
	e.metrics.mfaChecks.WithLabelValues(outcomeSuccess).Inc()
	return e.finalizeLogin(ctx, u, ip, userAgent)
}

// finalizeLogin is the single exit of every successful authentication.
// Fresh logins and MFA completions create a session here; Refresh passes
// its rotated session through completeAuth directly. Either way the
// impersonation state and permissions are re-read each time.
func (e *Engine) finalizeLogin(ctx context.Context, real *store.User, ip, userAgent string) (*LoginResult, error) {
	sess, err := e.sessions.Create(ctx, real.ID, ip, userAgent)
	if err != nil {
		return nil, e.internal("create session", err)
	}

	result, err := e.completeAuth(ctx, real, sess, ip)
	if err != nil {
		return nil, err
	}

	// Authentication is fully complete, MFA included; only now does the
	// email's login budget come back.
	if err := e.loginLimiter.Reset(ctx, real.Email); err != nil {
		e.log.Warn().Err(err).Msg("login limiter reset failed")
	}

	e.metrics.logins.WithLabelValues(outcomeSuccess).Inc()
	e.record("login_success", real.ID, ip, true, nil)
	return result, nil
}

// completeAuth resolves the effective identity, signs the token pair, and
// refreshes the bookkeeping rows for an already-established session.
func (e *Engine) completeAuth(ctx context.Context, real *store.User, sess *session.Session, ip string) (*LoginResult, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	effective := real
	if real.ImpersonatingUserID != "" {
		target, err := e.store.Users.FindByID(sctx, real.ImpersonatingUserID)
		switch {
		case err == nil:
			effective = target
		case errors.Is(err, store.ErrNotFound):
			// Target is gone; act as the real user rather than fail.
			e.log.Warn().Str("admin_id", real.ID).Str("target_id", real.ImpersonatingUserID).
				Msg("impersonation target missing")
		default:
			return nil, e.internal("find impersonation target", err)
		}
	}

	perms, err := e.resolver.Resolve(ctx, effective.Roles)
	if err != nil {
		return nil, e.internal("resolve permissions", err)
	}

	result, err := e.issueTokens(real, effective, perms.Slice(), sess)
	if err != nil {
		return nil, err
	}

	if err := e.store.Users.UpdateLastLogin(sctx, real.ID, e.now()); err != nil {
		e.log.Warn().Err(err).Str("user_id", real.ID).Msg("last-login update failed")
	}
	if err := e.store.Onboarding.Ensure(sctx, effective.ID); err != nil {
		e.log.Warn().Err(err).Str("user_id", effective.ID).Msg("onboarding ensure failed")
	}
	done, err := e.store.Onboarding.Completed(sctx, effective.ID)
	if err != nil {
		e.log.Warn().Err(err).Str("user_id", effective.ID).Msg("onboarding read failed")
	}
	result.OnboardingCompleted = done
	return result, nil
}

func (e *Engine) issueTokens(real, effective *store.User, perms []string, sess *session.Session) (*LoginResult, error) {
	roles := make([]string, len(effective.Roles))
	for i, r := range effective.Roles {
		roles[i] = string(r)
	}

	access := token.AccessClaims{
		Roles:       roles,
		Permissions: perms,
	}
	access.Subject = real.ID
	if effective.ID != real.ID {
		access.ActAsSub = effective.ID
		access.Impersonating = true
	}
	accessToken, err := e.tokens.SignAccess(access)
	if err != nil {
		return nil, e.internal("sign access token", err)
	}

	refresh := token.RefreshClaims{SessionID: sess.ID}
	refresh.Subject = real.ID
	refreshToken, err := e.tokens.SignRefresh(refresh)
	if err != nil {
		return nil, e.internal("sign refresh token", err)
	}

	return &LoginResult{
		User:         userView(effective),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Permissions:  perms,
	}, nil
}

func (e *Engine) loginDenied(ip string) error {
	e.metrics.logins.WithLabelValues(outcomeDenied).Inc()
	e.record("login_failed", "", ip, false, ErrInvalidCredentials)
	return ErrInvalidCredentials
}
