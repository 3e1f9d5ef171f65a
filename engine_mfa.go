package authcore

import (
	"context"
	"errors"

	"github.com/awe-platform/authcore/store"
)

// EnrollMFA generates a pending TOTP secret for the user and returns it
// with the otpauth URI for the authenticator app. The secret does not
// gate logins until ConfirmMFAEnrollment sees one valid code; enrolling
// again replaces any pending or active secret.
func (e *Engine) EnrollMFA(ctx context.Context, userID string) (*MFAEnrollment, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	u, err := e.store.Users.FindByID(sctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, e.internal("find user", err)
	}

	secret, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, e.internal("generate totp secret", err)
	}
	if err := e.store.Users.SetMFASecret(sctx, u.ID, secret); err != nil {
		return nil, e.internal("store totp secret", err)
	}

	e.record("mfa_enrollment_started", u.ID, "", true, nil)
	return &MFAEnrollment{
		Secret: secret,
		URI:    e.totp.EnrollmentURI(secret, u.Email),
	}, nil
}

// ConfirmMFAEnrollment activates the pending secret once the user proves
// they hold it by producing a current code.
func (e *Engine) ConfirmMFAEnrollment(ctx context.Context, userID, code string) error {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	u, err := e.store.Users.FindByID(sctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrForbidden
		}
		return e.internal("find user", err)
	}
	if u.MFASecret == "" {
		return ErrMFANotConfigured
	}

	ok, err := e.totp.Verify(u.MFASecret, code, e.now())
	if err != nil {
		return e.internal("verify totp", err)
	}
	if !ok {
		e.metrics.mfaChecks.WithLabelValues(outcomeDenied).Inc()
		e.record("mfa_enrollment_failed", u.ID, "", false, ErrInvalidCredentials)
		return ErrInvalidCredentials
	}

	if err := e.store.Users.ConfirmMFA(sctx, u.ID); err != nil {
		return e.internal("confirm mfa", err)
	}
	e.metrics.mfaChecks.WithLabelValues(outcomeSuccess).Inc()
	e.record("mfa_enrollment_confirmed", u.ID, "", true, nil)
	return nil
}

// DisableMFA clears the user's secret so logins stop demanding a code.
func (e *Engine) DisableMFA(ctx context.Context, userID string) error {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	if err := e.store.Users.SetMFASecret(sctx, userID, ""); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrForbidden
		}
		return e.internal("clear totp secret", err)
	}
	e.record("mfa_disabled", userID, "", true, nil)
	return nil
}
