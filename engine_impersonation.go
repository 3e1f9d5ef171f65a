package authcore

import (
	"context"
	"errors"

	"github.com/awe-platform/authcore/rbac"
	"github.com/awe-platform/authcore/store"
)

// StartImpersonation points the admin's account at the target. It takes
// effect at the admin's next token finalization (login or refresh), which
// re-reads the pointer. Only SUPER_ADMIN may impersonate, and never
// another SUPER_ADMIN, themselves, or a missing account.
func (e *Engine) StartImpersonation(ctx context.Context, adminID, targetID string) error {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	admin, err := e.store.Users.FindByID(sctx, adminID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrForbidden
		}
		return e.internal("find admin", err)
	}
	if !rbac.HasRole(admin.Roles, rbac.RoleSuperAdmin) || adminID == targetID {
		e.record("impersonation_denied", adminID, "", false, ErrForbidden)
		return ErrForbidden
	}

	target, err := e.store.Users.FindByID(sctx, targetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrForbidden
		}
		return e.internal("find target", err)
	}
	if rbac.HasRole(target.Roles, rbac.RoleSuperAdmin) {
		e.record("impersonation_denied", adminID, "", false, ErrForbidden)
		return ErrForbidden
	}

	if err := e.store.Users.SetImpersonation(sctx, adminID, targetID); err != nil {
		return e.internal("set impersonation", err)
	}
	e.record("impersonation_started", adminID, "", true, nil)
	return nil
}

// StopImpersonation clears the pointer. Succeeds even when none was set.
func (e *Engine) StopImpersonation(ctx context.Context, adminID string) error {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	if err := e.store.Users.ClearImpersonation(sctx, adminID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrForbidden
		}
		return e.internal("clear impersonation", err)
	}
	e.record("impersonation_stopped", adminID, "", true, nil)
	return nil
}
