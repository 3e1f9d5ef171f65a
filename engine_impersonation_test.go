package authcore

import (
	"context"
	"errors"
	"testing"

	"github.com/awe-platform/authcore/rbac"
)

func TestImpersonationFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedUser(t, "admin@example.com", "password1", []rbac.Role{rbac.RoleSuperAdmin}, true)
	target := env.seedUser(t, "member@example.com", "password1", []rbac.Role{rbac.RoleMember}, true)

	if err := env.engine.StartImpersonation(ctx, admin.ID, target.ID); err != nil {
		t.Fatal(err)
	}

	res, err := env.engine.Login(ctx, admin.Email, "password1", "ip", "ua")
	if err != nil {
		t.Fatal(err)
	}
	if res.User.ID != target.ID {
		t.Fatalf("login must surface the target, got %s", res.User.ID)
	}

	claims, err := env.engine.VerifyAccess(res.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != admin.ID || claims.ActAsSub != target.ID || !claims.Impersonating {
		t.Fatalf("audit trail claims wrong: %+v", claims)
	}
	// Permissions are the target's, not the admin's.
	set := rbac.NewPermissionSet(claims.Permissions...)
	if set.Contains(rbac.PermAllManage) {
		t.Fatal("impersonated token must not carry admin permissions")
	}
	if !set.Contains("profile:read") {
		t.Fatalf("target permissions missing: %v", claims.Permissions)
	}

	// Refresh re-reads the pointer, so stopping takes effect there.
	if err := env.engine.StopImpersonation(ctx, admin.ID); err != nil {
		t.Fatal(err)
	}
	refreshed, err := env.engine.Refresh(ctx, res.RefreshToken, "ip", "ua")
	if err != nil {
		t.Fatal(err)
	}
	claims, _ = env.engine.VerifyAccess(refreshed.AccessToken)
	if claims.Impersonating || claims.ActAsSub != "" || refreshed.User.ID != admin.ID {
		t.Fatalf("impersonation survived stop: %+v", claims)
	}
}

func TestImpersonationGates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedUser(t, "admin@example.com", "password1", []rbac.Role{rbac.RoleSuperAdmin}, true)
	peer := env.seedUser(t, "peer@example.com", "password1", []rbac.Role{rbac.RoleSuperAdmin}, true)
	member := env.seedUser(t, "member@example.com", "password1", []rbac.Role{rbac.RoleMember}, true)

	cases := []struct {
		name            string
		actor, targetID string
	}{
		{"non-admin actor", member.ID, admin.ID},
		{"self", admin.ID, admin.ID},
		{"super-admin target", admin.ID, peer.ID},
		{"unknown actor", "nope", member.ID},
		{"unknown target", admin.ID, "nope"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := env.engine.StartImpersonation(ctx, tc.actor, tc.targetID); !errors.Is(err, ErrForbidden) {
				t.Fatalf("want ErrForbidden, got %v", err)
			}
		})
	}
}

func TestStopImpersonationWithoutStart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedUser(t, "admin@example.com", "password1", []rbac.Role{rbac.RoleSuperAdmin}, true)

	if err := env.engine.StopImpersonation(ctx, admin.ID); err != nil {
		t.Fatalf("stop with nothing set must succeed, got %v", err)
	}
}
