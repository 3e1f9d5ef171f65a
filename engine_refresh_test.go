package authcore

import (
	"context"
	"errors"
	"testing"

	"github.com/awe-platform/authcore/rbac"
)

func TestRefreshRotates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "member@example.com", "password1", []rbac.Role{rbac.RoleMember}, true)

	login, err := env.engine.Login(ctx, u.Email, "password1", "ip", "ua")
	if err != nil {
		t.Fatal(err)
	}

	refreshed, err := env.engine.Refresh(ctx, login.RefreshToken, "ip", "ua")
	if err != nil {
		t.Fatal(err)
	}
	if refreshed.RefreshToken == login.RefreshToken {
		t.Fatal("rotation must mint a new refresh token")
	}
	if refreshed.User.ID != u.ID || refreshed.AccessToken == "" {
		t.Fatalf("incomplete refresh result: %+v", refreshed)
	}
}

func TestRefreshReplayRevokesEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "member@example.com", "password1", []rbac.Role{rbac.RoleMember}, true)

	login, err := env.engine.Login(ctx, u.Email, "password1", "ip", "ua")
	if err != nil {
		t.Fatal(err)
	}
	refreshed, err := env.engine.Refresh(ctx, login.RefreshToken, "ip", "ua")
	if err != nil {
		t.Fatal(err)
	}

	// Replaying the spent token trips the alarm...
	if _, err := env.engine.Refresh(ctx, login.RefreshToken, "ip", "ua"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("replay: want ErrInvalidToken, got %v", err)
	}
	// ...and the legitimate successor dies with it.
	if _, err := env.engine.Refresh(ctx, refreshed.RefreshToken, "ip", "ua"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("post-revocation refresh: want ErrInvalidToken, got %v", err)
	}
}

func TestRefreshRejectsNonRefreshTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "member@example.com", "password1", []rbac.Role{rbac.RoleMember}, true)

	login, err := env.engine.Login(ctx, u.Email, "password1", "ip", "ua")
	if err != nil {
		t.Fatal(err)
	}
	for _, raw := range []string{login.AccessToken, "garbage", ""} {
		if _, err := env.engine.Refresh(ctx, raw, "ip", "ua"); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("want ErrInvalidToken, got %v", err)
		}
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "member@example.com", "password1", []rbac.Role{rbac.RoleMember}, true)

	login, err := env.engine.Login(ctx, u.Email, "password1", "ip", "ua")
	if err != nil {
		t.Fatal(err)
	}

	if err := env.engine.Logout(ctx, login.RefreshToken); err != nil {
		t.Fatal(err)
	}
	if err := env.engine.Logout(ctx, login.RefreshToken); err != nil {
		t.Fatalf("repeat logout must succeed, got %v", err)
	}
	if err := env.engine.Logout(ctx, "garbage"); err != nil {
		t.Fatalf("garbage logout must succeed, got %v", err)
	}

	// The session is gone, so the refresh token is dead.
	if _, err := env.engine.Refresh(ctx, login.RefreshToken, "ip", "ua"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh after logout: want ErrInvalidToken, got %v", err)
	}
}

func TestSessionExpiryKillsRefresh(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "member@example.com", "password1", []rbac.Role{rbac.RoleMember}, true)

	login, err := env.engine.Login(ctx, u.Email, "password1", "ip", "ua")
	if err != nil {
		t.Fatal(err)
	}

	env.redis.FastForward(env.engine.config.Session.Lifetime)
	if _, err := env.engine.Refresh(ctx, login.RefreshToken, "ip", "ua"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired session: want ErrInvalidToken, got %v", err)
	}
}
