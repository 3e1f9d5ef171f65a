package authcore

import (
	"context"
	"errors"
	"testing"

	"github.com/awe-platform/authcore/password"
	"github.com/awe-platform/authcore/rbac"
)

func TestLoginSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "member@example.com", "password1", []rbac.Role{rbac.RoleMember}, true)

	res, err := env.engine.Login(ctx, "member@example.com", "password1", "1.2.3.4", "ua")
	if err != nil {
		t.Fatal(err)
	}
	if res.User.ID != u.ID || res.MFARequired {
		t.Fatalf("unexpected result: %+v", res)
	}

	claims, err := env.engine.VerifyAccess(res.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != u.ID || claims.Impersonating {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	set := rbac.NewPermissionSet(claims.Permissions...)
	if !set.Contains("profile:read") || !set.Contains("profile:update") {
		t.Fatalf("member permissions missing from token: %v", claims.Permissions)
	}

	got, _ := env.mem.FindByID(ctx, u.ID)
	if got.LastLoginAt.IsZero() {
		t.Fatal("last login not recorded")
	}
}

func TestLoginGenericDenial(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "member@example.com", "password1", []rbac.Role{rbac.RoleMember}, true)

	_, unknownErr := env.engine.Login(ctx, "ghost@example.com", "password1", "ip", "ua")
	_, wrongErr := env.engine.Login(ctx, "member@example.com", "wrong-password", "ip", "ua")

	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("both denials must be ErrInvalidCredentials, got %v / %v", unknownErr, wrongErr)
	}
}

func TestLoginBucketBlocksAndRecovers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "member@example.com", "password1", []rbac.Role{rbac.RoleMember}, true)

	for i := 0; i < env.engine.config.RateLimit.LoginPoints; i++ {
		if _, err := env.engine.Login(ctx, "member@example.com", "wrong", "ip", "ua"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}

	// Budget spent: even the right password is refused for the window.
	if _, err := env.engine.Login(ctx, "member@example.com", "password1", "ip", "ua"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}

	env.redis.FastForward(env.engine.config.RateLimit.LoginWindow)
	if _, err := env.engine.Login(ctx, "member@example.com", "password1", "ip", "ua"); err != nil {
		t.Fatalf("window elapsed, want success, got %v", err)
	}
}

func TestLoginResetsBucketOnSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "member@example.com", "password1", []rbac.Role{rbac.RoleMember}, true)

	points := env.engine.config.RateLimit.LoginPoints
	for i := 0; i < points-1; i++ {
		env.engine.Login(ctx, "member@example.com", "wrong", "ip", "ua")
	}
	if _, err := env.engine.Login(ctx, "member@example.com", "password1", "ip", "ua"); err != nil {
		t.Fatal(err)
	}

	// The success cleared the counter, so a full budget is available.
	for i := 0; i < points; i++ {
		if _, err := env.engine.Login(ctx, "member@example.com", "wrong", "ip", "ua"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d after reset: %v", i, err)
		}
	}
}

func TestMFALoginFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "member@example.com", "password1", []rbac.Role{rbac.RoleMember}, true)

	enroll, err := env.engine.EnrollMFA(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if enroll.Secret == "" || enroll.URI == "" {
		t.Fatalf("incomplete enrollment: %+v", enroll)
	}

	// The pending secret must not gate logins yet.
	if res, err := env.engine.Login(ctx, u.Email, "password1", "ip", "ua"); err != nil || res.MFARequired {
		t.Fatalf("pending enrollment changed login: %+v, %v", res, err)
	}

	code, err := env.engine.totp.CodeAt(enroll.Secret, env.engine.now())
	if err != nil {
		t.Fatal(err)
	}
	if err := env.engine.ConfirmMFAEnrollment(ctx, u.ID, "000000"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong code must not confirm: %v", err)
	}
	if err := env.engine.ConfirmMFAEnrollment(ctx, u.ID, code); err != nil {
		t.Fatal(err)
	}

	res, err := env.engine.Login(ctx, u.Email, "password1", "ip", "ua")
	if err != nil {
		t.Fatal(err)
	}
	if !res.MFARequired || res.MFAToken == "" || res.AccessToken != "" {
		t.Fatalf("want MFA pause, got %+v", res)
	}

	// The step-up token is not an access token.
	if _, err := env.engine.VerifyAccess(res.MFAToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("step-up token accepted as access token: %v", err)
	}

	if _, err := env.engine.VerifyMFAAndLogin(ctx, res.MFAToken, "000000", "ip", "ua"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong TOTP code: want ErrInvalidCredentials, got %v", err)
	}

	code, _ = env.engine.totp.CodeAt(enroll.Secret, env.engine.now())
	final, err := env.engine.VerifyMFAAndLogin(ctx, res.MFAToken, code, "ip", "ua")
	if err != nil {
		t.Fatal(err)
	}
	if final.AccessToken == "" || final.RefreshToken == "" || final.User.ID != u.ID {
		t.Fatalf("incomplete MFA login: %+v", final)
	}
}

// enrollAndConfirmMFA walks a seeded user through enrollment so logins
// start demanding a code.
func (env *testEnv) enrollAndConfirmMFA(t *testing.T, userID string) string {
	t.Helper()
	ctx := context.Background()
	enroll, err := env.engine.EnrollMFA(ctx, userID)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	code, err := env.engine.totp.CodeAt(enroll.Secret, env.engine.now())
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	if err := env.engine.ConfirmMFAEnrollment(ctx, userID, code); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	return enroll.Secret
}

func TestMFACodeGuessingIsThrottled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "member@example.com", "password1", []rbac.Role{rbac.RoleMember}, true)
	secret := env.enrollAndConfirmMFA(t, u.ID)

	res, err := env.engine.Login(ctx, u.Email, "password1", "ip", "ua")
	if err != nil || !res.MFARequired {
		t.Fatalf("want MFA pause, got %+v, %v", res, err)
	}

	for i := 0; i < env.engine.config.RateLimit.MFAPoints; i++ {
		if _, err := env.engine.VerifyMFAAndLogin(ctx, res.MFAToken, "000000", "ip", "ua"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("guess %d: want ErrInvalidCredentials, got %v", i, err)
		}
	}

	// Budget spent: even the right code is refused for the window.
	code, _ := env.engine.totp.CodeAt(secret, env.engine.now())
	if _, err := env.engine.VerifyMFAAndLogin(ctx, res.MFAToken, code, "ip", "ua"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}

	env.redis.FastForward(env.engine.config.RateLimit.MFAWindow)
	code, _ = env.engine.totp.CodeAt(secret, env.engine.now())
	if _, err := env.engine.VerifyMFAAndLogin(ctx, res.MFAToken, code, "ip", "ua"); err != nil {
		t.Fatalf("window elapsed, want success, got %v", err)
	}
}

func TestLoginBudgetHeldThroughMFAPause(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "member@example.com", "password1", []rbac.Role{rbac.RoleMember}, true)
	secret := env.enrollAndConfirmMFA(t, u.ID)

	// Burn all but one login point, then pause at MFA with the last one.
	for i := 0; i < env.engine.config.RateLimit.LoginPoints-1; i++ {
		env.engine.Login(ctx, u.Email, "wrong", "ip", "ua")
	}
	res, err := env.engine.Login(ctx, u.Email, "password1", "ip", "ua")
	if err != nil || !res.MFARequired {
		t.Fatalf("want MFA pause, got %+v, %v", res, err)
	}

	// The pause must not have refunded the email's budget.
	if _, err := env.engine.Login(ctx, u.Email, "password1", "ip", "ua"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("budget must stay spent until MFA completes, got %v", err)
	}

	// Completing MFA is what gives it back.
	code, _ := env.engine.totp.CodeAt(secret, env.engine.now())
	if _, err := env.engine.VerifyMFAAndLogin(ctx, res.MFAToken, code, "ip", "ua"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.engine.Login(ctx, u.Email, "wrong", "ip", "ua"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("budget not restored after completion, got %v", err)
	}
}

func TestVerifyMFAWithoutEnrollmentLooksLikeWrongCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "member@example.com", "password1", []rbac.Role{rbac.RoleMember}, true)

	stepUp, err := env.engine.tokens.SignStepUp(u.ID)
	if err != nil {
		t.Fatal(err)
	}
	// The holder must not be able to tell "no MFA on this account" from
	// "wrong code".
	if _, err := env.engine.VerifyMFAAndLogin(ctx, stepUp, "123456", "ip", "ua"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials, got %v", err)
	}
}

func TestDummyHashBurnsRealComparison(t *testing.T) {
	// A hasher with a higher time cost reports the dummy hash as stale,
	// which it can only do after parsing it. A malformed constant would
	// report false and mean the unknown-email path skips the argon2 work.
	cfg := password.DefaultConfig()
	cfg.Time++
	h, err := password.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !h.NeedsRehash(dummyHash) {
		t.Fatal("dummy hash does not parse; unknown-email timing burn is gone")
	}
	if h.Compare("any password", dummyHash) {
		t.Fatal("dummy hash must never match")
	}
}

func TestVerifyMFARejectsForeignTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "member@example.com", "password1", []rbac.Role{rbac.RoleMember}, true)

	res, err := env.engine.Login(ctx, u.Email, "password1", "ip", "ua")
	if err != nil {
		t.Fatal(err)
	}

	// Neither an access token nor a refresh token opens the MFA gate.
	for _, raw := range []string{res.AccessToken, res.RefreshToken, "garbage"} {
		if _, err := env.engine.VerifyMFAAndLogin(ctx, raw, "123456", "ip", "ua"); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: want ErrInvalidToken, got %v", raw[:min(8, len(raw))], err)
		}
	}
}

func TestAuthorize(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedUser(t, "admin@example.com", "password1", []rbac.Role{rbac.RoleSuperAdmin}, true)
	cm := env.seedUser(t, "cm@example.com", "password1", []rbac.Role{rbac.RoleContentManager}, true)

	adminRes, err := env.engine.Login(ctx, admin.Email, "password1", "ip", "ua")
	if err != nil {
		t.Fatal(err)
	}
	adminClaims, _ := env.engine.VerifyAccess(adminRes.AccessToken)
	if err := env.engine.Authorize(adminClaims, "finance:approve"); err != nil {
		t.Fatalf("all:manage must grant everything: %v", err)
	}

	cmRes, err := env.engine.Login(ctx, cm.Email, "password1", "ip", "ua")
	if err != nil {
		t.Fatal(err)
	}
	cmClaims, _ := env.engine.VerifyAccess(cmRes.AccessToken)
	if err := env.engine.Authorize(cmClaims, "content:publish"); err != nil {
		t.Fatalf("content:manage must cover content:publish: %v", err)
	}
	if err := env.engine.Authorize(cmClaims, "finance:approve"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}
}
