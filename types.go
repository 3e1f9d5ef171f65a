package authcore

import (
	"time"

	"github.com/awe-platform/authcore/rbac"
	"github.com/awe-platform/authcore/store"
)

// User is the caller-facing account view. It never carries the password
// hash or the MFA secret.
type User struct {
	ID          string
	Email       string
	Username    string
	Roles       []rbac.Role
	Verified    bool
	MFAEnabled  bool
	LastLoginAt time.Time
	CreatedAt   time.Time
}

func userView(u *store.User) *User {
	roles := make([]rbac.Role, len(u.Roles))
	copy(roles, u.Roles)
	return &User{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		Roles:       roles,
		Verified:    u.Verified,
		MFAEnabled:  u.MFAEnabled(),
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

// RegisterInput is the material for a new account.
type RegisterInput struct {
	Email    string
	Username string
	Password string
}

// LoginResult is what a successful (or paused) login yields.
//
// When MFARequired is set, only MFAToken is populated; the caller must
// come back through VerifyMFAAndLogin with a TOTP code. Otherwise the
// token pair and the user view are populated.
type LoginResult struct {
	User         *User
	AccessToken  string
	RefreshToken string

	// Permissions are the effective permissions embedded in the access
	// token, resolved for the impersonation target when one is set.
	Permissions []string

	// OnboardingCompleted mirrors the user's onboarding row so clients
	// can route first-time users without another round trip. The read is
	// best-effort: if the row cannot be loaded the flag defaults to
	// false, so treat it as a routing hint, not an authoritative state.
	OnboardingCompleted bool

	MFARequired bool
	MFAToken    string
}

// MFAEnrollment is returned by EnrollMFA; the secret stays pending until
// one live code confirms it.
type MFAEnrollment struct {
	Secret string
	URI    string
}
