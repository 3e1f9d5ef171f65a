// Package token signs and verifies the three bearer token shapes issued by
// the engine: short-lived access tokens, session-bound refresh tokens, and
// single-purpose MFA step-up tokens.
//
// Each token carries a "typ" discriminator inside the signed payload and
// verification rejects a valid signature with the wrong typ, so a refresh
// token can never pass where an access token is expected. Access and
// refresh tokens are signed with independent secrets; compromise of one
// does not compromise the other. Step-up tokens share the access secret
// but their typ makes them unusable anywhere except MFA confirmation.
package token

import (
	"bytes"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	typAccess  = "access"
	typRefresh = "refresh"
	typStepUp  = "mfa"
)

// ErrInvalidToken is the only error Verify* return. Expired, malformed,
// unsigned, and type-mismatched tokens are deliberately indistinguishable
// to avoid an oracle.
var ErrInvalidToken = errors.New("invalid token")

// Config holds signing material and lifetimes. Secrets must be set, and
// must differ from each other.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	StepUpTTL     time.Duration
	Issuer        string
	Leeway        time.Duration
}

// AccessClaims authorize individual API calls. Subject is always the real
// authenticated user; when impersonating, ActAsSub carries the target user
// whose roles and permissions are embedded.
type AccessClaims struct {
	Roles         []string `json:"roles"`
	Permissions   []string `json:"permissions"`
	ActAsSub      string   `json:"act_as,omitempty"`
	Impersonating bool     `json:"impersonating,omitempty"`
	Type          string   `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims bind a refresh token to exactly one session record.
// Subject is the real user even while impersonating, so rotation and
// logout always operate on the real actor's session lineage.
type RefreshClaims struct {
	SessionID string `json:"sid"`
	Type      string `json:"typ"`
	jwt.RegisteredClaims
}

// StepUpClaims identify the user between password check and MFA
// confirmation. They carry no roles or permissions.
type StepUpClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// Manager signs and verifies tokens. Safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token secrets must be set")
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must be independent")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	if cfg.StepUpTTL <= 0 {
		cfg.StepUpTTL = 5 * time.Minute
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway")
	}
	return &Manager{config: cfg}, nil
}

// SignAccess signs c with the access secret. Type, expiry, and issuance
// claims are set here; any values on c are overwritten.
func (m *Manager) SignAccess(c AccessClaims) (string, error) {
	c.Type = typAccess
	m.stamp(&c.RegisteredClaims, m.config.AccessTTL)
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.config.AccessSecret)
}

// VerifyAccess parses and validates an access token.
func (m *Manager) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(tokenStr, claims, m.config.AccessSecret); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Type != typAccess {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// SignRefresh signs c with the refresh secret.
func (m *Manager) SignRefresh(c RefreshClaims) (string, error) {
	c.Type = typRefresh
	m.stamp(&c.RegisteredClaims, m.config.RefreshTTL)
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.config.RefreshSecret)
}

// VerifyRefresh parses and validates a refresh token.
func (m *Manager) VerifyRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenStr, claims, m.config.RefreshSecret); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Type != typRefresh || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// SignStepUp issues the reduced-privilege token handed out when a password
// check succeeds but MFA confirmation is still pending.
func (m *Manager) SignStepUp(userID string) (string, error) {
	c := StepUpClaims{Type: typStepUp}
	c.Subject = userID
	m.stamp(&c.RegisteredClaims, m.config.StepUpTTL)
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.config.AccessSecret)
}

// VerifyStepUp validates a step-up token and returns the user id it
// identifies.
func (m *Manager) VerifyStepUp(tokenStr string) (string, error) {
	claims := &StepUpClaims{}
	if err := m.parse(tokenStr, claims, m.config.AccessSecret); err != nil {
		return "", ErrInvalidToken
	}
	if claims.Type != typStepUp || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func (m *Manager) stamp(rc *jwt.RegisteredClaims, ttl time.Duration) {
	now := time.Now()
	rc.IssuedAt = jwt.NewNumericDate(now)
	rc.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if m.config.Issuer != "" {
		rc.Issuer = m.config.Issuer
	}
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims, secret []byte) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}
