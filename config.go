package authcore

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/awe-platform/authcore/password"
	"github.com/awe-platform/authcore/totp"
)

// Config carries every tunable of the engine. Zero values are filled from
// DefaultConfig at Build time except the two signing secrets, which have
// no safe default and must be provided.
type Config struct {
	Token     TokenConfig
	Password  password.Config
	TOTP      totp.Config
	Session   SessionConfig
	RateLimit RateLimitConfig
	RBAC      RBACConfig
	Mail      MailTokenConfig

	// StoreTimeout bounds every durable-storage call made by a flow.
	StoreTimeout time.Duration

	// AuditBuffer is the audit dispatcher's channel depth.
	AuditBuffer int
}

// TokenConfig configures JWT signing. Access and refresh secrets must
// differ so a leaked secret of one class cannot mint the other.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	StepUpTTL     time.Duration
	Issuer        string
	Leeway        time.Duration
}

// SessionConfig configures the redis session store.
type SessionConfig struct {
	RedisPrefix string
	Lifetime    time.Duration
}

// RateLimitConfig configures the login-path buckets. The MFA bucket
// throttles TOTP guesses per user between the password check and MFA
// completion.
type RateLimitConfig struct {
	LoginPoints  int
	LoginWindow  time.Duration
	MFAPoints    int
	MFAWindow    time.Duration
	GlobalPoints int
	GlobalWindow time.Duration

	// GlobalFailOpen lets traffic through when redis is down. The login
	// bucket has no such escape hatch.
	GlobalFailOpen bool
}

// RBACConfig configures the permission resolver cache.
type RBACConfig struct {
	CacheTTL  time.Duration
	CacheSize int
}

// MailTokenConfig sets the lifetimes of the emailed single-use tokens.
type MailTokenConfig struct {
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// DefaultConfig returns the production defaults. Secrets are left empty.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			StepUpTTL:  5 * time.Minute,
			Issuer:     "authcore",
			Leeway:     30 * time.Second,
		},
		Password: password.DefaultConfig(),
		TOTP: totp.Config{
			Issuer: "authcore",
			Digits: 6,
			Period: 30,
			Skew:   1,
		},
		Session: SessionConfig{
			RedisPrefix: "authcore:sess",
			Lifetime:    7 * 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			LoginPoints:    5,
			LoginWindow:    time.Minute,
			MFAPoints:      5,
			MFAWindow:      time.Minute,
			GlobalPoints:   100,
			GlobalWindow:   time.Minute,
			GlobalFailOpen: true,
		},
		RBAC: RBACConfig{
			CacheTTL:  5 * time.Minute,
			CacheSize: 64,
		},
		Mail: MailTokenConfig{
			VerificationTTL: 24 * time.Hour,
			ResetTTL:        time.Hour,
		},
		StoreTimeout: 5 * time.Second,
		AuditBuffer:  256,
	}
}

// Validate rejects configurations the engine cannot run safely with.
func (c Config) Validate() error {
	switch {
	case c.Token.AccessSecret == "":
		return errors.New("authcore: access secret required")
	case c.Token.RefreshSecret == "":
		return errors.New("authcore: refresh secret required")
	case c.Token.AccessSecret == c.Token.RefreshSecret:
		return errors.New("authcore: access and refresh secrets must differ")
	case len(c.Token.AccessSecret) < 32 || len(c.Token.RefreshSecret) < 32:
		return errors.New("authcore: signing secrets must be at least 32 bytes")
	case c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 || c.Token.StepUpTTL <= 0:
		return errors.New("authcore: token TTLs must be positive")
	case c.Session.Lifetime <= 0:
		return errors.New("authcore: session lifetime must be positive")
	case c.Session.RedisPrefix == "":
		return errors.New("authcore: session redis prefix required")
	case c.RateLimit.LoginPoints <= 0 || c.RateLimit.LoginWindow <= 0:
		return errors.New("authcore: login rate limit must be positive")
	case c.RateLimit.MFAPoints <= 0 || c.RateLimit.MFAWindow <= 0:
		return errors.New("authcore: mfa rate limit must be positive")
	case c.RateLimit.GlobalPoints <= 0 || c.RateLimit.GlobalWindow <= 0:
		return errors.New("authcore: global rate limit must be positive")
	case c.RBAC.CacheTTL <= 0 || c.RBAC.CacheSize <= 0:
		return errors.New("authcore: rbac cache settings must be positive")
	case c.Mail.VerificationTTL <= 0 || c.Mail.ResetTTL <= 0:
		return errors.New("authcore: mail token TTLs must be positive")
	case c.StoreTimeout <= 0:
		return errors.New("authcore: store timeout must be positive")
	}
	return nil
}

// FromEnv builds a Config from AUTHCORE_* environment variables on top of
// DefaultConfig. A .env file in the working directory is loaded first when
// present; a missing file is not an error.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	cfg.Token.AccessSecret = os.Getenv("AUTHCORE_ACCESS_SECRET")
	cfg.Token.RefreshSecret = os.Getenv("AUTHCORE_REFRESH_SECRET")
	if v := os.Getenv("AUTHCORE_ISSUER"); v != "" {
		cfg.Token.Issuer = v
		cfg.TOTP.Issuer = v
	}

	var err error
	set := func(name string, dst *time.Duration) {
		if v := os.Getenv(name); v != "" && err == nil {
			var d time.Duration
			if d, err = time.ParseDuration(v); err != nil {
				err = fmt.Errorf("authcore: %s: %w", name, err)
				return
			}
			*dst = d
		}
	}
	setInt := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" && err == nil {
			var n int
			if n, err = strconv.Atoi(v); err != nil {
				err = fmt.Errorf("authcore: %s: %w", name, err)
				return
			}
			*dst = n
		}
	}

	set("AUTHCORE_ACCESS_TTL", &cfg.Token.AccessTTL)
	set("AUTHCORE_REFRESH_TTL", &cfg.Token.RefreshTTL)
	set("AUTHCORE_STEPUP_TTL", &cfg.Token.StepUpTTL)
	set("AUTHCORE_SESSION_LIFETIME", &cfg.Session.Lifetime)
	set("AUTHCORE_LOGIN_WINDOW", &cfg.RateLimit.LoginWindow)
	set("AUTHCORE_MFA_WINDOW", &cfg.RateLimit.MFAWindow)
	set("AUTHCORE_RBAC_CACHE_TTL", &cfg.RBAC.CacheTTL)
	set("AUTHCORE_VERIFICATION_TTL", &cfg.Mail.VerificationTTL)
	set("AUTHCORE_RESET_TTL", &cfg.Mail.ResetTTL)
	set("AUTHCORE_STORE_TIMEOUT", &cfg.StoreTimeout)
	setInt("AUTHCORE_LOGIN_POINTS", &cfg.RateLimit.LoginPoints)
	setInt("AUTHCORE_MFA_POINTS", &cfg.RateLimit.MFAPoints)
	setInt("AUTHCORE_GLOBAL_POINTS", &cfg.RateLimit.GlobalPoints)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}
