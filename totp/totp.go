// Package totp implements RFC 6238 time-based one-time passwords for MFA
// step-up verification.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const secretBytes = 20

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// Config controls code shape and tolerance. Zero values fall back to the
// RFC defaults: 6 digits, 30 second period, one step of clock skew.
type Config struct {
	Issuer string
	Digits int
	Period int
	Skew   int
}

// Manager generates secrets and verifies codes. Safe for concurrent use.
type Manager struct {
	config Config
}

// New returns a Manager with defaults applied.
func New(cfg Config) *Manager {
	if cfg.Digits <= 0 {
		cfg.Digits = 6
	}
	if cfg.Period <= 0 {
		cfg.Period = 30
	}
	if cfg.Skew < 0 {
		cfg.Skew = 1
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "authcore"
	}
	return &Manager{config: cfg}
}

// GenerateSecret returns a fresh random secret, base32-encoded for storage
// and enrollment.
func (m *Manager) GenerateSecret() (string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return b32.EncodeToString(raw), nil
}

// EnrollmentURI builds the otpauth:// URI an authenticator app consumes,
// labeled with the account (typically the user's email).
func (m *Manager) EnrollmentURI(secret, account string) string {
	label := url.PathEscape(m.config.Issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", m.config.Issuer)
	v.Set("period", strconv.Itoa(m.config.Period))
	v.Set("digits", strconv.Itoa(m.config.Digits))
	v.Set("algorithm", "SHA1")

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// Verify reports whether code is valid for secret at now, accepting the
// current time step plus or minus the configured skew. Non-numeric or
// wrong-length codes verify false without error; a bad secret is an error
// because it indicates a corrupt record, not a user mistake.
func (m *Manager) Verify(secret, code string, now time.Time) (bool, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != m.config.Digits || !isNumeric(trimmed) {
		return false, nil
	}

	key, err := b32.DecodeString(strings.ToUpper(strings.TrimSpace(secret)))
	if err != nil || len(key) == 0 {
		return false, errors.New("malformed totp secret")
	}

	baseCounter := now.Unix() / int64(m.config.Period)
	skew := m.config.Skew
	if skew == 0 {
		skew = 1
	}
	for step := -skew; step <= skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(hotp(key, counter, m.config.Digits)), []byte(trimmed)) == 1 {
			return true, nil
		}
	}
	return false, nil
}

// CodeAt returns the code for secret at now. Exposed for enrollment tests
// and demo wiring; production callers only ever Verify.
func (m *Manager) CodeAt(secret string, now time.Time) (string, error) {
	key, err := b32.DecodeString(strings.ToUpper(strings.TrimSpace(secret)))
	if err != nil || len(key) == 0 {
		return "", errors.New("malformed totp secret")
	}
	return hotp(key, now.Unix()/int64(m.config.Period), m.config.Digits), nil
}

func hotp(key []byte, counter int64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod)
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
