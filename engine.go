package authcore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rs/zerolog"

	"github.com/awe-platform/authcore/audit"
	"github.com/awe-platform/authcore/event"
	"github.com/awe-platform/authcore/password"
	"github.com/awe-platform/authcore/ratelimit"
	"github.com/awe-platform/authcore/rbac"
	"github.com/awe-platform/authcore/session"
	"github.com/awe-platform/authcore/store"
	"github.com/awe-platform/authcore/token"
	"github.com/awe-platform/authcore/totp"
)

// Engine is the auth orchestrator. Build one with New(...).Build() and
// share it; every method is safe for concurrent use.
type Engine struct {
	config Config
	log    zerolog.Logger

	store    store.Store
	sessions *session.Store
	tokens   *token.Manager
	hasher   *password.Hasher
	totp     *totp.Manager
	resolver *rbac.Resolver

	loginLimiter  *ratelimit.Limiter
	mfaLimiter    *ratelimit.Limiter
	globalLimiter *ratelimit.Limiter

	audit   *audit.Dispatcher
	events  event.Sink
	metrics *metrics

	now func() time.Time
}

// Close drains and stops the audit dispatcher. The engine must not be
// used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports how many audit events were shed under pressure.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

// storeCtx bounds a durable-storage call.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.StoreTimeout)
}

// record sends one audit event, never blocking the flow.
func (e *Engine) record(action, actorID, ip string, success bool, failure error) {
	ev := audit.Event{
		Timestamp: e.now(),
		Action:    action,
		ActorID:   actorID,
		IP:        ip,
		Success:   success,
	}
	if failure != nil {
		ev.Error = failure.Error()
	}
	e.audit.Emit(ev)
}

// internal logs the underlying failure and collapses it to the opaque
// ErrStoreUnavailable so callers never see backend details.
func (e *Engine) internal(op string, err error) error {
	e.log.Error().Err(err).Str("op", op).Msg("internal auth failure")
	return ErrStoreUnavailable
}

// newMailToken mints a raw single-use secret and the hash that gets
// persisted. Only the raw form ever leaves the process, only the hash is
// stored.
func newMailToken() (raw, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(buf)
	return raw, hashMailToken(raw), nil
}

func hashMailToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
