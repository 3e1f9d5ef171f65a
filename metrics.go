package authcore

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics groups the engine's prometheus collectors. The engine registers
// them on the registerer given at build time, or on a private registry so
// two engines in one process never collide.
type metrics struct {
	gatherer prometheus.Gatherer

	logins          *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	mfaChecks       *prometheus.CounterVec
	registrations   prometheus.Counter
	sessionsRevoked prometheus.Counter
	passwordResets  prometheus.Counter
}

// Outcome label values.
const (
	outcomeSuccess     = "success"
	outcomeDenied      = "denied"
	outcomeRateLimited = "rate_limited"
	outcomeReplay      = "replay"
)

func newMetrics(reg prometheus.Registerer) *metrics {
	var gatherer prometheus.Gatherer
	if reg == nil {
		private := prometheus.NewRegistry()
		reg = private
		gatherer = private
	}

	m := &metrics{
		gatherer: gatherer,
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_refreshes_total",
			Help: "Refresh rotations by outcome.",
		}, []string{"outcome"}),
		mfaChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_mfa_checks_total",
			Help: "TOTP verifications by outcome.",
		}, []string{"outcome"}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authcore_registrations_total",
			Help: "Accounts created.",
		}),
		sessionsRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authcore_sessions_revoked_total",
			Help: "Sessions revoked outside normal logout.",
		}),
		passwordResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authcore_password_resets_total",
			Help: "Completed password resets.",
		}),
	}
	reg.MustRegister(
		m.logins, m.refreshes, m.mfaChecks,
		m.registrations, m.sessionsRevoked, m.passwordResets,
	)
	return m
}

// Gatherer exposes the private registry when no registerer was supplied,
// so hosts can still scrape. Nil when an external registerer is in use.
func (e *Engine) Gatherer() prometheus.Gatherer {
	return e.metrics.gatherer
}
