package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the sign-in protection collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	SignInDecisionsTotal    *prometheus.CounterVec
	AccountLockoutsTotal    prometheus.Counter
	RateLimitRejectedTotal  prometheus.Counter
	LockStateConflictsTotal prometheus.Counter
	StoreErrorsTotal        *prometheus.CounterVec
	RateLimitTrackedKeys    prometheus.Gauge
	RateLimitSweptTotal     prometheus.Counter
}

// New registers the collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SignInDecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "steeldesk_signin_decisions_total",
			Help: "Sign-in decisions by outcome and rejection reason",
		}, []string{"outcome", "reason"}),
		AccountLockoutsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "steeldesk_signin_account_lockouts_total",
			Help: "Number of times an account crossed the failure threshold and was locked",
		}),
		RateLimitRejectedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "steeldesk_signin_rate_limited_total",
			Help: "Sign-in submissions rejected by the per-address limiter",
		}),
		LockStateConflictsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "steeldesk_signin_lock_state_conflicts_total",
			Help: "Conditional lock state writes that lost to a concurrent attempt and were retried",
		}),
		StoreErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "steeldesk_signin_store_errors_total",
			Help: "Account store failures during sign-in by phase",
		}, []string{"phase"}),
		RateLimitTrackedKeys: factory.NewGauge(prometheus.GaugeOpts{
			Name: "steeldesk_signin_rate_limit_tracked_keys",
			Help: "Client addresses currently tracked by the sign-in limiter",
		}),
		RateLimitSweptTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "steeldesk_signin_rate_limit_swept_total",
			Help: "Expired limiter entries removed by the sweeper",
		}),
	}
}

func (m *Metrics) ObserveDecision(outcome, reason string) {
	if m == nil {
		return
	}
	m.SignInDecisionsTotal.WithLabelValues(outcome, reason).Inc()
}

func (m *Metrics) IncrementLockouts() {
	if m == nil {
		return
	}
	m.AccountLockoutsTotal.Inc()
}

func (m *Metrics) IncrementRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitRejectedTotal.Inc()
}

func (m *Metrics) IncrementConflicts() {
	if m == nil {
		return
	}
	m.LockStateConflictsTotal.Inc()
}

func (m *Metrics) IncrementStoreErrors(phase string) {
	if m == nil {
		return
	}
	m.StoreErrorsTotal.WithLabelValues(phase).Inc()
}

func (m *Metrics) ObserveSweep(removed, remaining int) {
	if m == nil {
		return
	}
	m.RateLimitSweptTotal.Add(float64(removed))
	m.RateLimitTrackedKeys.Set(float64(remaining))
}
