package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification module.
type Metrics struct {
	// Extrinsic outcomes by call and result code
	Calls *prometheus.CounterVec

	// Status transitions of stored requests
	Transitions *prometheus.CounterVec

	// Registration fee settlements by outcome: refunded, slashed, bonded
	Settlements *prometheus.CounterVec

	// Off-chain checks by strategy and outcome
	Checks        *prometheus.CounterVec
	CheckDuration *prometheus.HistogramVec
}

// New creates a new Metrics instance registered with the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Calls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "anagolay_verification_calls_total",
			Help: "Verification extrinsics by call and result",
		}, []string{"call", "result"}),

		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "anagolay_verification_transitions_total",
			Help: "Verification request status transitions",
		}, []string{"from", "to"}),

		Settlements: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "anagolay_verification_fee_settlements_total",
			Help: "Registration fee settlements by outcome",
		}, []string{"outcome"}),

		Checks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "anagolay_verification_checks_total",
			Help: "Off-chain verification checks by strategy and outcome",
		}, []string{"strategy", "outcome"}),

		CheckDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "anagolay_verification_check_duration_seconds",
			Help:    "Duration of off-chain verification checks",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 2.5},
		}, []string{"strategy"}),
	}
}

// ObserveCall records the result of an extrinsic. result is "ok" or an error code.
func (m *Metrics) ObserveCall(call, result string) {
	if m != nil {
		m.Calls.WithLabelValues(call, result).Inc()
	}
}

func (m *Metrics) ObserveTransition(from, to string) {
	if m != nil {
		m.Transitions.WithLabelValues(from, to).Inc()
	}
}

func (m *Metrics) ObserveSettlement(outcome string) {
	if m != nil {
		m.Settlements.WithLabelValues(outcome).Inc()
	}
}

// ObserveCheck records one off-chain strategy check.
func (m *Metrics) ObserveCheck(strategyID, outcome string, d time.Duration) {
	if m != nil {
		m.Checks.WithLabelValues(strategyID, outcome).Inc()
		m.CheckDuration.WithLabelValues(strategyID).Observe(d.Seconds())
	}
}
