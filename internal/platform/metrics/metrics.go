package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the node-level runtime metrics.
type Metrics struct {
	BlocksProduced    prometheus.Counter
	BestBlock         prometheus.Gauge
	ExtrinsicsApplied *prometheus.CounterVec
	UnsignedPoolSize  prometheus.Gauge
	UnsignedRejected  *prometheus.CounterVec
	WorkerTickLatency prometheus.Histogram
}

// New creates and registers the runtime metrics with the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the runtime metrics with reg. Tests pass a fresh
// registry to avoid duplicate registration.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BlocksProduced: factory.NewCounter(prometheus.CounterOpts{
			Name: "node_blocks_produced_total",
			Help: "Total number of blocks finalized by this node",
		}),
		BestBlock: factory.NewGauge(prometheus.GaugeOpts{
			Name: "node_best_block",
			Help: "Number of the latest finalized block",
		}),
		ExtrinsicsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "node_extrinsics_applied_total",
			Help: "Extrinsics applied, by call and result",
		}, []string{"call", "result"}),
		UnsignedPoolSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "node_unsigned_pool_size",
			Help: "Unsigned transactions waiting for inclusion",
		}),
		UnsignedRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "node_unsigned_rejected_total",
			Help: "Unsigned transactions rejected by validation, by reason",
		}, []string{"reason"}),
		WorkerTickLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "node_offchain_worker_tick_seconds",
			Help:    "Duration of one off-chain worker tick",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// IncrementBlocksProduced records a finalized block.
func (m *Metrics) IncrementBlocksProduced(number uint64) {
	if m == nil {
		return
	}
	m.BlocksProduced.Inc()
	m.BestBlock.Set(float64(number))
}

func (m *Metrics) ObserveExtrinsic(call string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ExtrinsicsApplied.WithLabelValues(call, result).Inc()
}

func (m *Metrics) SetUnsignedPoolSize(n int) {
	if m == nil {
		return
	}
	m.UnsignedPoolSize.Set(float64(n))
}

func (m *Metrics) IncrementUnsignedRejected(reason string) {
	if m == nil {
		return
	}
	m.UnsignedRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveWorkerTick(seconds float64) {
	if m == nil {
		return
	}
	m.WorkerTickLatency.Observe(seconds)
}
