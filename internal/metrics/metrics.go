// Package metrics exposes the chainer's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors. It registers against an injectable
// Registerer so tests can use a private registry.
type Metrics struct {
	Executions   *prometheus.CounterVec
	StepDuration prometheus.Histogram
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
	Reconnects   prometheus.Counter
}

// New creates and registers the collectors.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolweave_chain_executions_total",
			Help: "Chain executions by terminal status.",
		}, []string{"status"}),
		StepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "toolweave_step_duration_seconds",
			Help:    "Wall time of individual chain steps.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toolweave_cache_hits_total",
			Help: "Step invocations served from the result cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toolweave_cache_misses_total",
			Help: "Step invocations that missed the result cache.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toolweave_rpc_reconnects_total",
			Help: "Transparent reconnects to crashed tool services.",
		}),
	}
	reg.MustRegister(m.Executions, m.StepDuration, m.CacheHits, m.CacheMisses, m.Reconnects)
	return m
}
