package instrumentz

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus counters.
type Metrics struct {
	TracesRecorded  prometheus.Counter
	TracesIgnored   prometheus.Counter
	TracesDiscarded prometheus.Counter
	TracesDropped   prometheus.Counter
	SpansRecorded   prometheus.Counter
	Flushes         prometheus.Counter
	FlushErrors     prometheus.Counter
}

// NewMetrics registers the engine counters on reg. A nil reg uses a fresh
// private registry, so several agents can live in one process. Counters
// already registered on reg are reused, so an agent restarted with the same
// registerer keeps counting where it left off.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		TracesRecorded: registerCounter(reg, prometheus.CounterOpts{
			Name: "instrumentz_traces_recorded_total",
			Help: "Completed traces handed to the report accumulator",
		}),
		TracesIgnored: registerCounter(reg, prometheus.CounterOpts{
			Name: "instrumentz_traces_ignored_total",
			Help: "Completed traces discarded because their endpoint is ignored",
		}),
		TracesDiscarded: registerCounter(reg, prometheus.CounterOpts{
			Name: "instrumentz_traces_discarded_total",
			Help: "Traces discarded after a span lifecycle violation",
		}),
		TracesDropped: registerCounter(reg, prometheus.CounterOpts{
			Name: "instrumentz_traces_dropped_total",
			Help: "Traces dropped because an endpoint buffer was full",
		}),
		SpansRecorded: registerCounter(reg, prometheus.CounterOpts{
			Name: "instrumentz_spans_recorded_total",
			Help: "Spans contained in recorded traces",
		}),
		Flushes: registerCounter(reg, prometheus.CounterOpts{
			Name: "instrumentz_flushes_total",
			Help: "Reports handed to the transport",
		}),
		FlushErrors: registerCounter(reg, prometheus.CounterOpts{
			Name: "instrumentz_flush_errors_total",
			Help: "Reports the transport failed to deliver",
		}),
	}
}

// registerCounter registers a counter on reg, returning the existing one
// when an identical counter is already registered.
func registerCounter(reg prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	counter := prometheus.NewCounter(opts)
	if err := reg.Register(counter); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing
			}
		}
		panic(err)
	}
	return counter
}
