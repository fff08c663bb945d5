package instrumentz

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Report is a batch of completed traces grouped by endpoint.
type Report struct {
	Endpoints map[Endpoint][]*Trace `json:"endpoints"`
}

// EndpointNames returns the endpoint names in the report, sorted.
func (r *Report) EndpointNames() []Endpoint {
	names := make([]Endpoint, 0, len(r.Endpoints))
	for name := range r.Endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Traces returns the traces recorded under endpoint, in insertion order.
func (r *Report) Traces(endpoint Endpoint) []*Trace {
	return r.Endpoints[endpoint]
}

// Len returns the total number of traces in the report.
func (r *Report) Len() int {
	n := 0
	for _, traces := range r.Endpoints {
		n += len(traces)
	}
	return n
}

// Accumulator buffers completed traces by endpoint until drained.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Accumulator struct {
	endpoints      map[Endpoint][]*Trace
	count          int
	maxPerEndpoint int
	droppedCount   atomic.Int64
	mu             sync.Mutex
}

// NewAccumulator creates an accumulator. maxPerEndpoint caps the number of
// traces buffered per endpoint between drains; zero means unbounded.
func NewAccumulator(maxPerEndpoint int) *Accumulator {
	return &Accumulator{
		endpoints:      make(map[Endpoint][]*Trace),
		maxPerEndpoint: maxPerEndpoint,
	}
}

// Record appends trace under its endpoint. It returns false when the trace
// was dropped because the endpoint buffer is full.
func (a *Accumulator) Record(trace *Trace) bool {
	// Nil check to prevent panic in the recording goroutine.
	if trace == nil {
		a.droppedCount.Add(1)
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	traces := a.endpoints[trace.Endpoint]
	if a.maxPerEndpoint > 0 && len(traces) >= a.maxPerEndpoint {
		a.droppedCount.Add(1)
		return false
	}
	a.endpoints[trace.Endpoint] = append(traces, trace)
	a.count++
	return true
}

// Drain detaches and returns everything recorded since the last drain.
// It returns nil when nothing was recorded.
func (a *Accumulator) Drain() *Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.count == 0 {
		return nil
	}

	report := &Report{Endpoints: a.endpoints}
	a.endpoints = make(map[Endpoint][]*Trace, len(report.Endpoints))
	a.count = 0
	return report
}

// Count returns the number of buffered traces.
func (a *Accumulator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Dropped returns the total number of traces dropped because an endpoint
// buffer was full.
func (a *Accumulator) Dropped() int64 {
	return a.droppedCount.Load()
}

// Reset clears all buffered traces and the drop counter.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.endpoints = make(map[Endpoint][]*Trace)
	a.count = 0
	a.droppedCount.Store(0)
}
