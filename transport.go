package instrumentz

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Transport delivers reports to a collector. Implementations own the wire
// format.
type Transport interface {
	Send(ctx context.Context, report *Report) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, report *Report) error

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, report *Report) error {
	return f(ctx, report)
}

// LogTransport writes every trace of a report to a zap logger.
type LogTransport struct {
	logger *zap.Logger
}

// NewLogTransport creates a transport logging to logger.
func NewLogTransport(logger *zap.Logger) *LogTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogTransport{logger: logger}
}

// Send logs one line per trace.
func (t *LogTransport) Send(_ context.Context, report *Report) error {
	for _, endpoint := range report.EndpointNames() {
		for _, trace := range report.Traces(endpoint) {
			t.logger.Info("trace",
				zap.String("endpoint", endpoint),
				zap.String("uuid", trace.UUID),
				zap.Int("spans", len(trace.Spans)),
				zap.Int64("duration", trace.Duration()),
				zap.Any("span_list", trace.Spans),
			)
		}
	}
	return nil
}

// MemoryTransport keeps every report it receives.
// Safe for concurrent use by multiple goroutines.
type MemoryTransport struct {
	reports []*Report
	mu      sync.Mutex
}

// NewMemoryTransport creates an empty in-memory transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{}
}

// Send stores report.
func (t *MemoryTransport) Send(_ context.Context, report *Report) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reports = append(t.reports, report)
	return nil
}

// Reports returns a copy of the received reports.
func (t *MemoryTransport) Reports() []*Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	reports := make([]*Report, len(t.reports))
	copy(reports, t.reports)
	return reports
}

// Merged combines every received report into one, preserving per-endpoint
// order.
func (t *MemoryTransport) Merged() *Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	merged := &Report{Endpoints: make(map[Endpoint][]*Trace)}
	for _, report := range t.reports {
		for endpoint, traces := range report.Endpoints {
			merged.Endpoints[endpoint] = append(merged.Endpoints[endpoint], traces...)
		}
	}
	return merged
}

// Reset forgets every received report.
func (t *MemoryTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reports = nil
}
