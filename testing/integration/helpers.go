package integration

import (
	"context"
	"testing"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/instrumentz"
	"go.uber.org/zap"
)

// Harness runs an agent against an in-memory transport on a frozen clock.
// Provides collection and verification helpers.
//
//nolint:govet // Field alignment optimized for test helper readability
type Harness struct {
	Agent     *instrumentz.Agent
	Clock     *instrumentz.VirtualClock
	Transport *instrumentz.MemoryTransport
	t         *testing.T
	collected *instrumentz.Report
}

// NewHarness starts an agent for testing. mutate may adjust the config.
func NewHarness(t *testing.T, mutate func(*instrumentz.Config)) *Harness {
	t.Helper()

	clock := instrumentz.NewVirtualClock(clockz.NewFakeClock())
	clock.Freeze()
	transport := instrumentz.NewMemoryTransport()

	cfg := instrumentz.DefaultConfig()
	cfg.Token = "integration-token"
	cfg.Clock = clock
	cfg.Transport = transport
	cfg.Logger = zap.NewNop()
	cfg.FlushInterval = 0
	if mutate != nil {
		mutate(&cfg)
	}

	agent := instrumentz.NewAgent(zap.NewNop())
	if _, err := agent.Start(cfg); err != nil {
		t.Fatalf("Failed to start agent: %v", err)
	}
	t.Cleanup(func() {
		_ = agent.Stop(context.Background())
	})

	return &Harness{Agent: agent, Clock: clock, Transport: transport, t: t}
}

// Collect stops the agent and returns every trace it reported.
func (h *Harness) Collect() *instrumentz.Report {
	h.t.Helper()
	if h.collected != nil {
		return h.collected
	}
	if err := h.Agent.Stop(context.Background()); err != nil {
		h.t.Fatalf("Failed to stop agent: %v", err)
	}
	h.collected = h.Transport.Merged()
	return h.collected
}

// AssertTraceCount verifies the number of traces reported for endpoint.
func (h *Harness) AssertTraceCount(endpoint instrumentz.Endpoint, expected int) []*instrumentz.Trace {
	h.t.Helper()
	traces := h.Collect().Traces(endpoint)
	if len(traces) != expected {
		h.t.Errorf("Expected %d traces for %s, got %d", expected, endpoint, len(traces))
	}
	return traces
}

// FindSpan returns the index of the first span with the given title, or -1.
func FindSpan(trace *instrumentz.Trace, title string) int {
	for i := range trace.Spans {
		if trace.Spans[i].Event.Title == title {
			return i
		}
	}
	return -1
}

// AssertParentChild verifies that the span titled child is a direct child
// of the span titled parent. An empty parent title means the root.
func AssertParentChild(t *testing.T, trace *instrumentz.Trace, parentTitle, childTitle string) {
	t.Helper()

	parent := len(trace.Spans) - 1
	if parentTitle != "" {
		parent = FindSpan(trace, parentTitle)
	}
	child := FindSpan(trace, childTitle)

	if parent < 0 {
		t.Errorf("Parent span '%s' not found", parentTitle)
		return
	}
	if child < 0 {
		t.Errorf("Child span '%s' not found", childTitle)
		return
	}
	if trace.Spans[child].Parent != parent {
		t.Errorf("Parent-child relationship broken: %s is not parent of %s. Child Parent=%d, parent index=%d",
			parentTitle, childTitle, trace.Spans[child].Parent, parent)
	}
}

// AssertWellFormed checks the structural properties every reported trace
// must have.
func AssertWellFormed(t *testing.T, trace *instrumentz.Trace) {
	t.Helper()

	n := len(trace.Spans)
	if n == 0 {
		t.Error("Trace has no spans")
		return
	}

	children := make([]int, n)
	for i, span := range trace.Spans {
		if i == n-1 {
			if !span.IsRoot() {
				t.Errorf("Last span must be the root, got parent %d", span.Parent)
			}
			continue
		}
		if span.IsRoot() {
			t.Errorf("Span %d is a second root", i)
			continue
		}
		if span.Parent <= i || span.Parent >= n {
			t.Errorf("Span %d has parent %d outside (%d, %d)", i, span.Parent, i, n)
			continue
		}
		children[span.Parent]++

		parent := trace.Spans[span.Parent]
		if span.StartedAt < parent.StartedAt || span.End() > parent.End() {
			t.Errorf("Span %d [%d, %d] escapes parent %d [%d, %d]",
				i, span.StartedAt, span.End(), span.Parent, parent.StartedAt, parent.End())
		}
	}

	for i, span := range trace.Spans {
		if span.Children != children[i] {
			t.Errorf("Span %d reports %d children, found %d", i, span.Children, children[i])
		}
	}
}

// Noop is an Instrument callback that does nothing.
func Noop(context.Context, *instrumentz.SpanScope) error {
	return nil
}
