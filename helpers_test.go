package instrumentz

import (
	"context"
	"testing"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// testConfig returns a valid configuration wired to deterministic collaborators.
func testConfig(clock Clock, transport Transport) Config {
	cfg := DefaultConfig()
	cfg.Token = "test-token"
	cfg.Clock = clock
	cfg.Transport = transport
	cfg.Logger = zap.NewNop()
	cfg.UUID = StaticUUID("static-uuid")
	cfg.FlushInterval = 0
	return cfg
}

// startTestAgent starts an agent on a frozen virtual clock. mutate may adjust
// the configuration before start.
func startTestAgent(t *testing.T, mutate func(*Config)) (*Agent, *VirtualClock, *MemoryTransport) {
	t.Helper()

	clock := NewVirtualClock(clockz.NewFakeClock())
	clock.Freeze()
	transport := NewMemoryTransport()

	cfg := testConfig(clock, transport)
	if mutate != nil {
		mutate(&cfg)
	}

	agent := NewAgent(zap.NewNop())
	if _, err := agent.Start(cfg); err != nil {
		t.Fatalf("Expected agent to start, got %v", err)
	}
	t.Cleanup(func() {
		_ = agent.Stop(context.Background())
	})
	return agent, clock, transport
}

// stopAndCollect stops the agent and returns everything it reported.
func stopAndCollect(t *testing.T, agent *Agent, transport *MemoryTransport) *Report {
	t.Helper()
	if err := agent.Stop(context.Background()); err != nil {
		t.Fatalf("Expected clean stop, got %v", err)
	}
	return transport.Merged()
}

// singleTrace asserts the report holds exactly one trace for endpoint.
func singleTrace(t *testing.T, report *Report, endpoint Endpoint) *Trace {
	t.Helper()
	traces := report.Traces(endpoint)
	if len(traces) != 1 {
		t.Fatalf("Expected 1 trace for %s, got %d", endpoint, len(traces))
	}
	return traces[0]
}

func assertSpan(t *testing.T, got Span, want Span) {
	t.Helper()
	if got != want {
		t.Errorf("Expected span %+v, got %+v", want, got)
	}
}
