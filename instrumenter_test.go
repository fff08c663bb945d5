package instrumentz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTraceRecordsRootSpan(t *testing.T) {
	agent, clock, transport := startTestAgent(t, nil)

	err := agent.Trace(context.Background(), "Testin", "app.rack", func(_ context.Context, scope *TraceScope) error {
		if scope == nil {
			t.Fatal("Expected a trace scope while running")
		}
		if scope.Endpoint() != "Testin" {
			t.Errorf("Expected endpoint 'Testin', got %s", scope.Endpoint())
		}
		clock.Skip(time.Second)
		return nil
	})
	if err != nil {
		t.Fatalf("Expected nil error, got %v", err)
	}

	report := stopAndCollect(t, agent, transport)
	if names := report.EndpointNames(); len(names) != 1 {
		t.Fatalf("Expected 1 endpoint, got %v", names)
	}

	trace := singleTrace(t, report, "Testin")
	if trace.UUID != "static-uuid" {
		t.Errorf("Expected uuid 'static-uuid', got %s", trace.UUID)
	}
	if len(trace.Spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(trace.Spans))
	}
	assertSpan(t, trace.Spans[0], Span{
		Event:     Event{Category: "app.rack"},
		StartedAt: 0,
		Duration:  10_000,
		Parent:    NoParent,
	})
}

func TestTraceTracksCustomInstrumentation(t *testing.T) {
	agent, clock, transport := startTestAgent(t, nil)

	err := agent.Trace(context.Background(), "Testin", "app.rack.request", func(ctx context.Context, _ *TraceScope) error {
		clock.Skip(100 * time.Millisecond)
		ret, err := InstrumentValue(ctx, agent, "app.foo", "", func(_ context.Context, _ *SpanScope) (int, error) {
			clock.Skip(100 * time.Millisecond)
			return 3, nil
		})
		if ret != 3 {
			t.Errorf("Expected 3, got %d", ret)
		}
		return err
	})
	if err != nil {
		t.Fatalf("Expected nil error, got %v", err)
	}

	trace := singleTrace(t, stopAndCollect(t, agent, transport), "Testin")
	if len(trace.Spans) != 2 {
		t.Fatalf("Expected 2 spans, got %d", len(trace.Spans))
	}
	assertSpan(t, trace.Spans[0], Span{
		Event:     Event{Category: "app.foo"},
		StartedAt: 1_000,
		Duration:  1_000,
		Parent:    1,
	})
	assertSpan(t, trace.Spans[1], Span{
		Event:     Event{Category: "app.rack.request"},
		StartedAt: 0,
		Duration:  2_000,
		Parent:    NoParent,
		Children:  1,
	})
}

func TestTraceRecategorizesUnknownEvents(t *testing.T) {
	agent, clock, transport := startTestAgent(t, nil)

	_ = agent.Trace(context.Background(), "Testin", "app.rack.request", func(ctx context.Context, _ *TraceScope) error {
		clock.Skip(100 * time.Millisecond)
		return agent.Instrument(ctx, "foo", "", func(_ context.Context, s *SpanScope) error {
			if s.Event().Category != "other.foo" {
				t.Errorf("Expected scope category 'other.foo', got %s", s.Event().Category)
			}
			clock.Skip(100 * time.Millisecond)
			return nil
		})
	})

	trace := singleTrace(t, stopAndCollect(t, agent, transport), "Testin")
	assertSpan(t, trace.Spans[0], Span{
		Event:     Event{Category: "other.foo"},
		StartedAt: 1_000,
		Duration:  1_000,
		Parent:    1,
	})
}

func TestTraceZeroDurationSpans(t *testing.T) {
	agent, _, transport := startTestAgent(t, nil)

	_ = agent.Trace(context.Background(), "Testin", "app.rack", func(ctx context.Context, _ *TraceScope) error {
		return agent.Instrument(ctx, "app.noop", "", func(context.Context, *SpanScope) error { return nil })
	})

	trace := singleTrace(t, stopAndCollect(t, agent, transport), "Testin")
	for i, span := range trace.Spans {
		if span.Duration != 0 || span.StartedAt != 0 {
			t.Errorf("Expected span %d to be zero length at 0, got %+v", i, span)
		}
	}
	if trace.Root().Children != 1 {
		t.Errorf("Expected root with 1 child, got %d", trace.Root().Children)
	}
}

func TestDisableIgnoresNestedSpans(t *testing.T) {
	agent, clock, transport := startTestAgent(t, nil)

	_ = agent.Trace(context.Background(), "Testin", "app.rack", func(ctx context.Context, _ *TraceScope) error {
		return agent.Disable(ctx, func(ctx context.Context) error {
			return InstrumentSQL(ctx, agent, "Load User", "SELECT * FROM posts", func(_ context.Context, s *SpanScope) error {
				if s != nil {
					t.Error("Expected nil span scope while disabled")
				}
				clock.Skip(time.Second)
				return nil
			})
		})
	})

	trace := singleTrace(t, stopAndCollect(t, agent, transport), "Testin")
	if len(trace.Spans) != 1 {
		t.Fatalf("Expected only the root span, got %d spans", len(trace.Spans))
	}
	assertSpan(t, trace.Spans[0], Span{
		Event:     Event{Category: "app.rack"},
		StartedAt: 0,
		Duration:  10_000,
		Parent:    NoParent,
	})
}

func TestDisableRestoresAfterError(t *testing.T) {
	agent, _, transport := startTestAgent(t, nil)
	boom := errors.New("boom")

	_ = agent.Trace(context.Background(), "Testin", "app.rack", func(ctx context.Context, _ *TraceScope) error {
		err := agent.Disable(ctx, func(ctx context.Context) error {
			if !agent.Instrumenter().Disabled(ctx) {
				t.Error("Expected instrumentation to be disabled inside the block")
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("Expected boom from Disable, got %v", err)
		}
		if agent.Instrumenter().Disabled(ctx) {
			t.Error("Expected instrumentation to be enabled after the block")
		}
		return agent.Instrument(ctx, "app.after", "", func(context.Context, *SpanScope) error { return nil })
	})

	trace := singleTrace(t, stopAndCollect(t, agent, transport), "Testin")
	if len(trace.Spans) != 2 {
		t.Errorf("Expected 2 spans after disable scope ended, got %d", len(trace.Spans))
	}
}

func TestDisableRestoresAfterPanic(t *testing.T) {
	agent, _, _ := startTestAgent(t, nil)
	ctx := NewExecutionContext(context.Background())

	func() {
		defer func() { _ = recover() }()
		_ = agent.Disable(ctx, func(context.Context) error { panic("disabled panic") })
	}()

	if agent.Instrumenter().Disabled(ctx) {
		t.Error("Expected instrumentation to be enabled after a panic")
	}
}

func TestDisableNests(t *testing.T) {
	agent, _, _ := startTestAgent(t, nil)
	inst := agent.Instrumenter()
	ctx := NewExecutionContext(context.Background())

	_ = inst.Disable(ctx, func(ctx context.Context) error {
		_ = inst.Disable(ctx, func(context.Context) error { return nil })
		if !inst.Disabled(ctx) {
			t.Error("Expected outer disable scope to survive inner scope exit")
		}
		return nil
	})
	if inst.Disabled(ctx) {
		t.Error("Expected enabled after outer scope")
	}
	if inst.registry.size() != 0 {
		t.Errorf("Expected registry to be empty, got %d entries", inst.registry.size())
	}
}

func traceEndpoints(agent *Agent, names ...string) {
	for _, name := range names {
		_ = agent.Trace(context.Background(), name, "app.rack", func(context.Context, *TraceScope) error {
			return nil
		})
	}
}

func TestIgnoredEndpoint(t *testing.T) {
	agent, _, transport := startTestAgent(t, func(cfg *Config) {
		cfg.IgnoredEndpoint = "foo#heartbeat"
	})

	traceEndpoints(agent, "foo#bar", "foo#heartbeat")

	report := stopAndCollect(t, agent, transport)
	names := report.EndpointNames()
	if len(names) != 1 || names[0] != "foo#bar" {
		t.Errorf("Expected only foo#bar, got %v", names)
	}
}

func TestIgnoredEndpointsMerged(t *testing.T) {
	agent, _, transport := startTestAgent(t, func(cfg *Config) {
		cfg.IgnoredEndpoint = "foo#heartbeat"
		cfg.IgnoredEndpoints = EndpointList{"bar#heartbeat", "baz#heartbeat"}
	})

	traceEndpoints(agent, "foo#bar", "foo#heartbeat", "bar#heartbeat", "baz#heartbeat")

	report := stopAndCollect(t, agent, transport)
	names := report.EndpointNames()
	if len(names) != 1 || names[0] != "foo#bar" {
		t.Errorf("Expected only foo#bar, got %v", names)
	}
}

func TestIgnoredEndpointsWithCommas(t *testing.T) {
	agent, _, transport := startTestAgent(t, func(cfg *Config) {
		cfg.IgnoredEndpoints = ParseEndpointList("foo#heartbeat, bar#heartbeat,baz#heartbeat")
	})

	traceEndpoints(agent, "foo#bar", "foo#heartbeat", "bar#heartbeat", "baz#heartbeat")
	ignored := testutil.ToFloat64(agent.Instrumenter().Metrics().TracesIgnored)

	report := stopAndCollect(t, agent, transport)
	names := report.EndpointNames()
	if len(names) != 1 || names[0] != "foo#bar" {
		t.Errorf("Expected only foo#bar, got %v", names)
	}
	if ignored != 3 {
		t.Errorf("Expected 3 ignored traces, got %v", ignored)
	}
}

func TestInstrumentClosesSpanOnError(t *testing.T) {
	agent, clock, transport := startTestAgent(t, nil)
	boom := errors.New("boom")

	err := agent.Trace(context.Background(), "Testin", "app.rack", func(ctx context.Context, _ *TraceScope) error {
		err := agent.Instrument(ctx, "app.fail", "", func(context.Context, *SpanScope) error {
			clock.Skip(300 * time.Millisecond)
			return boom
		})
		clock.Skip(100 * time.Millisecond)
		return err
	})
	if err != boom {
		t.Fatalf("Expected the same error back, got %v", err)
	}

	trace := singleTrace(t, stopAndCollect(t, agent, transport), "Testin")
	assertSpan(t, trace.Spans[0], Span{
		Event:    Event{Category: "app.fail"},
		Duration: 3_000,
		Parent:   1,
	})
	if trace.Root().Duration != 4_000 {
		t.Errorf("Expected root duration 4000, got %d", trace.Root().Duration)
	}
}

func TestInstrumentClosesSpanOnPanic(t *testing.T) {
	agent, clock, transport := startTestAgent(t, nil)

	var recovered interface{}
	func() {
		defer func() { recovered = recover() }()
		_ = agent.Trace(context.Background(), "Testin", "app.rack", func(ctx context.Context, _ *TraceScope) error {
			return agent.Instrument(ctx, "app.crash", "", func(context.Context, *SpanScope) error {
				clock.Skip(200 * time.Millisecond)
				panic("crash")
			})
		})
	}()
	if recovered != "crash" {
		t.Fatalf("Expected panic value 'crash' to propagate, got %v", recovered)
	}

	trace := singleTrace(t, stopAndCollect(t, agent, transport), "Testin")
	if len(trace.Spans) != 2 {
		t.Fatalf("Expected 2 spans, got %d", len(trace.Spans))
	}
	if trace.Spans[0].Duration != 2_000 {
		t.Errorf("Expected partial duration 2000, got %d", trace.Spans[0].Duration)
	}
}

func TestNestedTraceDoesNotNest(t *testing.T) {
	agent, _, transport := startTestAgent(t, nil)

	_ = agent.Trace(context.Background(), "outer", "app.rack", func(ctx context.Context, _ *TraceScope) error {
		return agent.Trace(ctx, "inner", "app.rack", func(_ context.Context, scope *TraceScope) error {
			if scope != nil {
				t.Error("Expected nil scope for a nested trace")
			}
			return nil
		})
	})

	report := stopAndCollect(t, agent, transport)
	if len(report.Traces("inner")) != 0 {
		t.Error("Expected no inner trace")
	}
	singleTrace(t, report, "outer")
}

func TestInstrumentOutsideTraceIsNoOp(t *testing.T) {
	agent, _, transport := startTestAgent(t, nil)

	called := false
	err := agent.Instrument(context.Background(), "app.lonely", "", func(_ context.Context, s *SpanScope) error {
		called = true
		if s != nil {
			t.Error("Expected nil scope without a trace")
		}
		return nil
	})
	if err != nil || !called {
		t.Errorf("Expected block to run cleanly, called=%v err=%v", called, err)
	}
	if report := stopAndCollect(t, agent, transport); report.Len() != 0 {
		t.Errorf("Expected empty report, got %d traces", report.Len())
	}
}

func TestOutOfOrderCloseDiscardsTrace(t *testing.T) {
	agent, _, transport := startTestAgent(t, nil)
	inst := agent.Instrumenter()

	_ = agent.Trace(context.Background(), "broken", "app.rack", func(ctx context.Context, _ *TraceScope) error {
		outer := inst.OpenSpan(ctx, "app.outer", "")
		inner := inst.OpenSpan(ctx, "app.inner", "")
		inst.CloseSpan(ctx, outer)
		inst.CloseSpan(ctx, inner)
		return nil
	})
	traceEndpoints(agent, "healthy")

	discarded := testutil.ToFloat64(inst.Metrics().TracesDiscarded)
	report := stopAndCollect(t, agent, transport)
	if len(report.Traces("broken")) != 0 {
		t.Error("Expected broken trace to be discarded")
	}
	singleTrace(t, report, "healthy")
	if discarded != 1 {
		t.Errorf("Expected 1 discarded trace, got %v", discarded)
	}
}

func TestDoubleCloseDiscardsTrace(t *testing.T) {
	agent, _, transport := startTestAgent(t, nil)
	inst := agent.Instrumenter()

	_ = agent.Trace(context.Background(), "broken", "app.rack", func(ctx context.Context, _ *TraceScope) error {
		h := inst.OpenSpan(ctx, "app.once", "")
		inst.CloseSpan(ctx, h)
		inst.CloseSpan(ctx, h)
		return nil
	})

	if report := stopAndCollect(t, agent, transport); report.Len() != 0 {
		t.Errorf("Expected no traces, got %d", report.Len())
	}
}

func TestCloseInvalidHandleIsNoOp(t *testing.T) {
	agent, _, transport := startTestAgent(t, nil)
	inst := agent.Instrumenter()

	_ = agent.Trace(context.Background(), "ok", "app.rack", func(ctx context.Context, _ *TraceScope) error {
		inst.CloseSpan(ctx, SpanHandle{})
		return nil
	})

	singleTrace(t, stopAndCollect(t, agent, transport), "ok")
}

func TestEmptyCategoryIsNotRecorded(t *testing.T) {
	agent, _, transport := startTestAgent(t, nil)

	_ = agent.Trace(context.Background(), "Testin", "app.rack", func(ctx context.Context, _ *TraceScope) error {
		return agent.Instrument(ctx, "", "nothing", func(_ context.Context, s *SpanScope) error {
			if s != nil {
				t.Error("Expected nil scope for an empty category")
			}
			return nil
		})
	})

	trace := singleTrace(t, stopAndCollect(t, agent, transport), "Testin")
	if len(trace.Spans) != 1 {
		t.Errorf("Expected only the root span, got %d", len(trace.Spans))
	}
}

func TestLimitedDescription(t *testing.T) {
	endpoint := ""
	agent, _, _ := startTestAgent(t, func(cfg *Config) {
		cfg.TraceInfo = TraceInfoFunc(func(context.Context) (Endpoint, bool) {
			return endpoint, endpoint != ""
		})
	})
	ctx := context.Background()
	endpoint = "foo#bar"

	for i := 0; i < 100; i++ {
		description := fmt.Sprintf("%032x", i)
		if got := agent.LimitedDescription(ctx, description); got != description {
			t.Fatalf("Expected %s, got %s", description, got)
		}
	}

	if got := agent.LimitedDescription(ctx, "one-too-many"); got != TooManyUniqueDescriptions {
		t.Errorf("Expected %s, got %s", TooManyUniqueDescriptions, got)
	}
	if got := agent.LimitedDescription(ctx, fmt.Sprintf("%032x", 7)); got != fmt.Sprintf("%032x", 7) {
		t.Errorf("Expected previously seen description to pass, got %s", got)
	}

	endpoint = "foo#baz"
	if got := agent.LimitedDescription(ctx, "one-too-many"); got != "one-too-many" {
		t.Errorf("Expected other endpoint to be unaffected, got %s", got)
	}
}

func TestLimitedDescriptionUsesCurrentTrace(t *testing.T) {
	agent, _, _ := startTestAgent(t, func(cfg *Config) {
		cfg.MaxUniqueDescriptions = 1
	})

	_ = agent.Trace(context.Background(), "users#show", "app.rack", func(ctx context.Context, _ *TraceScope) error {
		if got := agent.LimitedDescription(ctx, "first"); got != "first" {
			t.Errorf("Expected 'first', got %s", got)
		}
		if got := agent.LimitedDescription(ctx, "second"); got != TooManyUniqueDescriptions {
			t.Errorf("Expected sentinel, got %s", got)
		}
		return nil
	})
}

func TestSpanTitlesAreLimitedPerEndpoint(t *testing.T) {
	agent, _, transport := startTestAgent(t, func(cfg *Config) {
		cfg.MaxUniqueDescriptions = 2
	})

	_ = agent.Trace(context.Background(), "Testin", "app.rack", func(ctx context.Context, _ *TraceScope) error {
		for _, title := range []string{"a", "b", "c", "a", "d"} {
			_ = agent.Instrument(ctx, "app.step", title, func(context.Context, *SpanScope) error { return nil })
		}
		return nil
	})

	trace := singleTrace(t, stopAndCollect(t, agent, transport), "Testin")
	want := []string{"a", "b", TooManyUniqueDescriptions, "a", TooManyUniqueDescriptions}
	for i, title := range want {
		if trace.Spans[i].Event.Title != title {
			t.Errorf("Expected span %d title %q, got %q", i, title, trace.Spans[i].Event.Title)
		}
	}
}

func TestInvalidUTF8TitleIsReplaced(t *testing.T) {
	agent, _, transport := startTestAgent(t, nil)

	_ = agent.Trace(context.Background(), "Testin", "app.rack", func(ctx context.Context, _ *TraceScope) error {
		return agent.Instrument(ctx, "app.bad", "SELECT \xce", func(context.Context, *SpanScope) error { return nil })
	})

	trace := singleTrace(t, stopAndCollect(t, agent, transport), "Testin")
	if trace.Spans[0].Event.Title != InvalidDescription {
		t.Errorf("Expected %q, got %q", InvalidDescription, trace.Spans[0].Event.Title)
	}
}

func TestDeepNestingBuildsTree(t *testing.T) {
	agent, clock, transport := startTestAgent(t, nil)
	const depth = 12

	var nest func(ctx context.Context, level int) error
	nest = func(ctx context.Context, level int) error {
		if level == depth {
			return nil
		}
		clock.Skip(10 * time.Millisecond)
		err := agent.Instrument(ctx, "app.level", fmt.Sprintf("level-%d", level), func(ctx context.Context, _ *SpanScope) error {
			if err := nest(ctx, level+1); err != nil {
				return err
			}
			clock.Skip(10 * time.Millisecond)
			return nil
		})
		return err
	}

	_ = agent.Trace(context.Background(), "deep", "app.rack", func(ctx context.Context, _ *TraceScope) error {
		return nest(ctx, 0)
	})

	trace := singleTrace(t, stopAndCollect(t, agent, transport), "deep")
	if len(trace.Spans) != depth+1 {
		t.Fatalf("Expected %d spans, got %d", depth+1, len(trace.Spans))
	}
	if !trace.Root().IsRoot() {
		t.Fatal("Expected the last span to be the root")
	}

	total := trace.Duration()
	for i, span := range trace.Spans {
		if span.StartedAt < 0 || span.StartedAt > total {
			t.Errorf("Span %d starts outside the trace: %+v", i, span)
		}
		if len(trace.Children(i)) != span.Children {
			t.Errorf("Span %d child count %d does not match %d links", i, span.Children, len(trace.Children(i)))
		}
		if span.IsRoot() {
			continue
		}
		if span.Parent <= i {
			t.Errorf("Span %d parent %d does not follow it in close order", i, span.Parent)
		}
		parent := trace.Spans[span.Parent]
		if span.StartedAt < parent.StartedAt || span.End() > parent.End() {
			t.Errorf("Span %d [%d,%d] escapes parent [%d,%d]", i, span.StartedAt, span.End(), parent.StartedAt, parent.End())
		}
	}
}

func TestSiblingSpansShareParent(t *testing.T) {
	agent, clock, transport := startTestAgent(t, nil)

	_ = agent.Trace(context.Background(), "siblings", "app.rack", func(ctx context.Context, _ *TraceScope) error {
		for i := 0; i < 3; i++ {
			_ = agent.Instrument(ctx, "app.child", "", func(ctx context.Context, _ *SpanScope) error {
				clock.Skip(100 * time.Millisecond)
				return agent.Instrument(ctx, "app.grandchild", "", func(context.Context, *SpanScope) error {
					clock.Skip(100 * time.Millisecond)
					return nil
				})
			})
		}
		return nil
	})

	trace := singleTrace(t, stopAndCollect(t, agent, transport), "siblings")
	if len(trace.Spans) != 7 {
		t.Fatalf("Expected 7 spans, got %d", len(trace.Spans))
	}
	root := len(trace.Spans) - 1
	if got := len(trace.Children(root)); got != 3 || trace.Root().Children != 3 {
		t.Errorf("Expected root with 3 children, got links=%d count=%d", got, trace.Root().Children)
	}
	// Close order: grandchild, child, grandchild, child, grandchild, child, root.
	for _, i := range []int{0, 2, 4} {
		if trace.Spans[i].Parent != i+1 {
			t.Errorf("Expected grandchild %d to point at %d, got %d", i, i+1, trace.Spans[i].Parent)
		}
		if trace.Spans[i+1].Parent != root {
			t.Errorf("Expected child %d to point at root, got %d", i+1, trace.Spans[i+1].Parent)
		}
	}
	if trace.Spans[5].StartedAt != 4_000 || trace.Spans[5].Duration != 2_000 {
		t.Errorf("Expected third child at 4000 for 2000, got %+v", trace.Spans[5])
	}
}

func TestConcurrentTraces(t *testing.T) {
	agent, _, transport := startTestAgent(t, nil)

	const workers = 20
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			endpoint := fmt.Sprintf("worker#%d", w%4)
			_ = agent.Trace(NewExecutionContext(context.Background()), endpoint, "app.job", func(ctx context.Context, _ *TraceScope) error {
				for i := 0; i < 5; i++ {
					_ = agent.Instrument(ctx, "app.step", "step", func(context.Context, *SpanScope) error { return nil })
				}
				return nil
			})
		}(w)
	}
	wg.Wait()

	report := stopAndCollect(t, agent, transport)
	if report.Len() != workers {
		t.Fatalf("Expected %d traces, got %d", workers, report.Len())
	}
	for _, endpoint := range report.EndpointNames() {
		for _, trace := range report.Traces(endpoint) {
			if len(trace.Spans) != 6 {
				t.Errorf("Expected 6 spans per trace, got %d", len(trace.Spans))
			}
		}
	}
}

func TestTraceSequentialReuseOfContext(t *testing.T) {
	agent, _, transport := startTestAgent(t, nil)
	ctx := NewExecutionContext(context.Background())

	for i := 0; i < 3; i++ {
		_ = agent.Trace(ctx, "again", "app.rack", func(context.Context, *TraceScope) error { return nil })
	}

	if got := len(stopAndCollect(t, agent, transport).Traces("again")); got != 3 {
		t.Errorf("Expected 3 traces on a reused context, got %d", got)
	}
}

func TestRegistryEmptiedAfterTrace(t *testing.T) {
	agent, _, _ := startTestAgent(t, nil)
	inst := agent.Instrumenter()

	_ = agent.Trace(context.Background(), "Testin", "app.rack", func(context.Context, *TraceScope) error {
		if inst.registry.size() != 1 {
			t.Errorf("Expected 1 open execution context, got %d", inst.registry.size())
		}
		return nil
	})
	if inst.registry.size() != 0 {
		t.Errorf("Expected registry to be empty, got %d", inst.registry.size())
	}
}

func TestRecordedMetrics(t *testing.T) {
	agent, _, _ := startTestAgent(t, nil)
	inst := agent.Instrumenter()

	_ = agent.Trace(context.Background(), "Testin", "app.rack", func(ctx context.Context, _ *TraceScope) error {
		return agent.Instrument(ctx, "app.one", "", func(context.Context, *SpanScope) error { return nil })
	})

	if got := testutil.ToFloat64(inst.Metrics().TracesRecorded); got != 1 {
		t.Errorf("Expected 1 recorded trace, got %v", got)
	}
	if got := testutil.ToFloat64(inst.Metrics().SpansRecorded); got != 2 {
		t.Errorf("Expected 2 recorded spans, got %v", got)
	}
	if inst.Accumulator().Count() != 1 {
		t.Errorf("Expected 1 buffered trace, got %d", inst.Accumulator().Count())
	}
}

func TestMaxTracesPerEndpointDrops(t *testing.T) {
	agent, _, transport := startTestAgent(t, func(cfg *Config) {
		cfg.MaxTracesPerEndpoint = 2
	})

	traceEndpoints(agent, "busy", "busy", "busy", "quiet")
	dropped := testutil.ToFloat64(agent.Instrumenter().Metrics().TracesDropped)

	report := stopAndCollect(t, agent, transport)
	if len(report.Traces("busy")) != 2 {
		t.Errorf("Expected 2 busy traces, got %d", len(report.Traces("busy")))
	}
	if dropped != 1 {
		t.Errorf("Expected 1 dropped trace, got %v", dropped)
	}
}

func TestGeneratedUUIDs(t *testing.T) {
	agent, _, transport := startTestAgent(t, func(cfg *Config) {
		cfg.UUID = nil
	})

	traceEndpoints(agent, "a", "a")

	traces := stopAndCollect(t, agent, transport).Traces("a")
	if len(traces) != 2 {
		t.Fatalf("Expected 2 traces, got %d", len(traces))
	}
	if traces[0].UUID == "" || traces[0].UUID == traces[1].UUID {
		t.Errorf("Expected distinct generated UUIDs, got %q and %q", traces[0].UUID, traces[1].UUID)
	}
}
