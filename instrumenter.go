package instrumentz

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// tokenValidationTimeout bounds the startup token check.
const tokenValidationTimeout = 10 * time.Second

// Tracer is implemented by Agent and Instrumenter.
type Tracer interface {
	Trace(ctx context.Context, endpoint Endpoint, category Category, fn func(context.Context, *TraceScope) error) error
	Instrument(ctx context.Context, category Category, title string, fn func(context.Context, *SpanScope) error) error
}

// Instrumenter is the running tracing engine.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Instrumenter struct {
	config      Config
	clock       Clock
	logger      *zap.Logger
	metrics     *Metrics
	limiter     *DescriptionLimiter
	registry    *registry
	accumulator *Accumulator
	flusher     *Flusher
	traceInfo   TraceInfo
	uuids       *uuidPool
	newUUID     UUIDFunc
	ignored     map[Endpoint]struct{}
}

// newInstrumenter validates cfg and builds an engine. It does not start
// background work.
func newInstrumenter(cfg Config) (*Instrumenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		var err error
		if logger, err = NewLogger(cfg.Log); err != nil {
			return nil, err
		}
	}

	if cfg.TokenValidator != nil {
		ctx, cancel := context.WithTimeout(context.Background(), tokenValidationTimeout)
		err := cfg.TokenValidator(ctx, cfg.Token)
		cancel()
		switch {
		case errors.Is(err, ErrInvalidToken):
			return nil, &ConfigError{Field: "token", Msg: err.Error()}
		case err != nil:
			logger.Warn("unable to validate authentication token, continuing",
				zap.Error(err),
				zap.String("version", Version))
		}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = RealClock
	}
	transport := cfg.Transport
	if transport == nil {
		transport = NewLogTransport(logger)
	}

	i := &Instrumenter{
		config:      cfg,
		clock:       clock,
		logger:      logger,
		metrics:     NewMetrics(cfg.Registerer),
		limiter:     NewDescriptionLimiter(cfg.MaxUniqueDescriptions),
		registry:    newRegistry(),
		accumulator: NewAccumulator(cfg.MaxTracesPerEndpoint),
		ignored:     cfg.IgnoredEndpointSet(),
		newUUID:     cfg.UUID,
	}
	i.flusher = NewFlusher(i.accumulator, transport, clock, cfg.FlushInterval, logger, i.metrics)

	i.traceInfo = cfg.TraceInfo
	if i.traceInfo == nil {
		i.traceInfo = TraceInfoFunc(i.currentEndpoint)
	}
	if i.newUUID == nil {
		i.uuids = newUUIDPool(runtime.NumCPU()*16, NewUUID)
		i.newUUID = i.uuids.Get
	}

	return i, nil
}

// start launches background work.
func (i *Instrumenter) start() {
	i.flusher.Start()
	i.logger.Debug("instrumenter started", zap.String("version", Version))
}

// shutdown flushes what is buffered and drops all open traces.
func (i *Instrumenter) shutdown(ctx context.Context) error {
	err := i.flusher.Stop(ctx)
	if discarded := i.registry.clear(); discarded > 0 {
		i.logger.Debug("discarded open traces at shutdown", zap.Int("traces", discarded))
	}
	if i.uuids != nil {
		i.uuids.Close()
	}
	i.logger.Debug("instrumenter stopped", zap.String("version", Version))
	return err
}

// Logger returns the diagnostics logger.
func (i *Instrumenter) Logger() *zap.Logger {
	return i.logger
}

// Metrics returns the engine counters.
func (i *Instrumenter) Metrics() *Metrics {
	return i.metrics
}

// Accumulator returns the report accumulator.
func (i *Instrumenter) Accumulator() *Accumulator {
	return i.accumulator
}

// Flush sends everything buffered to the transport now.
func (i *Instrumenter) Flush(ctx context.Context) error {
	return i.flusher.Flush(ctx)
}

// IsIgnored reports whether traces for endpoint are discarded.
func (i *Instrumenter) IsIgnored(endpoint Endpoint) bool {
	_, ok := i.ignored[endpoint]
	return ok
}

// Trace records a trace for endpoint around fn. The root span has the given
// category. fn receives a context bound to the trace; nested Instrument
// calls must use it. When a trace is already open on the execution context,
// fn runs with a nil scope and nothing new is recorded.
// fn's error is returned unchanged and its panics propagate after the trace
// is closed.
func (i *Instrumenter) Trace(ctx context.Context, endpoint Endpoint, category Category, fn func(context.Context, *TraceScope) error) error {
	if fn == nil {
		return nil
	}
	ctx = WithExecutionContext(ctx)
	id, _ := ExecutionIDFrom(ctx)

	scope, root, b := i.beginTrace(id, endpoint, category)
	if scope == nil {
		return fn(ctx, nil)
	}
	defer i.endTrace(id, b, root)

	return fn(ctx, scope)
}

// beginTrace opens a trace and its root span on id. It returns a nil scope
// when nothing should be recorded.
func (i *Instrumenter) beginTrace(id ExecutionID, endpoint Endpoint, category Category) (scope *TraceScope, root SpanHandle, b *traceBuilder) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("failed to begin trace", zap.String("endpoint", endpoint), zap.Error(panicError(r)))
			scope, root, b = nil, SpanHandle{}, nil
		}
	}()

	event, err := NewEvent(category, "")
	if err != nil {
		i.logger.Warn("trace not started", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, SpanHandle{}, nil
	}

	now := i.clock.Now()
	b = newTraceBuilder(endpoint, i.newUUID(), now)
	if !i.registry.begin(id, b) {
		return nil, SpanHandle{}, nil
	}

	root, err = b.open(event, now)
	if err != nil {
		i.registry.end(id, b)
		return nil, SpanHandle{}, nil
	}

	return &TraceScope{endpoint: endpoint, uuid: b.uuid}, root, b
}

// endTrace closes the root span, finalizes the trace and hands it to the
// accumulator unless its endpoint is ignored.
func (i *Instrumenter) endTrace(id ExecutionID, b *traceBuilder, root SpanHandle) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("failed to end trace", zap.String("endpoint", b.endpoint), zap.Error(panicError(r)))
		}
	}()
	defer i.registry.end(id, b)

	if err := b.close(root, i.clock.Now()); err != nil {
		i.discard(b, err)
		return
	}
	trace, err := b.finish()
	if err != nil {
		i.discard(b, err)
		return
	}

	if i.IsIgnored(trace.Endpoint) {
		i.metrics.TracesIgnored.Inc()
		return
	}

	if !i.accumulator.Record(trace) {
		i.metrics.TracesDropped.Inc()
		i.logger.Debug("trace dropped, endpoint buffer full", zap.String("endpoint", trace.Endpoint))
		return
	}
	i.metrics.TracesRecorded.Inc()
	i.metrics.SpansRecorded.Add(float64(len(trace.Spans)))
}

// discard logs a usage error and drops the trace.
func (i *Instrumenter) discard(b *traceBuilder, err error) {
	i.metrics.TracesDiscarded.Inc()
	i.logger.Warn("trace discarded",
		zap.String("endpoint", b.endpoint),
		zap.String("uuid", b.uuid),
		zap.Error(err))
}

// Instrument records a span around fn inside the trace open on ctx. With no
// open trace, or inside Disable, fn runs with a nil scope. The span is closed
// on every exit path, including panics, before they propagate.
func (i *Instrumenter) Instrument(ctx context.Context, category Category, title string, fn func(context.Context, *SpanScope) error) error {
	if fn == nil {
		return nil
	}

	scope := i.openScope(ctx, category, title)
	if scope == nil {
		return fn(ctx, nil)
	}
	defer i.CloseSpan(ctx, scope.handle)

	return fn(ctx, scope)
}

// OpenSpan opens a span in the trace on ctx and returns its handle. The
// handle is invalid when nothing is recorded. Every valid handle must be
// passed to CloseSpan in LIFO order.
func (i *Instrumenter) OpenSpan(ctx context.Context, category Category, title string) SpanHandle {
	scope := i.openScope(ctx, category, title)
	if scope == nil {
		return SpanHandle{}
	}
	return scope.handle
}

func (i *Instrumenter) openScope(ctx context.Context, category Category, title string) (scope *SpanScope) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("failed to open span", zap.String("category", category), zap.Error(panicError(r)))
			scope = nil
		}
	}()

	id, ok := ExecutionIDFrom(ctx)
	if !ok {
		return nil
	}
	b, disabled := i.registry.lookup(id)
	if b == nil || disabled {
		return nil
	}

	if title != "" {
		title = i.limiter.Limited(b.endpoint, title)
	}
	event, err := NewEvent(category, title)
	if err != nil {
		i.logger.Debug("span not opened", zap.String("endpoint", b.endpoint), zap.Error(err))
		return nil
	}

	h, err := b.open(event, i.clock.Now())
	if err != nil {
		return nil
	}
	return &SpanScope{event: event, handle: h}
}

// CloseSpan closes a span opened with OpenSpan. Closing out of order or
// twice discards the trace; the error is logged, never returned.
func (i *Instrumenter) CloseSpan(_ context.Context, h SpanHandle) {
	if !h.Valid() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("failed to close span", zap.Error(panicError(r)))
		}
	}()

	if err := h.owner.close(h, i.clock.Now()); err != nil {
		var usage *UsageError
		if errors.As(err, &usage) {
			i.logger.Debug("span close rejected", zap.String("endpoint", h.owner.endpoint), zap.Error(err))
		}
	}
}

// Disable runs fn with instrumentation suspended on its execution context.
// Instrument calls inside fn record nothing. The previous state is restored
// however fn exits.
func (i *Instrumenter) Disable(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	ctx = WithExecutionContext(ctx)
	id, _ := ExecutionIDFrom(ctx)

	restore := i.registry.suspend(id)
	defer restore()

	return fn(ctx)
}

// Disabled reports whether instrumentation is suspended on ctx.
func (i *Instrumenter) Disabled(ctx context.Context) bool {
	id, ok := ExecutionIDFrom(ctx)
	if !ok {
		return false
	}
	_, disabled := i.registry.lookup(id)
	return disabled
}

// LimitedDescription caps the distinct descriptions recorded under the
// endpoint of the current trace.
func (i *Instrumenter) LimitedDescription(ctx context.Context, description string) string {
	endpoint, _ := i.traceInfo.Endpoint(ctx)
	return i.limiter.Limited(endpoint, description)
}

// currentEndpoint is the default TraceInfo.
func (i *Instrumenter) currentEndpoint(ctx context.Context) (Endpoint, bool) {
	id, ok := ExecutionIDFrom(ctx)
	if !ok {
		return "", false
	}
	b, _ := i.registry.lookup(id)
	if b == nil {
		return "", false
	}
	return b.endpoint, true
}

// String implements fmt.Stringer.
func (i *Instrumenter) String() string {
	return fmt.Sprintf("Instrumenter(version=%s, open=%d, buffered=%d)", Version, i.registry.size(), i.accumulator.Count())
}
