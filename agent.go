package instrumentz

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Agent owns the process-wide tracing state. It is either stopped or
// running one Instrumenter. Start while running and Stop while stopped are
// no-ops. While stopped, every tracing call is a pass-through.
// Safe for concurrent use by multiple goroutines.
type Agent struct {
	current atomic.Pointer[Instrumenter]
	logger  *zap.Logger
	mu      sync.Mutex // Serializes Start and Stop.
}

// NewAgent creates a stopped agent. logger receives startup failures that
// happen before a configured logger exists; nil logs JSON to stderr.
func NewAgent(logger *zap.Logger) *Agent {
	if logger == nil {
		logger = newLoggerOrNop(DefaultLogConfig())
	}
	return &Agent{logger: logger}
}

// Start builds and installs an Instrumenter from cfg. If one is already
// running it is returned unchanged. Failures are logged and returned as a
// *ConfigError or *StartupError; Start never panics.
func (a *Agent) Start(cfg Config) (inst *Instrumenter, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cur := a.current.Load(); cur != nil {
		return cur, nil
	}

	defer func() {
		if r := recover(); r != nil {
			inst, err = nil, &StartupError{Err: panicError(r)}
		}
		if err != nil {
			a.startupLogger(cfg).Warn("unable to start instrumenter",
				zap.String("version", Version),
				zap.String("msg", err.Error()),
				zap.String("class", errorClass(err)))
		}
	}()

	inst, err = newInstrumenter(cfg)
	if err != nil {
		if _, ok := err.(*ConfigError); !ok {
			err = &StartupError{Err: err}
		}
		return nil, err
	}

	inst.start()
	a.current.Store(inst)
	return inst, nil
}

// startupLogger prefers the configured logger sink.
func (a *Agent) startupLogger(cfg Config) *zap.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return a.logger
}

// errorClass names the kind of error behind a startup failure.
func errorClass(err error) string {
	if se, ok := err.(*StartupError); ok {
		return fmt.Sprintf("%T", se.Err)
	}
	return fmt.Sprintf("%T", err)
}

// Stop flushes buffered traces, drops open ones and uninstalls the running
// Instrumenter. It returns the final flush error, if any.
func (a *Agent) Stop(ctx context.Context) (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	inst := a.current.Swap(nil)
	if inst == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
			inst.logger.Error("failed to stop instrumenter", zap.Error(err))
		}
	}()

	if err = inst.shutdown(ctx); err != nil {
		inst.logger.Warn("final flush failed", zap.Error(err))
	}
	return err
}

// Running reports whether an Instrumenter is installed.
func (a *Agent) Running() bool {
	return a.current.Load() != nil
}

// Instrumenter returns the running Instrumenter, or nil when stopped.
func (a *Agent) Instrumenter() *Instrumenter {
	return a.current.Load()
}

// Trace records a trace when running and otherwise runs fn with a nil scope.
func (a *Agent) Trace(ctx context.Context, endpoint Endpoint, category Category, fn func(context.Context, *TraceScope) error) error {
	if inst := a.current.Load(); inst != nil {
		return inst.Trace(ctx, endpoint, category, fn)
	}
	if fn == nil {
		return nil
	}
	return fn(ctx, nil)
}

// Instrument records a span when running and otherwise runs fn with a nil scope.
func (a *Agent) Instrument(ctx context.Context, category Category, title string, fn func(context.Context, *SpanScope) error) error {
	if inst := a.current.Load(); inst != nil {
		return inst.Instrument(ctx, category, title, fn)
	}
	if fn == nil {
		return nil
	}
	return fn(ctx, nil)
}

// Disable suspends instrumentation on ctx for the duration of fn.
func (a *Agent) Disable(ctx context.Context, fn func(context.Context) error) error {
	if inst := a.current.Load(); inst != nil {
		return inst.Disable(ctx, fn)
	}
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// LimitedDescription delegates to the running Instrumenter. When stopped the
// description is returned sanitized but otherwise unchanged.
func (a *Agent) LimitedDescription(ctx context.Context, description string) string {
	if inst := a.current.Load(); inst != nil {
		return inst.LimitedDescription(ctx, description)
	}
	return SanitizeDescription(description)
}

// Flush sends buffered traces to the transport now.
func (a *Agent) Flush(ctx context.Context) error {
	inst := a.current.Load()
	if inst == nil {
		return ErrNotRunning
	}
	return inst.Flush(ctx)
}

// TraceValue runs fn inside t.Trace and returns its value.
func TraceValue[T any](ctx context.Context, t Tracer, endpoint Endpoint, category Category, fn func(context.Context, *TraceScope) (T, error)) (T, error) {
	var out T
	err := t.Trace(ctx, endpoint, category, func(ctx context.Context, scope *TraceScope) error {
		var err error
		out, err = fn(ctx, scope)
		return err
	})
	return out, err
}

// InstrumentValue runs fn inside t.Instrument and returns its value.
func InstrumentValue[T any](ctx context.Context, t Tracer, category Category, title string, fn func(context.Context, *SpanScope) (T, error)) (T, error) {
	var out T
	err := t.Instrument(ctx, category, title, func(ctx context.Context, scope *SpanScope) error {
		var err error
		out, err = fn(ctx, scope)
		return err
	})
	return out, err
}
