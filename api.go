// Package instrumentz provides an in-process tracing agent.
//
// instrumentz observes nested units of work inside a host program, assembles
// them into traces keyed by a logical endpoint name, and hands completed traces
// to a reporting layer. It is designed to sit on the hot path of every request
// with predictable cost and bounded memory.
//
// Core Components:
//   - Agent: Owns the process-wide stopped/running state.
//   - Instrumenter: The running engine (traces, spans, filtering).
//   - Span: One measured unit of work inside a Trace.
//   - Accumulator: Buffers completed traces by endpoint until drained.
//   - Flusher: Periodically drains the accumulator into a Transport.
//
// Basic Usage:
//
//	agent := instrumentz.NewAgent(nil)
//	if _, err := agent.Start(cfg); err != nil {
//		// Tracing is off, the application keeps working.
//	}
//	defer agent.Stop(context.Background())
//
//	err := agent.Trace(ctx, "users#show", "app.http.request", func(ctx context.Context, t *instrumentz.TraceScope) error {
//		return agent.Instrument(ctx, "db.sql.query", "Load User", func(ctx context.Context, s *instrumentz.SpanScope) error {
//			return loadUser(ctx)
//		})
//	})
//
// Execution Contexts:
//
// Every trace belongs to one execution context, an explicit key carried in
// context.Context. Trace assigns a key when the incoming context has none.
// Nested Instrument calls resolve the open trace through that key, so the
// context returned to the callback must be passed down.
//
// Spans opened on one execution context must be opened and closed from one
// goroutine at a time, in LIFO order.
//
// Failure Behavior:
//
// A stopped or failed agent turns Trace and Instrument into pass-through
// calls: the callback runs, its error is returned unchanged, and the scope
// argument is nil. Engine faults never reach application code.
package instrumentz

// Endpoint names the kind of unit of work a trace represents.
type Endpoint = string

// Category is a dot-delimited hierarchical event tag such as "db.sql.query".
type Category = string
