package instrumentz

import (
	"sync"
	"time"
)

// NoParent marks the root span of a trace.
const NoParent = -1

// Span represents a single finished unit of work inside a Trace.
// StartedAt and Duration are measured in Ticks relative to the trace start.
type Span struct {
	Event     Event `json:"event"`
	StartedAt int64 `json:"started_at"`
	Duration  int64 `json:"duration"`
	Parent    int   `json:"parent"`
	Children  int   `json:"children,omitempty"`
}

// IsRoot reports whether the span has no parent.
func (s Span) IsRoot() bool {
	return s.Parent == NoParent
}

// End returns the offset at which the span finished.
func (s Span) End() int64 {
	return s.StartedAt + s.Duration
}

// SpanHandle identifies an open span. The zero value is an invalid handle
// and closing it is a no-op.
type SpanHandle struct {
	owner *traceBuilder
	id    int
}

// Valid reports whether the handle refers to a span that was opened.
func (h SpanHandle) Valid() bool {
	return h.owner != nil
}

// SpanScope is handed to Instrument callbacks. It is nil when nothing is
// being recorded.
type SpanScope struct {
	event  Event
	handle SpanHandle
}

// Event returns the normalized event of the span.
func (s *SpanScope) Event() Event {
	return s.event
}

// openSpan is an in-flight span on the stack.
type openSpan struct {
	event     Event
	startedAt int64
	id        int
	parent    int
	children  int
}

// traceBuilder maintains the open span stack for one trace and collects
// finished spans in close order.
//
//nolint:govet // Field order optimized for readability
type traceBuilder struct {
	endpoint  string
	uuid      string
	start     time.Time
	stack     []openSpan
	spans     []Span
	parentIDs []int // open id of each finished span's parent
	closedAt  []int // span list index for each open id, -1 while open
	err       error
	mu        sync.Mutex
}

func newTraceBuilder(endpoint, uuid string, start time.Time) *traceBuilder {
	return &traceBuilder{
		endpoint: endpoint,
		uuid:     uuid,
		start:    start,
		stack:    make([]openSpan, 0, 8),
		spans:    make([]Span, 0, 8),
	}
}

// offset returns the ticks elapsed between the trace start and now.
func (b *traceBuilder) offset(now time.Time) int64 {
	return Ticks(now.Sub(b.start))
}

// open pushes a new span onto the stack as a child of the current top.
func (b *traceBuilder) open(event Event, now time.Time) (SpanHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err != nil {
		return SpanHandle{}, b.err
	}
	if len(b.stack) == 0 && len(b.spans) > 0 {
		return SpanHandle{}, b.fail(&UsageError{Op: "open", Msg: "trace root already closed"})
	}

	id := len(b.closedAt)
	parent := NoParent
	if n := len(b.stack); n > 0 {
		parent = b.stack[n-1].id
		b.stack[n-1].children++
	}

	b.stack = append(b.stack, openSpan{
		event:     event,
		startedAt: b.offset(now),
		id:        id,
		parent:    parent,
	})
	b.closedAt = append(b.closedAt, -1)

	return SpanHandle{owner: b, id: id}, nil
}

// close finishes the span on top of the stack. The handle must refer to it.
func (b *traceBuilder) close(h SpanHandle, now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err != nil {
		return b.err
	}
	if h.owner != b || h.id < 0 || h.id >= len(b.closedAt) {
		return b.fail(&UsageError{Op: "close", Msg: "span does not belong to this trace"})
	}
	if b.closedAt[h.id] >= 0 {
		return b.fail(&UsageError{Op: "close", Msg: "span already closed"})
	}

	n := len(b.stack)
	top := b.stack[n-1]
	if top.id != h.id {
		return b.fail(&UsageError{Op: "close", Msg: "span closed out of order"})
	}
	b.stack = b.stack[:n-1]

	duration := b.offset(now) - top.startedAt
	if duration < 0 {
		duration = 0
	}

	b.closedAt[top.id] = len(b.spans)
	b.parentIDs = append(b.parentIDs, top.parent)
	b.spans = append(b.spans, Span{
		Event:     top.event,
		StartedAt: top.startedAt,
		Duration:  duration,
		Parent:    NoParent,
		Children:  top.children,
	})
	return nil
}

// done reports whether the root span has been closed.
func (b *traceBuilder) done() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.stack) == 0 && len(b.spans) > 0
}

// finish resolves parent links into the close-ordered span list and returns
// the completed trace.
func (b *traceBuilder) finish() (*Trace, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err != nil {
		return nil, b.err
	}
	if len(b.stack) > 0 {
		return nil, b.fail(&UsageError{Op: "finish", Msg: "trace finished with open spans"})
	}
	if len(b.spans) == 0 {
		return nil, b.fail(&UsageError{Op: "finish", Msg: "trace has no spans"})
	}

	for i, parentID := range b.parentIDs {
		if parentID != NoParent {
			b.spans[i].Parent = b.closedAt[parentID]
		}
	}

	return &Trace{
		Endpoint: b.endpoint,
		UUID:     b.uuid,
		Spans:    b.spans,
	}, nil
}

// fail marks the trace broken. Every later operation returns the same error.
func (b *traceBuilder) fail(err error) error {
	b.err = err
	return err
}
