package instrumentz

import "github.com/google/uuid"

// Trace is one complete tree of spans for a single root invocation of an
// endpoint. Spans are in close order, so the root is always last.
type Trace struct {
	Endpoint Endpoint `json:"endpoint"`
	UUID     string   `json:"uuid"`
	Spans    []Span   `json:"spans"`
}

// Root returns the root span.
func (t *Trace) Root() Span {
	return t.Spans[len(t.Spans)-1]
}

// Duration returns the total trace duration in ticks.
func (t *Trace) Duration() int64 {
	if len(t.Spans) == 0 {
		return 0
	}
	return t.Root().Duration
}

// Children returns the indices of the direct children of the span at index i.
func (t *Trace) Children(i int) []int {
	var children []int
	for j := range t.Spans {
		if t.Spans[j].Parent == i {
			children = append(children, j)
		}
	}
	return children
}

// TraceScope is handed to Trace callbacks. It is nil when nothing is being
// recorded.
type TraceScope struct {
	endpoint Endpoint
	uuid     string
}

// Endpoint returns the endpoint name the trace is recorded under.
func (s *TraceScope) Endpoint() Endpoint {
	return s.endpoint
}

// UUID returns the trace identifier.
func (s *TraceScope) UUID() string {
	return s.uuid
}

// UUIDFunc assigns identifiers to new traces.
type UUIDFunc func() string

// NewUUID generates a random trace identifier.
func NewUUID() string {
	return uuid.NewString()
}

// StaticUUID returns a UUIDFunc that always yields id.
func StaticUUID(id string) UUIDFunc {
	return func() string { return id }
}
