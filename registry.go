package instrumentz

import (
	"context"
	"sync"
	"sync/atomic"
)

// executionKeyType is a private type for context keys to avoid collisions.
type executionKeyType string

const executionKey executionKeyType = "instrumentz.execution"

// ExecutionID identifies one execution context. At most one trace is open
// per execution context at a time.
type ExecutionID uint64

var nextExecutionID atomic.Uint64

// NewExecutionContext returns a context carrying a fresh execution ID, even
// if ctx already has one. Use it when handing work to a new goroutine that
// should record its own trace.
func NewExecutionContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	id := ExecutionID(nextExecutionID.Add(1))
	return context.WithValue(ctx, executionKey, id)
}

// WithExecutionContext returns ctx unchanged if it carries an execution ID,
// and a derived context with a fresh one otherwise.
func WithExecutionContext(ctx context.Context) context.Context {
	if _, ok := ExecutionIDFrom(ctx); ok {
		return ctx
	}
	return NewExecutionContext(ctx)
}

// ExecutionIDFrom extracts the execution ID from ctx.
func ExecutionIDFrom(ctx context.Context) (ExecutionID, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(executionKey).(ExecutionID)
	return id, ok
}

// registryShards must be a power of two.
const registryShards = 64

// execState is the per execution context tracing state.
type execState struct {
	trace    *traceBuilder
	disabled bool
}

type registryShard struct {
	states map[ExecutionID]*execState
	mu     sync.RWMutex
}

// registry maps execution contexts to their open trace. It is sharded so
// unrelated execution contexts never contend on one lock.
type registry struct {
	shards [registryShards]registryShard
}

func newRegistry() *registry {
	r := &registry{}
	for i := range r.shards {
		r.shards[i].states = make(map[ExecutionID]*execState)
	}
	return r
}

func (r *registry) shard(id ExecutionID) *registryShard {
	return &r.shards[uint64(id)&(registryShards-1)]
}

// begin installs b as the open trace of id. It fails if a trace is already
// open there.
func (r *registry) begin(id ExecutionID, b *traceBuilder) bool {
	s := r.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[id]
	if !ok {
		st = &execState{}
		s.states[id] = st
	}
	if st.trace != nil {
		return false
	}
	st.trace = b
	return true
}

// end removes b as the open trace of id.
func (r *registry) end(id ExecutionID, b *traceBuilder) {
	s := r.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[id]
	if !ok || st.trace != b {
		return
	}
	st.trace = nil
	if !st.disabled {
		delete(s.states, id)
	}
}

// lookup returns the open trace of id and whether instrumentation is
// suspended there.
func (r *registry) lookup(id ExecutionID) (*traceBuilder, bool) {
	s := r.shard(id)
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[id]
	if !ok {
		return nil, false
	}
	return st.trace, st.disabled
}

// suspend marks id disabled and returns a func restoring the prior state.
func (r *registry) suspend(id ExecutionID) func() {
	s := r.shard(id)
	s.mu.Lock()
	st, ok := s.states[id]
	if !ok {
		st = &execState{}
		s.states[id] = st
	}
	prev := st.disabled
	st.disabled = true
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		st, ok := s.states[id]
		if !ok {
			return
		}
		st.disabled = prev
		if st.trace == nil && !st.disabled {
			delete(s.states, id)
		}
	}
}

// clear drops every open trace and returns how many were discarded.
func (r *registry) clear() int {
	discarded := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for _, st := range s.states {
			if st.trace != nil {
				discarded++
			}
		}
		s.states = make(map[ExecutionID]*execState)
		s.mu.Unlock()
	}
	return discarded
}

// size returns the number of execution contexts holding state.
func (r *registry) size() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		n += len(s.states)
		s.mu.RUnlock()
	}
	return n
}
