package instrumentz

import (
	"sync"
)

// uuidPool keeps trace UUIDs generated ahead of time so trace creation on
// the request path does not wait on the random source.
type uuidPool struct {
	generate UUIDFunc
	ids      chan string
	stopCh   chan struct{}
	mu       sync.Mutex
	closed   bool
}

// newUUIDPool creates a pool holding up to capacity UUIDs produced by generate.
func newUUIDPool(capacity int, generate UUIDFunc) *uuidPool {
	if generate == nil {
		generate = NewUUID
	}
	pool := &uuidPool{
		ids:      make(chan string, capacity),
		generate: generate,
		stopCh:   make(chan struct{}),
	}
	go pool.refill()
	return pool
}

// Get returns a pooled UUID, generating one directly when the pool is empty.
func (p *uuidPool) Get() string {
	select {
	case id := <-p.ids:
		return id
	default:
		return p.generate()
	}
}

// refill keeps the pool topped up until closed.
func (p *uuidPool) refill() {
	for {
		select {
		case <-p.stopCh:
			return
		case p.ids <- p.generate():
		}
	}
}

// Close stops the refill goroutine. Get keeps working afterwards.
func (p *uuidPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		close(p.stopCh)
		p.closed = true
	}
}
