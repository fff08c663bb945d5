package instrumentz

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Flusher periodically drains an Accumulator into a Transport.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Flusher struct {
	accumulator *Accumulator
	transport   Transport
	clock       Clock
	logger      *zap.Logger
	metrics     *Metrics
	interval    time.Duration
	stopCh      chan struct{}
	done        chan struct{}
	startOnce   sync.Once
	stopOnce    sync.Once
	sending     chan struct{} // Held while draining and sending.
}

// NewFlusher creates a flusher. A non-positive interval disables the
// periodic loop; Flush and Stop still work.
func NewFlusher(acc *Accumulator, transport Transport, clock Clock, interval time.Duration, logger *zap.Logger, metrics *Metrics) *Flusher {
	if clock == nil {
		clock = RealClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Flusher{
		accumulator: acc,
		transport:   transport,
		clock:       clock,
		logger:      logger,
		metrics:     metrics,
		interval:    interval,
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
		sending:     make(chan struct{}, 1),
	}
}

// Start launches the periodic loop. Calling it more than once is a no-op.
func (f *Flusher) Start() {
	f.startOnce.Do(func() {
		if f.interval <= 0 {
			close(f.done)
			return
		}
		go f.run()
	})
}

// run drains the accumulator every interval until stopped.
func (f *Flusher) run() {
	defer close(f.done)

	for {
		select {
		case <-f.stopCh:
			return
		case <-f.clock.After(f.interval):
			if err := f.Flush(context.Background()); err != nil {
				f.logger.Warn("periodic flush failed", zap.Error(err))
			}
		}
	}
}

// Flush drains the accumulator and sends the report. Nothing is sent when
// the accumulator is empty. Reports reach the transport in drain order; if
// another send is in flight, Flush waits for it until ctx is done and leaves
// the accumulator untouched on timeout.
func (f *Flusher) Flush(ctx context.Context) error {
	select {
	case f.sending <- struct{}{}:
	default:
		select {
		case f.sending <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	defer func() { <-f.sending }()

	report := f.accumulator.Drain()
	if report == nil {
		return nil
	}

	if err := f.transport.Send(ctx, report); err != nil {
		f.metrics.FlushErrors.Inc()
		return err
	}
	f.metrics.Flushes.Inc()
	return nil
}

// Stop ends the periodic loop and performs a final flush. It waits for the
// loop to exit until ctx is done.
func (f *Flusher) Stop(ctx context.Context) error {
	f.startOnce.Do(func() { close(f.done) })
	f.stopOnce.Do(func() { close(f.stopCh) })

	select {
	case <-f.done:
	case <-ctx.Done():
		f.logger.Warn("flusher did not stop in time", zap.Error(ctx.Err()))
	}

	return f.Flush(ctx)
}
