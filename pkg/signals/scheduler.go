package signals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Scheduler owns the per-type buffers and idle timers and decides, for every
// added record, whether to flush now or to rely on a timer.
//
// Scheduler is safe for concurrent use.
type Scheduler struct {
	mu      sync.Mutex
	buffers *bufferStore
	timers  *timerRegistry
	closed  bool

	// inflight counts flushes that drained a buffer and are still talking
	// to the backend, so Stop can wait for them. It is only incremented
	// under mu while the scheduler is open.
	inflight sync.WaitGroup

	backend     Backend
	bufferSize  func() int
	idleTimeout time.Duration
	observer    Observer
	onError     ErrorHandler
	baseCtx     context.Context
	logger      *slog.Logger
}

// NewScheduler creates a scheduler that flushes to backend.
//
// Returns ErrNilBackend if backend is nil.
func NewScheduler(backend Backend, opts ...Option) (*Scheduler, error) {
	if backend == nil {
		return nil, ErrNilBackend
	}
	return newScheduler(backend, buildOptions(opts)), nil
}

func newScheduler(backend Backend, o options) *Scheduler {
	return &Scheduler{
		buffers:     newBufferStore(),
		timers:      newTimerRegistry(o.clock),
		backend:     backend,
		bufferSize:  resolveBufferSize(o.bufferSize),
		idleTimeout: o.idleTimeout,
		observer:    o.observer,
		onError:     o.onError,
		baseCtx:     o.baseCtx,
		logger:      o.logger,
	}
}

// resolveBufferSize returns a getter that asks fn once and caches the answer.
func resolveBufferSize(fn func() int) func() int {
	return sync.OnceValue(func() int {
		if fn == nil {
			return DefaultBufferSize
		}
		if n := fn(); n > 0 {
			return n
		}
		return DefaultBufferSize
	})
}

// BufferSize returns the flush threshold.
func (s *Scheduler) BufferSize() int {
	return s.bufferSize()
}

// IdleTimeout returns the delay of idle flushes.
func (s *Scheduler) IdleTimeout() time.Duration {
	return s.idleTimeout
}

// Add buffers rec for rt.
//
// If the buffer reaches the buffer size it is drained and flushed before Add
// returns, and the backend error (if any) is returned. Otherwise an idle
// timer is armed unless one is already pending for rt.
//
// A timer armed before a threshold flush is left alone; when it fires it
// flushes whatever accumulated since, or nothing.
func (s *Scheduler) Add(ctx context.Context, rt RecordType, rec Record) error {
	size := s.bufferSize()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	n, batch := s.buffers.append(rt, rec, size)
	armed := false
	if batch == nil {
		armed = s.timers.ensureArmed(rt, s.idleTimeout, s.fire)
	} else {
		s.inflight.Add(1)
	}
	s.mu.Unlock()

	if armed {
		s.logger.Debug("idle_timer_armed",
			slog.String("type", string(rt)),
			slog.Duration("timeout", s.idleTimeout))
	}
	if batch == nil {
		return nil
	}

	s.logger.Debug("buffer_threshold_reached",
		slog.String("type", string(rt)),
		slog.Int("size", n))
	defer s.inflight.Done()
	return s.flush(ctx, rt, batch, TriggerThreshold)
}

// fire runs on the timer's goroutine.
func (s *Scheduler) fire(t *flushTimer) {
	s.mu.Lock()
	if s.closed || !s.timers.clear(t.rt, t) {
		s.mu.Unlock()
		return
	}
	records := s.buffers.drain(t.rt)
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	if err := s.flush(s.baseCtx, t.rt, records, TriggerIdle); err != nil {
		s.logger.Error("idle_flush_failed",
			slog.String("type", string(t.rt)),
			slog.Int("records", len(records)),
			slog.String("error", err.Error()))
		if s.onError != nil {
			s.onError(t.rt, err)
		}
	}
}

// flush sends records to the backend. Empty batches are skipped.
func (s *Scheduler) flush(ctx context.Context, rt RecordType, records []Record, trigger Trigger) error {
	if len(records) == 0 {
		return nil
	}

	err := s.backend.UpdateIndex(ctx, records, string(rt), s.bufferSize())
	s.observer.Flushed(rt, trigger, len(records), err)
	if err != nil {
		return fmt.Errorf("update index %s: %w", rt, err)
	}

	s.logger.Debug("buffer_flushed",
		slog.String("type", string(rt)),
		slog.String("trigger", string(trigger)),
		slog.Int("records", len(records)))
	return nil
}

// Flush drains and flushes the buffer of rt without touching its timer.
func (s *Scheduler) Flush(ctx context.Context, rt RecordType) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	records := s.buffers.drain(rt)
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	return s.flush(ctx, rt, records, TriggerManual)
}

// FlushAll drains every buffer and flushes them concurrently.
// Errors of all types are joined.
func (s *Scheduler) FlushAll(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	batches := s.drainAll()
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	return s.flushBatches(ctx, batches)
}

// drainAll must be called with s.mu held.
func (s *Scheduler) drainAll() map[RecordType][]Record {
	batches := make(map[RecordType][]Record)
	for rt := range s.buffers.pending() {
		batches[rt] = s.buffers.drain(rt)
	}
	return batches
}

func (s *Scheduler) flushBatches(ctx context.Context, batches map[RecordType][]Record) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for rt, records := range batches {
		g.Go(func() error {
			if err := s.flush(ctx, rt, records, TriggerManual); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Cancel stops and unregisters the idle timer of rt. Buffered records stay.
func (s *Scheduler) Cancel(rt RecordType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers.cancel(rt)
}

// Discharge cancels the idle timer of rt and flushes whatever it buffered.
func (s *Scheduler) Discharge(ctx context.Context, rt RecordType) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.timers.cancel(rt)
	records := s.buffers.drain(rt)
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	return s.flush(ctx, rt, records, TriggerManual)
}

// Stop cancels all timers, flushes every buffer and rejects further Add
// calls with ErrClosed. It waits for flushes already in progress, whatever
// started them.
// Calling Stop again is a no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.timers.cancelAll()
	batches := s.drainAll()
	s.mu.Unlock()

	err := s.flushBatches(ctx, batches)
	s.inflight.Wait()
	return err
}

// Pending returns the number of buffered records of rt.
func (s *Scheduler) Pending(rt RecordType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffers.len(rt)
}

// PendingAll returns the buffered count of every non-empty buffer.
func (s *Scheduler) PendingAll() map[RecordType]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffers.pending()
}

// TimerArmed reports whether an idle timer is pending for rt.
func (s *Scheduler) TimerArmed(rt RecordType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers.armed(rt)
}

// ArmedTimers returns the number of pending idle timers.
func (s *Scheduler) ArmedTimers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers.count()
}
