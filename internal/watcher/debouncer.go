package watcher

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Debouncer coalesces rapid events for the same record file.
// Events for the same path within the window are merged:
//   - CREATE + MODIFY = CREATE (file is still new)
//   - CREATE + DELETE = nothing (file never really existed)
//   - MODIFY + DELETE = DELETE (file is gone)
//   - DELETE + CREATE = MODIFY (file was replaced)
//
// Batches are emitted in path order once no event arrived for a full
// window. A full output channel blocks the debouncer until the consumer
// catches up or Stop is called.
type Debouncer struct {
	window   time.Duration
	clock    clockwork.Clock
	pending  map[string]*pendingEvent
	mu       sync.Mutex
	output   chan []RecordEvent
	timer    clockwork.Timer
	stopCh   chan struct{}
	stopOnce sync.Once
	stopped  bool
}

type pendingEvent struct {
	event   RecordEvent
	firstOp Operation
}

// NewDebouncer creates a debouncer with the given window. A nil clock
// means the real clock.
func NewDebouncer(window time.Duration, clock clockwork.Clock) *Debouncer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Debouncer{
		window:  window,
		clock:   clock,
		pending: make(map[string]*pendingEvent),
		output:  make(chan []RecordEvent, 10),
		stopCh:  make(chan struct{}),
	}
}

// Add queues an event and restarts the window.
func (d *Debouncer) Add(event RecordEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if existing, ok := d.pending[event.Path]; ok {
		merged, keep := coalesce(existing, event)
		if !keep {
			delete(d.pending, event.Path)
		} else {
			existing.event = merged
		}
	} else {
		d.pending[event.Path] = &pendingEvent{event: event, firstOp: event.Operation}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.clock.AfterFunc(d.window, d.flush)
}

// coalesce merges next into existing. keep is false when the two cancel out.
func coalesce(existing *pendingEvent, next RecordEvent) (merged RecordEvent, keep bool) {
	switch existing.firstOp {
	case OpCreate:
		switch next.Operation {
		case OpModify:
			return existing.event, true
		case OpDelete:
			return RecordEvent{}, false
		}
	case OpDelete:
		if next.Operation == OpCreate {
			next.Operation = OpModify
			return next, true
		}
	}
	return next, true
}

// flush emits all pending events as one batch.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	events := make([]RecordEvent, 0, len(d.pending))
	for _, pe := range d.pending {
		events = append(events, pe.event)
	}
	d.pending = make(map[string]*pendingEvent)
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	select {
	case d.output <- events:
	case <-d.stopCh:
	}
}

// Pending returns the number of paths waiting for the window to close.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Output returns the channel of debounced batches.
func (d *Debouncer) Output() <-chan []RecordEvent {
	return d.output
}

// Stop drops pending events and closes the output channel.
// Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)

		d.mu.Lock()
		defer d.mu.Unlock()
		d.stopped = true
		if d.timer != nil {
			d.timer.Stop()
		}
		close(d.output)
	})
}
