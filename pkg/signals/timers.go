package signals

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// flushTimer is one armed idle timer. Its pointer identity is what the
// registry compares, so a timer that was cancelled or replaced cannot clear
// somebody else's registration.
type flushTimer struct {
	rt    RecordType
	timer clockwork.Timer
}

// timerRegistry tracks at most one idle timer per record type.
// Callers must hold Scheduler.mu.
type timerRegistry struct {
	clock  clockwork.Clock
	timers map[RecordType]*flushTimer
}

func newTimerRegistry(clock clockwork.Clock) *timerRegistry {
	return &timerRegistry{
		clock:  clock,
		timers: make(map[RecordType]*flushTimer),
	}
}

// ensureArmed arms a timer for rt that calls fire after delay, unless one is
// already registered. It reports whether a new timer was armed.
func (r *timerRegistry) ensureArmed(rt RecordType, delay time.Duration, fire func(*flushTimer)) bool {
	if _, ok := r.timers[rt]; ok {
		return false
	}
	t := &flushTimer{rt: rt}
	r.timers[rt] = t
	// fire takes Scheduler.mu before reading t, and the caller holds it now,
	// so t.timer is set before the callback can observe t.
	t.timer = r.clock.AfterFunc(delay, func() { fire(t) })
	return true
}

// clear removes the registration for rt if it is still t.
func (r *timerRegistry) clear(rt RecordType, t *flushTimer) bool {
	if cur, ok := r.timers[rt]; !ok || cur != t {
		return false
	}
	delete(r.timers, rt)
	return true
}

// cancel stops and unregisters the timer for rt.
func (r *timerRegistry) cancel(rt RecordType) bool {
	t, ok := r.timers[rt]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(r.timers, rt)
	return true
}

func (r *timerRegistry) cancelAll() {
	for rt := range r.timers {
		r.cancel(rt)
	}
}

func (r *timerRegistry) armed(rt RecordType) bool {
	_, ok := r.timers[rt]
	return ok
}

func (r *timerRegistry) count() int {
	return len(r.timers)
}
