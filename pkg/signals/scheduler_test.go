package signals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferStore_AppendAndDrain(t *testing.T) {
	b := newBufferStore()

	n, batch := b.append("A", "a1", 3)
	assert.Equal(t, 1, n)
	assert.Nil(t, batch)

	n, batch = b.append("A", "a2", 3)
	assert.Equal(t, 2, n)
	assert.Nil(t, batch)

	n, batch = b.append("A", "a3", 3)
	assert.Equal(t, 3, n)
	assert.Equal(t, []Record{"a1", "a2", "a3"}, batch)
	assert.Equal(t, 0, b.len("A"))

	// The entry persists after a drain
	_, ok := b.buffers["A"]
	assert.True(t, ok)

	b.append("A", "a4", 3)
	assert.Equal(t, []Record{"a4"}, b.drain("A"))
	assert.Empty(t, b.drain("A"))
	assert.Empty(t, b.drain("never-seen"))
}

func TestBufferStore_BatchNotAliasedByLaterAppends(t *testing.T) {
	b := newBufferStore()
	b.append("A", "a1", 2)
	_, batch := b.append("A", "a2", 2)

	b.append("A", "x", 2)

	assert.Equal(t, []Record{"a1", "a2"}, batch)
}

func TestBufferStore_Pending(t *testing.T) {
	b := newBufferStore()
	b.append("A", 1, 10)
	b.append("A", 2, 10)
	b.append("B", 1, 10)
	b.drain("B")

	assert.Equal(t, map[RecordType]int{"A": 2}, b.pending())
}

func TestTimerRegistry_ArmOnlyOnce(t *testing.T) {
	clk := clockwork.NewFakeClock()
	r := newTimerRegistry(clk)
	fire := func(*flushTimer) {}

	assert.True(t, r.ensureArmed("A", time.Second, fire))
	assert.False(t, r.ensureArmed("A", time.Second, fire))
	assert.True(t, r.ensureArmed("B", time.Second, fire))
	assert.Equal(t, 2, r.count())
}

func TestTimerRegistry_ClearChecksIdentity(t *testing.T) {
	clk := clockwork.NewFakeClock()
	r := newTimerRegistry(clk)
	fire := func(*flushTimer) {}

	r.ensureArmed("A", time.Second, fire)
	stale := &flushTimer{rt: "A"}

	assert.False(t, r.clear("A", stale))
	assert.True(t, r.armed("A"))

	assert.True(t, r.clear("A", r.timers["A"]))
	assert.False(t, r.armed("A"))
}

func TestTimerRegistry_CancelStopsTimer(t *testing.T) {
	clk := clockwork.NewFakeClock()
	r := newTimerRegistry(clk)
	fired := make(chan struct{}, 1)

	r.ensureArmed("A", time.Second, func(*flushTimer) { fired <- struct{}{} })
	assert.True(t, r.cancel("A"))
	assert.False(t, r.cancel("A"))

	clk.Advance(2 * time.Second)
	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestNewScheduler_RequiresBackend(t *testing.T) {
	_, err := NewScheduler(nil)
	assert.ErrorIs(t, err, ErrNilBackend)
}

func TestScheduler_Defaults(t *testing.T) {
	s, err := NewScheduler(&fakeBackend{})
	require.NoError(t, err)

	assert.Equal(t, DefaultBufferSize, s.BufferSize())
	assert.Equal(t, DefaultIdleTimeout, s.IdleTimeout())
}

func TestScheduler_FlushAll_JoinsErrors(t *testing.T) {
	errBoom := errors.New("boom")
	backend := &fakeBackend{updateErr: errBoom}
	s, err := NewScheduler(backend, WithClock(clockwork.NewFakeClock()))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "A", "a1"))
	require.NoError(t, s.Add(ctx, "B", "b1"))

	err = s.FlushAll(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "update index A")
	assert.Contains(t, err.Error(), "update index B")
	assert.Len(t, backend.Updates(), 2)
}

func TestScheduler_FlushAll_Empty_NoBackendCalls(t *testing.T) {
	backend := &fakeBackend{}
	s, err := NewScheduler(backend)
	require.NoError(t, err)

	require.NoError(t, s.FlushAll(context.Background()))
	assert.Empty(t, backend.Updates())
}

func TestScheduler_Flush_LeavesTimerArmed(t *testing.T) {
	backend := &fakeBackend{}
	s, err := NewScheduler(backend, WithClock(clockwork.NewFakeClock()))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "A", "a1"))
	require.NoError(t, s.Flush(ctx, "A"))

	assert.Len(t, backend.Updates(), 1)
	assert.True(t, s.TimerArmed("A"))
}

func TestScheduler_Cancel_KeepsRecords(t *testing.T) {
	s, err := NewScheduler(&fakeBackend{}, WithClock(clockwork.NewFakeClock()))
	require.NoError(t, err)

	require.NoError(t, s.Add(context.Background(), "A", "a1"))
	assert.True(t, s.Cancel("A"))
	assert.False(t, s.TimerArmed("A"))
	assert.Equal(t, 1, s.Pending("A"))
}

func TestScheduler_StopWaitsForIdleFlush(t *testing.T) {
	// Given: a backend that blocks until released
	release := make(chan struct{})
	started := make(chan struct{})
	backend := &blockingBackend{started: started, release: release}
	clk := clockwork.NewFakeClock()
	s, err := NewScheduler(backend, WithClock(clk))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "A", "a1"))
	blockUntilTimers(t, clk, 1)
	clk.Advance(DefaultIdleTimeout)
	<-started

	// When: Stop is called while the idle flush is in flight
	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop(ctx) }()

	// Then: Stop waits for it
	select {
	case <-stopped:
		t.Fatal("Stop returned before in-flight flush finished")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-stopped)
}

func TestScheduler_StopWaitsForThresholdFlush(t *testing.T) {
	// Given: a threshold flush blocked inside the backend
	release := make(chan struct{})
	started := make(chan struct{})
	backend := &blockingBackend{started: started, release: release}
	s, err := NewScheduler(backend, WithBufferSize(1), WithClock(clockwork.NewFakeClock()))
	require.NoError(t, err)
	ctx := context.Background()

	added := make(chan error, 1)
	go func() { added <- s.Add(ctx, "A", "a1") }()
	<-started

	// When: Stop is called
	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop(ctx) }()

	// Then: it returns only after the batch left the backend
	select {
	case <-stopped:
		t.Fatal("Stop returned while a threshold flush was in the backend")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-added)
	require.NoError(t, <-stopped)
}

func TestScheduler_StopWaitsForManualFlush(t *testing.T) {
	// Given: a manual flush blocked inside the backend
	release := make(chan struct{})
	started := make(chan struct{})
	backend := &blockingBackend{started: started, release: release}
	s, err := NewScheduler(backend, WithClock(clockwork.NewFakeClock()))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "A", "a1"))
	flushed := make(chan error, 1)
	go func() { flushed <- s.Flush(ctx, "A") }()
	<-started

	// When: Stop is called
	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop(ctx) }()

	// Then: it waits for the flush
	select {
	case <-stopped:
		t.Fatal("Stop returned while a manual flush was in the backend")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-flushed)
	require.NoError(t, <-stopped)

	// And: flushing a stopped scheduler is a no-op
	assert.NoError(t, s.Flush(ctx, "A"))
	assert.NoError(t, s.Discharge(ctx, "A"))
}

type blockingBackend struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingBackend) UpdateIndex(context.Context, []Record, string, int) error {
	close(b.started)
	<-b.release
	return nil
}

func (b *blockingBackend) DeleteFromIndex(context.Context, Record, string) error {
	return nil
}
