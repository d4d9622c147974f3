package mutation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchsync/pkg/signals"
)

type recordingHandler struct {
	name string
	log  *[]string
	mu   *sync.Mutex
	err  error
}

func (h *recordingHandler) PostSave(_ context.Context, rt signals.RecordType, rec signals.Record) error {
	h.mu.Lock()
	*h.log = append(*h.log, h.name+":save:"+string(rt)+":"+rec.(string))
	h.mu.Unlock()
	return h.err
}

func (h *recordingHandler) PreDelete(_ context.Context, rt signals.RecordType, rec signals.Record) error {
	h.mu.Lock()
	*h.log = append(*h.log, h.name+":delete:"+string(rt)+":"+rec.(string))
	h.mu.Unlock()
	return h.err
}

func newHandlers(names ...string) ([]*recordingHandler, *[]string) {
	log := &[]string{}
	mu := &sync.Mutex{}
	out := make([]*recordingHandler, len(names))
	for i, n := range names {
		out[i] = &recordingHandler{name: n, log: log, mu: mu}
	}
	return out, log
}

func TestBus_DispatchInConnectionOrder(t *testing.T) {
	// Given: two handlers connected for "article"
	bus := NewBus()
	hs, log := newHandlers("first", "second")
	bus.Connect("article", hs[0])
	bus.Connect("article", hs[1])

	// When: a save and a delete are announced
	ctx := context.Background()
	require.NoError(t, bus.Saved(ctx, "article", "a1"))
	require.NoError(t, bus.Deleting(ctx, "article", "a2"))

	// Then: both handlers ran in order
	assert.Equal(t, []string{
		"first:save:article:a1",
		"second:save:article:a1",
		"first:delete:article:a2",
		"second:delete:article:a2",
	}, *log)
}

func TestBus_OtherTypesNotNotified(t *testing.T) {
	bus := NewBus()
	hs, log := newHandlers("h")
	bus.Connect("article", hs[0])

	require.NoError(t, bus.Saved(context.Background(), "comment", "c1"))

	assert.Empty(t, *log)
}

func TestBus_Disconnect(t *testing.T) {
	bus := NewBus()
	hs, log := newHandlers("h")
	bus.Connect("article", hs[0])
	assert.Equal(t, 1, bus.Handlers("article"))

	assert.True(t, bus.Disconnect("article", hs[0]))
	assert.False(t, bus.Disconnect("article", hs[0]))
	assert.False(t, bus.Disconnect("never", hs[0]))
	assert.Equal(t, 0, bus.Handlers("article"))

	require.NoError(t, bus.Saved(context.Background(), "article", "a1"))
	assert.Empty(t, *log)
}

func TestBus_ErrorsJoinedAndAllHandlersRun(t *testing.T) {
	// Given: the first handler fails
	bus := NewBus()
	hs, log := newHandlers("bad", "good")
	errBoom := errors.New("boom")
	hs[0].err = errBoom
	bus.Connect("article", hs[0])
	bus.Connect("article", hs[1])

	// When
	err := bus.Saved(context.Background(), "article", "a1")

	// Then: the error surfaces and the second handler still ran
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Len(t, *log, 2)
}

func TestBus_DrivesProcessor(t *testing.T) {
	// Given: a processor registered on the bus
	backend := &countingBackend{}
	bus := NewBus()
	p, err := signals.New(managed{"article": true}, backend, bus, signals.WithBufferSize(2))
	require.NoError(t, err)
	require.NoError(t, p.Register("article"))
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	// When: two saves reach the threshold
	ctx := context.Background()
	require.NoError(t, bus.Saved(ctx, "article", "a1"))
	require.NoError(t, bus.Saved(ctx, "article", "a2"))
	require.NoError(t, bus.Deleting(ctx, "article", "a1"))

	// Then
	assert.Equal(t, 1, backend.updates)
	assert.Equal(t, 1, backend.deletes)

	// And deregistering detaches the processor from the bus
	require.NoError(t, p.Deregister(ctx, "article"))
	assert.Equal(t, 0, bus.Handlers("article"))
}

type managed map[signals.RecordType]bool

func (m managed) IsManaged(rt signals.RecordType) bool { return m[rt] }

type countingBackend struct {
	mu      sync.Mutex
	updates int
	deletes int
}

func (b *countingBackend) UpdateIndex(context.Context, []signals.Record, string, int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates++
	return nil
}

func (b *countingBackend) DeleteFromIndex(context.Context, signals.Record, string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes++
	return nil
}
