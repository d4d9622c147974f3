package signals

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_DefaultIsBuffered(t *testing.T) {
	p, err := Open("", Deps{Registry: staticRegistry{}, Backend: &fakeBackend{}})
	require.NoError(t, err)

	_, ok := p.(*Processor)
	assert.True(t, ok)
}

func TestOpen_Direct(t *testing.T) {
	backend := &fakeBackend{}
	p, err := Open(ProcessorDirect, Deps{Registry: staticRegistry{"A": true}, Backend: backend})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, p.PostSave(ctx, "A", "a1"))
	require.NoError(t, p.PostSave(ctx, "A", "a2"))
	require.NoError(t, p.PostSave(ctx, "Other", "x"))
	require.NoError(t, p.PreDelete(ctx, "A", "a1"))

	updates := backend.Updates()
	require.Len(t, updates, 2)
	assert.Equal(t, []Record{"a1"}, updates[0].records)
	assert.Equal(t, 1, updates[0].batchSize)
	assert.Len(t, backend.Deletes(), 1)
}

func TestOpen_Unknown(t *testing.T) {
	_, err := Open("nope", Deps{Registry: staticRegistry{}, Backend: &fakeBackend{}})
	assert.ErrorIs(t, err, ErrUnknownProcessor)
}

func TestOpen_PropagatesConstructorErrors(t *testing.T) {
	_, err := Open(ProcessorDirect, Deps{Registry: staticRegistry{}})
	assert.ErrorIs(t, err, ErrNilBackend)
}

func TestRegisterFactory_Custom(t *testing.T) {
	called := false
	RegisterFactory("custom-test", func(d Deps, opts ...Option) (SignalProcessor, error) {
		called = true
		return NewDirect(d.Registry, d.Backend, d.Source, opts...)
	})

	_, err := Open("custom-test", Deps{Registry: staticRegistry{}, Backend: &fakeBackend{}})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Contains(t, Factories(), "custom-test")
	assert.Contains(t, Factories(), ProcessorBuffered)
}

func TestDirectProcessor_RegisterLifecycle(t *testing.T) {
	src := newFakeSource()
	d, err := NewDirect(staticRegistry{"A": true}, &fakeBackend{}, src)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, d.Register("A"))
	assert.Equal(t, 1, src.count("A"))

	assert.NoError(t, d.Deregister(ctx, "A"))
	assert.NoError(t, d.Deregister(ctx, "A"))
	assert.Equal(t, 0, src.count("A"))
	assert.NoError(t, d.Close(ctx))
}

func TestDirectProcessor_ReportsDirectTrigger(t *testing.T) {
	// Given: a direct processor with an observer
	obs := newCountingObserver()
	d, err := NewDirect(staticRegistry{"A": true}, &fakeBackend{}, nil, WithObserver(obs))
	require.NoError(t, err)

	// When: a record is saved
	require.NoError(t, d.PostSave(context.Background(), "A", "a1"))

	// Then: the write is reported as direct, never as a threshold flush
	assert.Equal(t, 1, obs.flushCount(TriggerDirect))
	assert.Equal(t, 0, obs.flushCount(TriggerThreshold))
}
