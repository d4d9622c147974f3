package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirLock_Exclusive(t *testing.T) {
	// Given: one holder of the lock
	dir := t.TempDir()
	first := NewDirLock(dir)
	require.NoError(t, first.TryLock())
	assert.True(t, first.Locked())

	// When: a second lock on the same directory is attempted
	second := NewDirLock(dir)
	err := second.TryLock()

	// Then: it fails until the first is released
	assert.ErrorIs(t, err, ErrLocked)
	assert.False(t, second.Locked())

	require.NoError(t, first.Unlock())
	require.NoError(t, second.TryLock())
	require.NoError(t, second.Unlock())
}

func TestDirLock_UnlockIdempotent(t *testing.T) {
	l := NewDirLock(t.TempDir())
	assert.NoError(t, l.Unlock())

	require.NoError(t, l.Lock())
	assert.NoError(t, l.Unlock())
	assert.NoError(t, l.Unlock())
	assert.Contains(t, l.Path(), ".searchsync.lock")
}
