package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `{"time":"2026-01-02T10:00:00.000Z","level":"DEBUG","msg":"record_buffered","type":"article"}
{"time":"2026-01-02T10:00:01.000Z","level":"INFO","msg":"flush_completed","type":"article","records":3}
not json at all
{"time":"2026-01-02T10:00:02.000Z","level":"ERROR","msg":"idle_flush_failed","type":"comment"}
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "searchsync.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestViewer_Tail(t *testing.T) {
	path := writeLog(t, sampleLog)
	v := NewViewer(ViewerConfig{NoColor: true}, nil)

	entries, err := v.Tail(path, 2)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.False(t, entries[0].IsValid)
	assert.Equal(t, "idle_flush_failed", entries[1].Msg)
}

func TestViewer_Tail_Filters(t *testing.T) {
	path := writeLog(t, sampleLog)

	v := NewViewer(ViewerConfig{Level: "info"}, nil)
	entries, err := v.Tail(path, 100)
	require.NoError(t, err)
	// The level filter keeps unparseable lines
	assert.Len(t, entries, 3)

	v = NewViewer(ViewerConfig{Pattern: regexp.MustCompile(`"type":"article"`)}, nil)
	entries, err = v.Tail(path, 100)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestViewer_Tail_MissingFile(t *testing.T) {
	_, err := NewViewer(ViewerConfig{}, nil).Tail("/nonexistent.log", 10)
	assert.Error(t, err)
}

func TestViewer_FormatEntry(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, nil)
	entry := parseLine(`{"time":"2026-01-02T10:00:01.5Z","level":"INFO","msg":"flush_completed","type":"article","records":3}`)

	assert.Equal(t, "10:00:01.500 INFO  flush_completed records=3 type=article", v.FormatEntry(entry))
	assert.Equal(t, "raw", v.FormatEntry(parseLine("raw")))

	colored := NewViewer(ViewerConfig{}, nil).FormatEntry(entry)
	assert.Contains(t, colored, "\033[32mINFO ")
}

func TestViewer_Print(t *testing.T) {
	var out bytes.Buffer
	v := NewViewer(ViewerConfig{NoColor: true}, &out)

	v.Print([]LogEntry{parseLine("a"), parseLine("b")})

	assert.Equal(t, "a\nb\n", out.String())
}

func TestViewer_Follow(t *testing.T) {
	// Given: a viewer following an existing file
	path := writeLog(t, sampleLog)
	v := NewViewer(ViewerConfig{Level: "warn"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entries := make(chan LogEntry, 10)
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path, entries) }()
	time.Sleep(50 * time.Millisecond)

	// When: lines are appended
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(strings.Join([]string{
		`{"time":"2026-01-02T10:00:03Z","level":"INFO","msg":"skipped"}`,
		`{"time":"2026-01-02T10:00:04Z","level":"WARN","msg":"backend_slow"}`,
	}, "\n") + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Then: only new entries above the level arrive
	select {
	case entry := <-entries:
		assert.Equal(t, "backend_slow", entry.Msg)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for followed entry")
	}

	cancel()
	assert.NoError(t, <-done)
}
