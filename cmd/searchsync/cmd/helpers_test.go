package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// project creates an isolated project directory with cfg as its
// .searchsync.yaml (skipped when empty).
func project(t *testing.T, cfg string) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	if cfg != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".searchsync.yaml"), []byte(cfg), 0o644))
	}
	return dir
}

// run executes the root command in dir and returns its stdout.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	return runContext(context.Background(), t, dir, &bytes.Buffer{}, args...)
}

func runContext(ctx context.Context, t *testing.T, dir string, out syncWriter, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--dir", dir}, args...))
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

type syncWriter interface {
	Write(p []byte) (int, error)
	String() string
}

// lockedBuffer is a bytes.Buffer safe for a command writing in one
// goroutine while the test reads in another.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const articleConfig = `
types: [article]
signals:
  buffer_size: 1
`

const mutationLog = `# two articles, one removed
{"op":"save","type":"article","id":"1","fields":{"title":"Gophers in space"}}
{"op":"save","type":"article","id":"2","fields":{"title":"Gardening for gophers"}}

{"op":"save","type":"comment","id":"9","fields":{"body":"ignored"}}
{"op":"delete","type":"article","id":"2"}
`
