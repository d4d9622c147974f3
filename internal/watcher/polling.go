package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/searchsync/internal/record"
)

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

// Poller detects record changes by rescanning the data root.
type Poller struct {
	root  string
	state map[string]fileSnapshot
}

// NewPoller creates a poller for root and records the current files as
// its baseline.
func NewPoller(root string) (*Poller, error) {
	p := &Poller{root: root}
	state, err := p.snapshot()
	if err != nil {
		return nil, fmt.Errorf("perform initial scan: %w", err)
	}
	p.state = state
	return p, nil
}

// Poll rescans the root and returns the changes since the last call.
func (p *Poller) Poll() ([]RecordEvent, error) {
	current, err := p.snapshot()
	if err != nil {
		return nil, fmt.Errorf("scan for changes: %w", err)
	}

	now := time.Now()
	var events []RecordEvent
	for path, snap := range current {
		op := OpCreate
		if prev, ok := p.state[path]; ok {
			if prev == snap {
				continue
			}
			op = OpModify
		}
		if ev, ok := newEvent(p.root, path, op, now); ok {
			events = append(events, ev)
		}
	}
	for path := range p.state {
		if _, ok := current[path]; !ok {
			if ev, ok := newEvent(p.root, path, OpDelete, now); ok {
				events = append(events, ev)
			}
		}
	}

	p.state = current
	return events, nil
}

// Run polls every interval tick and passes each change to emit until ctx
// is cancelled or stop is closed.
func (p *Poller) Run(ctx context.Context, tick <-chan time.Time, stop <-chan struct{},
	emit func(RecordEvent), onError func(error)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case <-tick:
			events, err := p.Poll()
			if err != nil {
				onError(err)
				continue
			}
			for _, ev := range events {
				emit(ev)
			}
		}
	}
}

func (p *Poller) snapshot() (map[string]fileSnapshot, error) {
	state := make(map[string]fileSnapshot)
	err := walkRecords(p.root, func(path string, info os.FileInfo) {
		state[path] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
	})
	return state, err
}

// Scan returns an OpCreate event for every record file below root.
func Scan(root string) ([]RecordEvent, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path: %w", err)
	}

	now := time.Now()
	var events []RecordEvent
	err = walkRecords(abs, func(path string, _ os.FileInfo) {
		if ev, ok := newEvent(abs, path, OpCreate, now); ok {
			events = append(events, ev)
		}
	})
	return events, err
}

// walkRecords visits every <root>/<type>/<id>.json file. Unreadable type
// directories are skipped; an unreadable root is an error.
func walkRecords(root string, visit func(path string, info os.FileInfo)) error {
	typeDirs, err := os.ReadDir(root)
	if err != nil {
		return err
	}

	for _, dir := range typeDirs {
		if !dir.IsDir() || strings.HasPrefix(dir.Name(), ".") {
			continue
		}
		dirPath := filepath.Join(root, dir.Name())
		entries, err := os.ReadDir(dirPath)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(dirPath, entry.Name())
			if _, _, ok := record.PathInfo(root, path); !ok {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			visit(path, info)
		}
	}
	return nil
}

// newEvent builds an event for a record path. ok is false for paths
// that are not record files.
func newEvent(root, path string, op Operation, ts time.Time) (RecordEvent, bool) {
	typeName, id, ok := record.PathInfo(root, path)
	if !ok {
		return RecordEvent{}, false
	}
	return RecordEvent{Type: typeName, ID: id, Path: path, Operation: op, Timestamp: ts}, true
}
