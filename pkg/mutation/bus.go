// Package mutation provides an in-process mutation signal bus.
//
// Producers announce record saves and deletes on a Bus; handlers such as
// the signals.Processor subscribe per record type. The Bus implements
// signals.Source.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Aman-CERP/searchsync/pkg/signals"
)

// Bus dispatches save and delete notifications to the handlers connected
// for a record type. It is safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	handlers map[signals.RecordType][]signals.Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[signals.RecordType][]signals.Handler)}
}

// Connect subscribes h to mutations of rt. Handlers run in connection order.
func (b *Bus) Connect(rt signals.RecordType, h signals.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[rt] = append(b.handlers[rt], h)
}

// Disconnect removes the first subscription of h for rt.
// It reports false when h was not connected.
func (b *Bus) Disconnect(rt signals.RecordType, h signals.Handler) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	hs := b.handlers[rt]
	for i, cur := range hs {
		if cur != h {
			continue
		}
		next := make([]signals.Handler, 0, len(hs)-1)
		next = append(next, hs[:i]...)
		next = append(next, hs[i+1:]...)
		if len(next) == 0 {
			delete(b.handlers, rt)
		} else {
			b.handlers[rt] = next
		}
		return true
	}
	return false
}

// Handlers returns how many handlers are connected for rt.
func (b *Bus) Handlers(rt signals.RecordType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[rt])
}

// Saved announces that rec was created or updated.
// Every handler runs even if an earlier one fails; errors are joined.
func (b *Bus) Saved(ctx context.Context, rt signals.RecordType, rec signals.Record) error {
	return b.dispatch(rt, func(h signals.Handler) error {
		return h.PostSave(ctx, rt, rec)
	})
}

// Deleting announces that rec is about to be deleted.
func (b *Bus) Deleting(ctx context.Context, rt signals.RecordType, rec signals.Record) error {
	return b.dispatch(rt, func(h signals.Handler) error {
		return h.PreDelete(ctx, rt, rec)
	})
}

func (b *Bus) dispatch(rt signals.RecordType, call func(signals.Handler) error) error {
	// Disconnect copies on write, so the snapshot is stable outside the lock.
	b.mu.RLock()
	hs := b.handlers[rt]
	b.mu.RUnlock()

	var errs []error
	for i, h := range hs {
		if err := call(h); err != nil {
			errs = append(errs, fmt.Errorf("handler %d for %s: %w", i, rt, err))
		}
	}
	return errors.Join(errs...)
}

var _ signals.Source = (*Bus)(nil)
