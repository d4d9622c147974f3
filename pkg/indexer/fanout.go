package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/Aman-CERP/searchsync/pkg/signals"
)

// Fanout sends every update and delete to several backends, for example
// a primary index and a mirror.
//
// Updates are fail-fast: backends are written in order and the first
// failure aborts the flush, so the caller sees the error and later
// backends are not ahead of earlier ones. Deletes are best-effort: every
// backend is attempted and failures are joined. A stale entry left in one
// index is harmless until the record is deleted again.
type Fanout struct {
	backends []signals.Backend
}

// NewFanout composes backends. Nil entries are skipped.
// Returns ErrNoBackends when none remain.
func NewFanout(backends ...signals.Backend) (*Fanout, error) {
	f := &Fanout{}
	for _, b := range backends {
		if b != nil {
			f.backends = append(f.backends, b)
		}
	}
	if len(f.backends) == 0 {
		return nil, ErrNoBackends
	}
	return f, nil
}

// UpdateIndex writes records to every backend in order.
func (f *Fanout) UpdateIndex(ctx context.Context, records []signals.Record, typeName string, batchSize int) error {
	if len(records) == 0 {
		return nil
	}
	for i, b := range f.backends {
		if err := b.UpdateIndex(ctx, records, typeName, batchSize); err != nil {
			return fmt.Errorf("fanout backend %d update: %w", i, err)
		}
	}
	return nil
}

// DeleteFromIndex removes rec from every backend.
func (f *Fanout) DeleteFromIndex(ctx context.Context, rec signals.Record, typeName string) error {
	var errs []error
	for i, b := range f.backends {
		if err := b.DeleteFromIndex(ctx, rec, typeName); err != nil {
			errs = append(errs, fmt.Errorf("fanout backend %d delete: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of composed backends.
func (f *Fanout) Len() int {
	return len(f.backends)
}

var _ signals.Backend = (*Fanout)(nil)
