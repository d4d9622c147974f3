package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/metrics"
	"github.com/Aman-CERP/searchsync/internal/record"
	"github.com/Aman-CERP/searchsync/pkg/signals"
)

// Sink receives record mutations. *mutation.Bus implements it.
type Sink interface {
	Saved(ctx context.Context, rt signals.RecordType, rec signals.Record) error
	Deleting(ctx context.Context, rt signals.RecordType, rec signals.Record) error
}

// Pump applies batches from events to sink until events is closed or ctx
// is cancelled. Failures are logged and do not stop the pump.
func Pump(ctx context.Context, root string, events <-chan []RecordEvent, sink Sink, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-events:
			if !ok {
				return nil
			}
			if err := Apply(ctx, root, batch, sink); err != nil {
				logger.Warn("apply_batch_failed",
					slog.Int("batch_size", len(batch)),
					slog.String("error", err.Error()))
			}
		}
	}
}

// Apply dispatches every event in batch to sink. Saves load the record
// from disk first; a file that vanished before it could be read is
// skipped since its delete event follows. All events are attempted and
// their errors joined.
func Apply(ctx context.Context, root string, batch []RecordEvent, sink Sink) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}

	var errs []error
	for _, ev := range batch {
		if err := apply(ctx, root, ev, sink); err != nil {
			errs = append(errs, fmt.Errorf("%s %s/%s: %w", ev.Operation, ev.Type, ev.ID, err))
		}
	}
	return errors.Join(errs...)
}

func apply(ctx context.Context, root string, ev RecordEvent, sink Sink) error {
	rt := signals.RecordType(ev.Type)

	if ev.Operation == OpDelete {
		metrics.Mutations.WithLabelValues(string(record.OpDelete)).Inc()
		return sink.Deleting(ctx, rt, record.Ref(ev.Type, ev.ID))
	}

	rec, err := record.Load(root, ev.Path)
	if err != nil {
		if serrors.GetCode(err) == serrors.ErrCodeFileNotFound {
			return nil
		}
		return err
	}
	metrics.Mutations.WithLabelValues(string(record.OpSave)).Inc()
	return sink.Saved(ctx, rt, rec)
}
