package signals

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultBufferSize is used when no buffer size is configured.
	DefaultBufferSize = 100

	// DefaultIdleTimeout is the delay before a partially filled buffer is flushed.
	DefaultIdleTimeout = 5 * time.Second
)

var (
	// ErrNilRegistry is returned when a processor is created without a registry.
	ErrNilRegistry = errors.New("type registry is required")

	// ErrNilBackend is returned when a processor or scheduler is created without a backend.
	ErrNilBackend = errors.New("index backend is required")

	// ErrNoSource is returned by Register when the processor has no mutation source.
	ErrNoSource = errors.New("mutation source is not configured")

	// ErrClosed is returned when records are added after the scheduler stopped.
	ErrClosed = errors.New("signal processor is closed")

	// ErrUnknownProcessor is returned by Open for names nobody registered.
	ErrUnknownProcessor = errors.New("unknown signal processor")
)

// RecordType identifies a class of records, such as a model or table name.
type RecordType string

// Record is an opaque handle to one mutated record.
// This package only counts and batches records; it never inspects them.
type Record = any

// Trigger describes why a buffer was flushed.
type Trigger string

const (
	// TriggerThreshold means the buffer reached the buffer size.
	TriggerThreshold Trigger = "threshold"
	// TriggerIdle means the idle timer fired.
	TriggerIdle Trigger = "idle"
	// TriggerManual means an explicit flush (FlushAll, Deregister, Close).
	TriggerManual Trigger = "manual"
	// TriggerDirect means an unbuffered write by DirectProcessor.
	TriggerDirect Trigger = "direct"
)

// Registry decides which record types are managed by indexing.
//
// IsManaged is called on every mutation and must not block.
type Registry interface {
	IsManaged(rt RecordType) bool
}

// Backend writes records to the search index.
//
// The backend owns serialization, batching inside a flush and any retry
// policy. batchSize is a hint carrying the configured buffer size.
type Backend interface {
	UpdateIndex(ctx context.Context, records []Record, typeName string, batchSize int) error
	DeleteFromIndex(ctx context.Context, record Record, typeName string) error
}

// Handler receives mutation notifications for a record type.
type Handler interface {
	// PostSave is called after a record was created or updated.
	PostSave(ctx context.Context, rt RecordType, rec Record) error
	// PreDelete is called before a record is deleted.
	PreDelete(ctx context.Context, rt RecordType, rec Record) error
}

// Source is the mutation event source handlers subscribe to.
type Source interface {
	Connect(rt RecordType, h Handler)
	// Disconnect removes h for rt and reports whether it was connected.
	Disconnect(rt RecordType, h Handler) bool
}

// Observer is notified after every backend call. Implementations must be
// cheap and safe for concurrent use.
type Observer interface {
	Flushed(rt RecordType, trigger Trigger, n int, err error)
	Deleted(rt RecordType, err error)
}

// ErrorHandler receives failures of idle flushes, which have no caller to
// return an error to.
type ErrorHandler func(rt RecordType, err error)

type nopObserver struct{}

func (nopObserver) Flushed(RecordType, Trigger, int, error) {}
func (nopObserver) Deleted(RecordType, error)               {}
