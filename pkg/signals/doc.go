// Package signals buffers record mutations and flushes them to a search index
// in batches.
//
// A [Processor] sits between a mutation event source (post-save and pre-delete
// notifications) and an indexing [Backend]. Saved records are accumulated per
// [RecordType] and flushed when either:
//   - the buffer reaches the configured buffer size (threshold flush), or
//   - the idle timeout elapses after the first record landed in an empty,
//     timer-less buffer (idle flush).
//
// Deletions are never buffered; they reach the backend synchronously.
//
// # Architecture
//
//	mutation source ──► Processor ──► Scheduler ──► Backend
//	                       │             │
//	                    Registry    buffers + timers
//	                               (one mutex)
//
// # Usage
//
//	p, err := signals.New(registry, backend, bus,
//	    signals.WithBufferSize(200),
//	    signals.WithIdleTimeout(5*time.Second),
//	)
//	if err != nil {
//	    return err
//	}
//	defer p.Close(ctx)
//
//	if err := p.Register("article"); err != nil {
//	    return err
//	}
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. The buffer map and the
// timer map share a single mutex so that append, threshold check, drain and
// timer arming happen as one critical section. The mutex is never held while
// the backend is called.
//
// # Failure semantics
//
// Backend errors are not retried here. Threshold flushes return the error to
// the PostSave caller; idle flushes have no caller, so the error is logged,
// reported to the [Observer] and handed to the [ErrorHandler] if one is set.
package signals
