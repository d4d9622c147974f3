package signals

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Processor is the buffered signal processor. It receives mutation
// notifications for managed record types, buffers saves through a
// [Scheduler] and forwards deletes straight to the backend.
//
// Processor is safe for concurrent use.
type Processor struct {
	registry  Registry
	backend   Backend
	scheduler *Scheduler
	conn      *connector
	observer  Observer
	logger    *slog.Logger
}

// New creates a buffered processor.
//
// registry and backend are required. source may be nil, in which case
// Register returns ErrNoSource and callers invoke PostSave / PreDelete
// themselves.
func New(registry Registry, backend Backend, source Source, opts ...Option) (*Processor, error) {
	if registry == nil {
		return nil, ErrNilRegistry
	}
	if backend == nil {
		return nil, ErrNilBackend
	}

	o := buildOptions(opts)
	p := &Processor{
		registry:  registry,
		backend:   backend,
		scheduler: newScheduler(backend, o),
		observer:  o.observer,
		logger:    o.logger,
	}
	p.conn = newConnector(source, p)
	return p, nil
}

// PostSave buffers rec if rt is managed. Unmanaged types are ignored.
// A threshold flush triggered by this call returns its backend error.
func (p *Processor) PostSave(ctx context.Context, rt RecordType, rec Record) error {
	if !p.registry.IsManaged(rt) {
		return nil
	}
	return p.scheduler.Add(ctx, rt, rec)
}

// PreDelete removes rec from the index immediately if rt is managed.
func (p *Processor) PreDelete(ctx context.Context, rt RecordType, rec Record) error {
	if !p.registry.IsManaged(rt) {
		return nil
	}
	return deleteNow(ctx, p.backend, p.observer, rt, rec)
}

// Register subscribes the processor to the mutation source for rt.
// Registering a type twice is a no-op.
func (p *Processor) Register(rt RecordType) error {
	if err := p.conn.connect(rt); err != nil {
		return err
	}
	p.logger.Debug("signal_processor_registered", slog.String("type", string(rt)))
	return nil
}

// Deregister unsubscribes rt, cancels its idle timer and flushes whatever is
// still buffered for it. It is safe to call for types that were never
// registered and to call more than once.
func (p *Processor) Deregister(ctx context.Context, rt RecordType) error {
	if p.conn.disconnect(rt) {
		p.logger.Debug("signal_processor_deregistered", slog.String("type", string(rt)))
	}
	return p.scheduler.Discharge(ctx, rt)
}

// BufferSize returns the flush threshold, resolved once on first use.
func (p *Processor) BufferSize() int {
	return p.scheduler.BufferSize()
}

// Scheduler exposes the underlying scheduler for inspection.
func (p *Processor) Scheduler() *Scheduler {
	return p.scheduler
}

// Flush flushes every buffer now.
func (p *Processor) Flush(ctx context.Context) error {
	return p.scheduler.FlushAll(ctx)
}

// Close disconnects every registered type, stops all timers and flushes
// every buffer. PostSave calls for managed types fail with ErrClosed
// afterwards.
func (p *Processor) Close(ctx context.Context) error {
	p.conn.disconnectAll()
	return p.scheduler.Stop(ctx)
}

func deleteNow(ctx context.Context, backend Backend, obs Observer, rt RecordType, rec Record) error {
	err := backend.DeleteFromIndex(ctx, rec, string(rt))
	obs.Deleted(rt, err)
	if err != nil {
		return fmt.Errorf("delete from index %s: %w", rt, err)
	}
	return nil
}

// connector tracks which types a handler is connected for.
type connector struct {
	source  Source
	handler Handler

	mu    sync.Mutex
	types map[RecordType]struct{}
}

func newConnector(source Source, h Handler) *connector {
	return &connector{
		source:  source,
		handler: h,
		types:   make(map[RecordType]struct{}),
	}
}

func (c *connector) connect(rt RecordType) error {
	if c.source == nil {
		return ErrNoSource
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.types[rt]; ok {
		return nil
	}
	c.source.Connect(rt, c.handler)
	c.types[rt] = struct{}{}
	return nil
}

func (c *connector) disconnect(rt RecordType) bool {
	if c.source == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.types[rt]; !ok {
		return false
	}
	delete(c.types, rt)
	return c.source.Disconnect(rt, c.handler)
}

func (c *connector) disconnectAll() {
	if c.source == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for rt := range c.types {
		c.source.Disconnect(rt, c.handler)
		delete(c.types, rt)
	}
}

func (c *connector) registered() []RecordType {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]RecordType, 0, len(c.types))
	for rt := range c.types {
		out = append(out, rt)
	}
	return out
}

// Registered returns the record types currently connected to the source.
func (p *Processor) Registered() []RecordType {
	return p.conn.registered()
}

var _ SignalProcessor = (*Processor)(nil)
