package signals

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

const (
	// ProcessorBuffered names the buffered Processor. It is the default.
	ProcessorBuffered = "buffered"
	// ProcessorDirect names the DirectProcessor.
	ProcessorDirect = "direct"
)

// SignalProcessor is a Handler with a subscription lifecycle.
type SignalProcessor interface {
	Handler
	Register(rt RecordType) error
	Deregister(ctx context.Context, rt RecordType) error
	Close(ctx context.Context) error
}

// Deps are the collaborators every processor is built from.
type Deps struct {
	Registry Registry
	Backend  Backend
	Source   Source
}

// Factory builds a SignalProcessor.
type Factory func(deps Deps, opts ...Option) (SignalProcessor, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{
		ProcessorBuffered: func(d Deps, opts ...Option) (SignalProcessor, error) {
			return New(d.Registry, d.Backend, d.Source, opts...)
		},
		ProcessorDirect: func(d Deps, opts ...Option) (SignalProcessor, error) {
			return NewDirect(d.Registry, d.Backend, d.Source, opts...)
		},
	}
)

// RegisterFactory makes a processor available to Open under name.
// Registering an existing name replaces it.
func RegisterFactory(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Factories returns the registered processor names, sorted.
func Factories() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open builds the processor registered under name. An empty name selects
// the buffered processor.
func Open(name string, deps Deps, opts ...Option) (SignalProcessor, error) {
	if name == "" {
		name = ProcessorBuffered
	}

	factoriesMu.RLock()
	f, ok := factories[name]
	factoriesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProcessor, name)
	}
	return f(deps, opts...)
}

// DirectProcessor indexes every save immediately as a one-record batch.
// It is useful for low-traffic types and tests where batching only adds
// latency.
type DirectProcessor struct {
	registry Registry
	backend  Backend
	conn     *connector
	observer Observer
	logger   *slog.Logger
}

// NewDirect creates a DirectProcessor. Buffer and timer options are ignored.
func NewDirect(registry Registry, backend Backend, source Source, opts ...Option) (*DirectProcessor, error) {
	if registry == nil {
		return nil, ErrNilRegistry
	}
	if backend == nil {
		return nil, ErrNilBackend
	}

	o := buildOptions(opts)
	d := &DirectProcessor{
		registry: registry,
		backend:  backend,
		observer: o.observer,
		logger:   o.logger,
	}
	d.conn = newConnector(source, d)
	return d, nil
}

// PostSave writes rec to the index if rt is managed.
func (d *DirectProcessor) PostSave(ctx context.Context, rt RecordType, rec Record) error {
	if !d.registry.IsManaged(rt) {
		return nil
	}

	err := d.backend.UpdateIndex(ctx, []Record{rec}, string(rt), 1)
	d.observer.Flushed(rt, TriggerDirect, 1, err)
	if err != nil {
		return fmt.Errorf("update index %s: %w", rt, err)
	}
	return nil
}

// PreDelete removes rec from the index if rt is managed.
func (d *DirectProcessor) PreDelete(ctx context.Context, rt RecordType, rec Record) error {
	if !d.registry.IsManaged(rt) {
		return nil
	}
	return deleteNow(ctx, d.backend, d.observer, rt, rec)
}

// Register subscribes to the mutation source for rt.
func (d *DirectProcessor) Register(rt RecordType) error {
	return d.conn.connect(rt)
}

// Deregister unsubscribes rt. Safe to call repeatedly.
func (d *DirectProcessor) Deregister(_ context.Context, rt RecordType) error {
	d.conn.disconnect(rt)
	return nil
}

// Close unsubscribes every registered type.
func (d *DirectProcessor) Close(context.Context) error {
	d.conn.disconnectAll()
	return nil
}

var _ SignalProcessor = (*DirectProcessor)(nil)
