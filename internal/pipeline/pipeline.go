// Package pipeline wires searchsync's components together: the index
// writer lock, the search index, the indexing backend, the type registry,
// the mutation bus and the signal processor.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Aman-CERP/searchsync/internal/config"
	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/metrics"
	"github.com/Aman-CERP/searchsync/internal/record"
	"github.com/Aman-CERP/searchsync/internal/registry"
	"github.com/Aman-CERP/searchsync/internal/store"
	"github.com/Aman-CERP/searchsync/pkg/indexer"
	"github.com/Aman-CERP/searchsync/pkg/mutation"
	"github.com/Aman-CERP/searchsync/pkg/signals"
)

const (
	breakerMaxFailures  = 5
	breakerResetTimeout = 30 * time.Second
)

// Options configures Open.
type Options struct {
	// Config is the loaded configuration. Required.
	Config *config.Config

	// Dir is the project root relative paths resolve against.
	Dir string

	// AutoManage manages every type the first time a mutation for it is
	// applied, in addition to the configured types.
	AutoManage bool

	Logger *slog.Logger
	Clock  clockwork.Clock
}

// Pipeline owns one open index and the processor feeding it.
type Pipeline struct {
	lock      *store.DirLock
	index     store.Index
	backend   *indexer.StoreBackend
	registry  *registry.Registry
	bus       *mutation.Bus
	processor signals.SignalProcessor
	auto      bool
	logger    *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Open takes the index writer lock, opens the index and registers the
// configured types. It fails with ERR_205_INDEX_LOCKED when another
// process is writing the same index.
func Open(opts Options) (*Pipeline, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, serrors.InternalError("pipeline requires a configuration", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	basePath := config.Resolve(opts.Dir, cfg.Index.Path)
	lock := store.NewDirLock(store.LockDir(basePath))
	if err := lock.TryLock(); err != nil {
		if errors.Is(err, store.ErrLocked) {
			return nil, serrors.New(serrors.ErrCodeIndexLocked, "index is in use by another searchsync process", err).
				WithSuggestion("Stop the running 'searchsync watch' or point index.path elsewhere")
		}
		return nil, serrors.IOError("failed to lock index directory", err)
	}

	p, err := open(opts, cfg, basePath, lock, logger, clock)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return p, nil
}

func open(opts Options, cfg *config.Config, basePath string, lock *store.DirLock,
	logger *slog.Logger, clock clockwork.Clock) (*Pipeline, error) {
	index, err := store.Open(basePath, store.Backend(cfg.Index.Backend), StoreConfig(cfg))
	if err != nil {
		return nil, serrors.New(serrors.ErrCodeIndexUnavailable, "failed to open index", err)
	}

	retry := indexer.DefaultRetryConfig()
	retry.MaxRetries = cfg.Index.MaxRetries
	if d := cfg.RetryDelay(); d > 0 {
		retry.InitialDelay = d
	}
	breaker := serrors.NewCircuitBreaker("index",
		serrors.WithMaxFailures(breakerMaxFailures),
		serrors.WithResetTimeout(breakerResetTimeout),
		serrors.WithBreakerClock(clock))

	backend, err := indexer.NewStoreBackend(
		indexer.WithStore(index),
		indexer.WithRetry(retry),
		indexer.WithCircuitBreaker(breaker),
		indexer.WithDedupCacheSize(cfg.Index.DedupCacheSize),
		indexer.WithLogger(logger),
	)
	if err != nil {
		_ = index.Close()
		return nil, err
	}

	reg := registry.New(cfg.Types...)
	bus := mutation.NewBus()
	processor, err := signals.Open(cfg.Signals.Processor,
		signals.Deps{Registry: reg, Backend: backend, Source: bus},
		signals.WithBufferSize(cfg.Signals.BufferSize),
		signals.WithIdleTimeout(cfg.IdleTimeout()),
		signals.WithClock(clock),
		signals.WithLogger(logger),
		signals.WithObserver(metrics.Observer{}),
		signals.WithErrorHandler(func(rt signals.RecordType, err error) {
			attrs := append([]slog.Attr{slog.String("type", string(rt))}, serrors.LogAttrs(err)...)
			logger.LogAttrs(context.Background(), slog.LevelError, "idle_flush_failed", attrs...)
		}),
	)
	if err != nil {
		_ = backend.Close()
		return nil, serrors.ConfigError("failed to create signal processor", err)
	}

	p := &Pipeline{
		lock:      lock,
		index:     index,
		backend:   backend,
		registry:  reg,
		bus:       bus,
		processor: processor,
		auto:      opts.AutoManage,
		logger:    logger,
	}
	for _, rt := range reg.Types() {
		if err := processor.Register(rt); err != nil {
			_ = p.Close(context.Background())
			return nil, err
		}
	}

	logger.Info("pipeline_opened",
		slog.String("index", store.IndexPath(basePath, store.Backend(cfg.Index.Backend))),
		slog.String("processor", cfg.Signals.Processor),
		slog.Int("types", reg.Len()))
	return p, nil
}

// StoreConfig returns the tokenizer settings of cfg.
func StoreConfig(cfg *config.Config) store.Config {
	sc := store.DefaultConfig()
	if len(cfg.Index.StopWords) > 0 {
		sc.StopWords = cfg.Index.StopWords
	}
	if cfg.Index.MinTokenLength > 0 {
		sc.MinTokenLength = cfg.Index.MinTokenLength
	}
	return sc
}

// Manage starts indexing rt. Managing a type twice is a no-op.
func (p *Pipeline) Manage(rt signals.RecordType) error {
	if p.registry.Add(string(rt)) {
		p.logger.Info("type_managed", slog.String("type", string(rt)))
	}
	return p.processor.Register(rt)
}

// Unmanage stops indexing rt and flushes what is buffered for it.
func (p *Pipeline) Unmanage(ctx context.Context, rt signals.RecordType) error {
	err := p.processor.Deregister(ctx, rt)
	p.registry.Remove(string(rt))
	return err
}

// Saved dispatches a saved record to the bus, managing its type first in
// auto-manage mode.
func (p *Pipeline) Saved(ctx context.Context, rt signals.RecordType, rec signals.Record) error {
	if err := p.autoManage(rt); err != nil {
		return err
	}
	return p.bus.Saved(ctx, rt, rec)
}

// Deleting dispatches a record deletion to the bus.
func (p *Pipeline) Deleting(ctx context.Context, rt signals.RecordType, rec signals.Record) error {
	if err := p.autoManage(rt); err != nil {
		return err
	}
	return p.bus.Deleting(ctx, rt, rec)
}

func (p *Pipeline) autoManage(rt signals.RecordType) error {
	if !p.auto || p.registry.IsManaged(rt) {
		return nil
	}
	return p.Manage(rt)
}

// Apply dispatches one mutation log entry.
func (p *Pipeline) Apply(ctx context.Context, m record.Mutation) error {
	rt := signals.RecordType(m.Type)
	metrics.Mutations.WithLabelValues(string(m.Op)).Inc()
	switch m.Op {
	case record.OpSave:
		return p.Saved(ctx, rt, m.Record())
	case record.OpDelete:
		return p.Deleting(ctx, rt, record.Ref(m.Type, m.ID))
	default:
		return serrors.New(serrors.ErrCodeInvalidMutation, fmt.Sprintf("unknown op %q", m.Op), nil)
	}
}

// Flush writes every buffered record now. It is a no-op for processors
// that do not buffer.
func (p *Pipeline) Flush(ctx context.Context) error {
	if f, ok := p.processor.(interface{ Flush(context.Context) error }); ok {
		return f.Flush(ctx)
	}
	return nil
}

// Pending returns the number of buffered records per type.
func (p *Pipeline) Pending() map[signals.RecordType]int {
	if bp, ok := p.processor.(*signals.Processor); ok {
		return bp.Scheduler().PendingAll()
	}
	return map[signals.RecordType]int{}
}

// Bus returns the mutation bus the processor listens on.
func (p *Pipeline) Bus() *mutation.Bus {
	return p.bus
}

// Index returns the open index.
func (p *Pipeline) Index() store.Index {
	return p.index
}

// Types returns the managed types in name order.
func (p *Pipeline) Types() []signals.RecordType {
	return p.registry.Types()
}

// Close flushes buffered records, closes the index and releases the lock.
// Safe to call more than once.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if err := p.processor.Close(ctx); err != nil {
		errs = append(errs, serrors.New(serrors.ErrCodeFlushFailed, "final flush failed", err))
	}
	if err := p.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close index: %w", err))
	}
	if err := p.lock.Unlock(); err != nil {
		errs = append(errs, err)
	}

	p.logger.Info("pipeline_closed", slog.Bool("clean", len(errs) == 0))
	return errors.Join(errs...)
}

var _ interface {
	Saved(context.Context, signals.RecordType, signals.Record) error
	Deleting(context.Context, signals.RecordType, signals.Record) error
} = (*Pipeline)(nil)
