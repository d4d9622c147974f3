package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/store"
	"github.com/Aman-CERP/searchsync/pkg/signals"
)

// DefaultDedupCacheSize is the number of document hashes remembered to
// skip rewriting unchanged documents.
const DefaultDedupCacheSize = 4096

// StoreBackend is a signals.Backend that writes to a store.Index.
//
// A flush is written in chunks of batchSize documents, each chunk retried
// with the configured policy. Documents whose content hash matches the
// last successful write are skipped, so replays and at-least-once
// deliveries do not rewrite the index.
type StoreBackend struct {
	store   store.Index
	mapper  Mapper
	retry   serrors.RetryConfig
	breaker *serrors.CircuitBreaker
	dedup   *lru.Cache[string, string] // doc ID -> content hash
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// Option configures a StoreBackend.
type Option func(*StoreBackend)

// WithStore sets the index documents are written to. Required.
func WithStore(s store.Index) Option {
	return func(b *StoreBackend) {
		b.store = s
	}
}

// WithMapper replaces DefaultMapper.
func WithMapper(m Mapper) Option {
	return func(b *StoreBackend) {
		if m != nil {
			b.mapper = m
		}
	}
}

// WithRetry sets the retry policy applied to every store write.
func WithRetry(cfg serrors.RetryConfig) Option {
	return func(b *StoreBackend) {
		b.retry = cfg
	}
}

// WithCircuitBreaker routes every store call through cb. While cb is open
// flushes fail at once with serrors.ErrCircuitOpen instead of retrying.
func WithCircuitBreaker(cb *serrors.CircuitBreaker) Option {
	return func(b *StoreBackend) {
		b.breaker = cb
	}
}

// WithDedupCacheSize sets how many document hashes are remembered.
// Zero or less disables deduplication.
func WithDedupCacheSize(n int) Option {
	return func(b *StoreBackend) {
		if n <= 0 {
			b.dedup = nil
			return
		}
		b.dedup, _ = lru.New[string, string](n)
	}
}

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(b *StoreBackend) {
		if l != nil {
			b.logger = l
		}
	}
}

// DefaultRetryConfig is a short retry policy suited to local indexes.
func DefaultRetryConfig() serrors.RetryConfig {
	return serrors.RetryConfig{
		MaxRetries:   2,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}
}

// NewStoreBackend creates a StoreBackend. Returns ErrNilStore when no
// store is configured.
func NewStoreBackend(opts ...Option) (*StoreBackend, error) {
	dedup, _ := lru.New[string, string](DefaultDedupCacheSize)
	b := &StoreBackend{
		mapper: DefaultMapper,
		retry:  DefaultRetryConfig(),
		dedup:  dedup,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.store == nil {
		return nil, ErrNilStore
	}
	return b, nil
}

// UpdateIndex writes records of typeName in chunks of batchSize.
//
// Every record is mapped before anything is written, so an unmappable
// record fails the whole flush without a partial write. Chunks are written
// in order; the first chunk that still fails after retries aborts the flush.
func (b *StoreBackend) UpdateIndex(ctx context.Context, records []signals.Record, typeName string, batchSize int) error {
	if len(records) == 0 {
		return nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return store.ErrIndexClosed
	}

	docs := make([]*store.Document, 0, len(records))
	for _, rec := range records {
		doc, err := b.mapper(rec, typeName)
		if err != nil {
			return fmt.Errorf("map %s record: %w", typeName, err)
		}
		docs = append(docs, doc)
	}

	docs, hashes := b.changed(docs)
	if len(docs) == 0 {
		b.logger.Debug("index_update_skipped",
			slog.String("type", typeName),
			slog.Int("records", len(records)))
		return nil
	}

	if batchSize <= 0 {
		batchSize = len(docs)
	}
	for start := 0; start < len(docs); start += batchSize {
		end := min(start+batchSize, len(docs))
		chunk := docs[start:end]

		err := serrors.Retry(ctx, b.retry, func() error {
			return b.call(func() error { return b.store.Index(ctx, chunk) })
		})
		if err != nil {
			return fmt.Errorf("index %s documents %d-%d: %w", typeName, start, end-1, err)
		}
		b.remember(chunk, hashes[start:end])
	}

	b.logger.Debug("index_updated",
		slog.String("type", typeName),
		slog.Int("records", len(records)),
		slog.Int("written", len(docs)))
	return nil
}

// DeleteFromIndex removes one record of typeName.
func (b *StoreBackend) DeleteFromIndex(ctx context.Context, rec signals.Record, typeName string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return store.ErrIndexClosed
	}

	doc, err := b.mapper(rec, typeName)
	if err != nil {
		return fmt.Errorf("map %s record: %w", typeName, err)
	}

	err = serrors.Retry(ctx, b.retry, func() error {
		return b.call(func() error { return b.store.Delete(ctx, []string{doc.ID}) })
	})
	if b.dedup != nil {
		b.dedup.Remove(doc.ID)
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", doc.ID, err)
	}
	return nil
}

// Store returns the underlying index.
func (b *StoreBackend) Store() store.Index {
	return b.store
}

// Close closes the underlying index. Safe to call more than once.
func (b *StoreBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.store.Close()
}

// call runs one store operation through the breaker. Errors that a retry
// cannot fix are marked permanent.
func (b *StoreBackend) call(fn func() error) error {
	var err error
	if b.breaker != nil {
		err = b.breaker.Execute(fn)
	} else {
		err = fn()
	}
	if errors.Is(err, serrors.ErrCircuitOpen) || errors.Is(err, store.ErrIndexClosed) {
		return serrors.Permanent(err)
	}
	return err
}

// changed drops documents whose content is already indexed and returns
// the content hash of each remaining document.
func (b *StoreBackend) changed(docs []*store.Document) ([]*store.Document, []string) {
	out := docs[:0:0]
	hashes := make([]string, 0, len(docs))
	for _, doc := range docs {
		h := contentHash(doc)
		if b.dedup != nil {
			if prev, ok := b.dedup.Get(doc.ID); ok && prev == h {
				continue
			}
		}
		out = append(out, doc)
		hashes = append(hashes, h)
	}
	return out, hashes
}

func (b *StoreBackend) remember(docs []*store.Document, hashes []string) {
	if b.dedup == nil {
		return
	}
	for i, doc := range docs {
		b.dedup.Add(doc.ID, hashes[i])
	}
}

func contentHash(doc *store.Document) string {
	sum := sha256.Sum256([]byte(doc.Type + "\x00" + doc.Content))
	return hex.EncodeToString(sum[:])
}

var _ signals.Backend = (*StoreBackend)(nil)
