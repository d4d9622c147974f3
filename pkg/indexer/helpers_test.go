package indexer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Aman-CERP/searchsync/internal/store"
	"github.com/Aman-CERP/searchsync/pkg/signals"
)

type doc struct {
	id      string
	content string
}

func (d doc) IndexID() string      { return d.id }
func (d doc) IndexContent() string { return d.content }

// MockStore implements store.Index for testing StoreBackend.
type MockStore struct {
	IndexFn  func(ctx context.Context, docs []*store.Document) error
	DeleteFn func(ctx context.Context, ids []string) error

	mu      sync.Mutex
	batches [][]*store.Document
	deleted []string

	closeCalled atomic.Int32
}

func (m *MockStore) Index(ctx context.Context, docs []*store.Document) error {
	if m.IndexFn != nil {
		if err := m.IndexFn(ctx, docs); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, append([]*store.Document(nil), docs...))
	return nil
}

func (m *MockStore) Delete(ctx context.Context, ids []string) error {
	if m.DeleteFn != nil {
		if err := m.DeleteFn(ctx, ids); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, ids...)
	return nil
}

func (m *MockStore) Search(context.Context, string, store.Filter) ([]*store.Hit, error) {
	return nil, nil
}

func (m *MockStore) Count(context.Context, string) (int, error) { return 0, nil }
func (m *MockStore) Stats() *store.Stats                        { return &store.Stats{} }

func (m *MockStore) Close() error {
	m.closeCalled.Add(1)
	return nil
}

func (m *MockStore) Batches() [][]*store.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]*store.Document(nil), m.batches...)
}

func (m *MockStore) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// MockBackend implements signals.Backend for testing Fanout.
type MockBackend struct {
	UpdateFn func(ctx context.Context, records []signals.Record, typeName string, batchSize int) error
	DeleteFn func(ctx context.Context, rec signals.Record, typeName string) error

	updateCalled atomic.Int32
	deleteCalled atomic.Int32
}

func (m *MockBackend) UpdateIndex(ctx context.Context, records []signals.Record, typeName string, batchSize int) error {
	m.updateCalled.Add(1)
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, records, typeName, batchSize)
	}
	return nil
}

func (m *MockBackend) DeleteFromIndex(ctx context.Context, rec signals.Record, typeName string) error {
	m.deleteCalled.Add(1)
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, rec, typeName)
	}
	return nil
}
