package indexer

import (
	"errors"
	"fmt"

	"github.com/Aman-CERP/searchsync/internal/store"
	"github.com/Aman-CERP/searchsync/pkg/signals"
)

var (
	// ErrNilStore is returned when a StoreBackend is created without a store.
	ErrNilStore = errors.New("store is required")

	// ErrNotIndexable is returned by DefaultMapper for records that do not
	// implement Indexable.
	ErrNotIndexable = errors.New("record is not indexable")

	// ErrNoBackends is returned when a Fanout is created without backends.
	ErrNoBackends = errors.New("at least one backend is required")
)

// Indexable is implemented by records that know their index identity and
// searchable text.
type Indexable interface {
	// IndexID is unique within the record's type.
	IndexID() string
	// IndexContent is the text made searchable.
	IndexContent() string
}

// Mapper converts a record of typeName to a store document.
type Mapper func(rec signals.Record, typeName string) (*store.Document, error)

// DocKey is the store ID of record id of typeName.
func DocKey(typeName, id string) string {
	return typeName + "/" + id
}

// DefaultMapper maps records implementing Indexable.
func DefaultMapper(rec signals.Record, typeName string) (*store.Document, error) {
	ix, ok := rec.(Indexable)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrNotIndexable, rec)
	}
	return &store.Document{
		ID:      DocKey(typeName, ix.IndexID()),
		Type:    typeName,
		Content: ix.IndexContent(),
	}, nil
}
