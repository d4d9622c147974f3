// Package store provides the full-text indexes records are written to.
//
// Two backends implement Index: SQLiteIndex (FTS5, the default, safe for
// concurrent readers across processes) and BleveIndex (single process).
package store

import (
	"context"
	"errors"
)

// DefaultSearchLimit is used when a Filter carries no limit.
const DefaultSearchLimit = 10

// ErrIndexClosed is returned by every operation on a closed index.
var ErrIndexClosed = errors.New("index is closed")

// Document is one indexable unit. ID is unique across the whole index,
// Type is the record type the document belongs to.
type Document struct {
	ID      string
	Type    string
	Content string
}

// Hit is a single search result.
type Hit struct {
	ID           string
	Type         string
	Score        float64 // higher is better on both backends
	MatchedTerms []string
}

// Filter narrows a search.
type Filter struct {
	// Type restricts hits to one record type. Empty means all types.
	Type string
	// Limit caps the number of hits (default: DefaultSearchLimit).
	Limit int
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultSearchLimit
	}
	return f.Limit
}

// Stats describes an index.
type Stats struct {
	Backend       Backend
	DocumentCount int
}

// Index stores documents and answers keyword queries scored by BM25.
type Index interface {
	// Index adds or replaces documents.
	Index(ctx context.Context, docs []*Document) error

	// Delete removes documents by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// Search returns documents matching query, best first.
	Search(ctx context.Context, query string, filter Filter) ([]*Hit, error)

	// Count returns the number of documents of typeName, or of all types
	// when typeName is empty.
	Count(ctx context.Context, typeName string) (int, error)

	Stats() *Stats
	Close() error
}

// Config configures text analysis for both backends.
type Config struct {
	// StopWords are dropped during tokenization.
	StopWords []string

	// MinTokenLength drops shorter tokens (default: 2).
	MinTokenLength int
}

// DefaultConfig returns the default analysis configuration.
func DefaultConfig() Config {
	return Config{
		StopWords:      DefaultStopWords,
		MinTokenLength: 2,
	}
}

// DefaultStopWords are common English words with no search value.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
	"in", "is", "it", "of", "on", "or", "that", "the", "to", "was", "with",
}
