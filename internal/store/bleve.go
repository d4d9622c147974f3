package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	// RecordTokenizerType is the registered type of the record tokenizer.
	RecordTokenizerType = "searchsync_record_tokenizer"

	// RecordStopFilterType is the registered type of the stop word filter.
	RecordStopFilterType = "searchsync_record_stop"

	// RecordAnalyzerName is the analyzer applied to document content.
	RecordAnalyzerName = "record_analyzer"

	recordTokenizerName  = "record_tokens"
	recordStopFilterName = "record_stops"

	fieldType    = "type"
	fieldContent = "content"
)

func init() {
	_ = registry.RegisterTokenizer(RecordTokenizerType, recordTokenizerConstructor)
	_ = registry.RegisterTokenFilter(RecordStopFilterType, recordStopFilterConstructor)
}

// BleveIndex is an Index backed by Bleve v2.
//
// Bleve holds an exclusive BoltDB lock on its directory, so only one
// process may open a given index.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	config Config
	closed bool
}

// bleveDocument is what Bleve stores for each Document.
type bleveDocument struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// validateBleveIntegrity checks an existing index directory before opening.
// A missing directory is valid: it will be created.
func validateBleveIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return errors.New("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return errors.New("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isBleveCorruption(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, bleve.ErrorIndexMetaCorrupt) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt")
}

// NewBleveIndex opens or creates a Bleve index at path.
// An empty path creates an in-memory index.
// A corrupted index directory is removed and recreated empty; the caller
// is expected to replay records into it.
func NewBleveIndex(path string, config Config) (*BleveIndex, error) {
	indexMapping, err := newIndexMapping(config)
	if err != nil {
		return nil, fmt.Errorf("create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		idx, err = openBleve(path, indexMapping)
	}
	if err != nil {
		return nil, fmt.Errorf("open bleve index: %w", err)
	}

	return &BleveIndex{
		index:  idx,
		path:   path,
		config: config,
	}, nil
}

func openBleve(path string, indexMapping mapping.IndexMapping) (bleve.Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", filepath.Dir(path), err)
	}

	if validErr := validateBleveIntegrity(path); validErr != nil {
		slog.Warn("bleve_index_corrupted",
			slog.String("path", path),
			slog.String("error", validErr.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("index corrupted at %s and cannot remove: %w (original error: %v)", path, err, validErr)
		}
		slog.Info("bleve_index_cleared", slog.String("path", path))
	}

	idx, err := bleve.Open(path)
	switch {
	case errors.Is(err, bleve.ErrorIndexPathDoesNotExist):
		return bleve.New(path, indexMapping)
	case isBleveCorruption(err):
		slog.Warn("bleve_index_open_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, fmt.Errorf("index corrupted, cannot clear: %w (original: %v)", rmErr, err)
		}
		slog.Info("bleve_index_cleared", slog.String("path", path))
		return bleve.New(path, indexMapping)
	default:
		return idx, err
	}
}

// newIndexMapping maps the type field as a keyword and analyzes content
// with the record analyzer.
func newIndexMapping(config Config) (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()

	err := im.AddCustomTokenizer(recordTokenizerName, map[string]interface{}{
		"type":       RecordTokenizerType,
		"min_length": float64(config.MinTokenLength),
	})
	if err != nil {
		return nil, fmt.Errorf("add tokenizer: %w", err)
	}

	stopWords := make([]interface{}, len(config.StopWords))
	for i, w := range config.StopWords {
		stopWords[i] = w
	}
	err = im.AddCustomTokenFilter(recordStopFilterName, map[string]interface{}{
		"type":       RecordStopFilterType,
		"stop_words": stopWords,
	})
	if err != nil {
		return nil, fmt.Errorf("add stop filter: %w", err)
	}

	err = im.AddCustomAnalyzer(RecordAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     recordTokenizerName,
		"token_filters": []string{recordStopFilterName},
	})
	if err != nil {
		return nil, fmt.Errorf("add analyzer: %w", err)
	}

	typeField := bleve.NewKeywordFieldMapping()
	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = RecordAnalyzerName
	contentField.Store = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(fieldType, typeField)
	doc.AddFieldMappingsAt(fieldContent, contentField)

	im.DefaultMapping = doc
	im.DefaultAnalyzer = RecordAnalyzerName
	return im, nil
}

// Index adds or replaces documents in one batch.
func (b *BleveIndex) Index(_ context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrIndexClosed
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, bleveDocument{Type: doc.Type, Content: doc.Content}); err != nil {
			return fmt.Errorf("index document %s: %w", doc.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("execute batch: %w", err)
	}
	return nil
}

// Delete removes documents by ID.
func (b *BleveIndex) Delete(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrIndexClosed
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}

// Search returns documents containing every query term.
func (b *BleveIndex) Search(ctx context.Context, q string, filter Filter) ([]*Hit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrIndexClosed
	}
	if strings.TrimSpace(q) == "" {
		return []*Hit{}, nil
	}

	match := bleve.NewMatchQuery(q)
	match.SetField(fieldContent)
	match.SetOperator(query.MatchQueryOperatorAnd)

	req := bleve.NewSearchRequest(withTypeFilter(match, filter.Type))
	req.Size = filter.limit()
	req.Fields = []string{fieldType}
	req.IncludeLocations = true

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]*Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		typeName, _ := h.Fields[fieldType].(string)
		hits = append(hits, &Hit{
			ID:           h.ID,
			Type:         typeName,
			Score:        h.Score,
			MatchedTerms: matchedTerms(h),
		})
	}
	return hits, nil
}

// Count returns the number of documents of typeName (all when empty).
func (b *BleveIndex) Count(ctx context.Context, typeName string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, ErrIndexClosed
	}

	if typeName == "" {
		n, err := b.index.DocCount()
		if err != nil {
			return 0, fmt.Errorf("count documents: %w", err)
		}
		return int(n), nil
	}

	req := bleve.NewSearchRequest(withTypeFilter(bleve.NewMatchAllQuery(), typeName))
	req.Size = 0
	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("count documents of %s: %w", typeName, err)
	}
	return int(result.Total), nil
}

// Stats returns index statistics.
func (b *BleveIndex) Stats() *Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := &Stats{Backend: BackendBleve}
	if b.closed {
		return stats
	}
	n, _ := b.index.DocCount()
	stats.DocumentCount = int(n)
	return stats
}

// Close closes the index. It is safe to call more than once.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

func withTypeFilter(q query.Query, typeName string) query.Query {
	if typeName == "" {
		return q
	}
	tq := bleve.NewTermQuery(typeName)
	tq.SetField(fieldType)
	return bleve.NewConjunctionQuery(q, tq)
}

func matchedTerms(hit *search.DocumentMatch) []string {
	seen := make(map[string]struct{})
	for term := range hit.Locations[fieldContent] {
		seen[term] = struct{}{}
	}

	terms := make([]string, 0, len(seen))
	for term := range seen {
		terms = append(terms, term)
	}
	return terms
}

var _ Index = (*BleveIndex)(nil)

func recordTokenizerConstructor(config map[string]interface{}, _ *registry.Cache) (analysis.Tokenizer, error) {
	minLen := 1
	if v, ok := config["min_length"].(float64); ok && v > 0 {
		minLen = int(v)
	}
	return &recordTokenizer{minLen: minLen}, nil
}

// recordTokenizer adapts Tokenize to Bleve.
type recordTokenizer struct {
	minLen int
}

// Tokenize implements analysis.Tokenizer.
func (t *recordTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	lowerText := strings.ToLower(text)
	tokens := Tokenize(text, t.minLen)

	result := make(analysis.TokenStream, 0, len(tokens))
	offset := 0
	for i, token := range tokens {
		start := strings.Index(lowerText[offset:], token)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)
		if end > len(text) {
			end = len(text)
		}

		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
		offset = end
	}
	return result
}

func recordStopFilterConstructor(config map[string]interface{}, _ *registry.Cache) (analysis.TokenFilter, error) {
	var words []string
	switch v := config["stop_words"].(type) {
	case []interface{}:
		for _, w := range v {
			if s, ok := w.(string); ok {
				words = append(words, s)
			}
		}
	case []string:
		words = v
	}
	return &recordStopFilter{stopWords: BuildStopWordMap(words)}, nil
}

// recordStopFilter drops stop words from a token stream.
type recordStopFilter struct {
	stopWords map[string]struct{}
}

// Filter implements analysis.TokenFilter.
func (f *recordStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		if _, isStop := f.stopWords[string(token.Term)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
