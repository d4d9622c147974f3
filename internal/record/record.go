// Package record defines the JSON records searchsync indexes and the
// mutation log format used to replay changes.
//
// On disk a record lives at <root>/<type>/<id>.json and holds one JSON
// object of fields.
package record

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/pkg/indexer"
)

// Ext is the file extension of record files.
const Ext = ".json"

// Record is one record of a type.
type Record struct {
	Type   string
	ID     string
	Fields map[string]any
}

// IndexID implements indexer.Indexable.
func (r *Record) IndexID() string {
	return r.ID
}

// IndexContent implements indexer.Indexable. Field values are joined in
// key order; nested values are written as JSON.
func (r *Record) IndexContent() string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if s := valueText(r.Fields[k]); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

func valueText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64, bool, json.Number:
		return fmt.Sprint(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// PathInfo splits a record path below root into its type and ID.
// It reports false for paths that are not <root>/<type>/<id>.json.
func PathInfo(root, path string) (typeName, id string, ok bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 {
		return "", "", false
	}

	typeName, file := parts[0], parts[1]
	if typeName == "" || typeName == "." || typeName == ".." || strings.HasPrefix(typeName, ".") {
		return "", "", false
	}
	if filepath.Ext(file) != Ext || strings.HasPrefix(file, ".") {
		return "", "", false
	}
	id = strings.TrimSuffix(file, Ext)
	if id == "" {
		return "", "", false
	}
	return typeName, id, true
}

// Path returns where a record of typeName and id lives below root.
func Path(root, typeName, id string) string {
	return filepath.Join(root, typeName, id+Ext)
}

// Load reads the record file at path below root.
func Load(root, path string) (*Record, error) {
	typeName, id, ok := PathInfo(root, path)
	if !ok {
		return nil, serrors.New(serrors.ErrCodeInvalidPath, fmt.Sprintf("not a record path: %s", path), nil).
			WithSuggestion("Records live at <root>/<type>/<id>.json")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, serrors.New(serrors.ErrCodeFileNotFound, fmt.Sprintf("record not found: %s", path), err)
		}
		return nil, serrors.New(serrors.ErrCodeFilePermission, fmt.Sprintf("read record %s", path), err)
	}

	fields := map[string]any{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, serrors.New(serrors.ErrCodeRecordCorrupt, fmt.Sprintf("parse record %s", path), err)
	}
	return &Record{Type: typeName, ID: id, Fields: fields}, nil
}

// Ref is a record known only by type and ID, as seen by a delete.
func Ref(typeName, id string) *Record {
	return &Record{Type: typeName, ID: id}
}

var _ indexer.Indexable = (*Record)(nil)
