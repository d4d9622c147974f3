package record

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
)

// Op is a mutation kind.
type Op string

const (
	// OpSave creates or updates a record.
	OpSave Op = "save"
	// OpDelete deletes a record.
	OpDelete Op = "delete"
)

// maxLineSize bounds a single mutation log line.
const maxLineSize = 4 << 20

// Mutation is one line of a mutation log:
//
//	{"op":"save","type":"article","id":"1","fields":{"title":"..."}}
//	{"op":"delete","type":"article","id":"1"}
type Mutation struct {
	Op     Op             `json:"op"`
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Record returns the record the mutation applies to.
func (m Mutation) Record() *Record {
	return &Record{Type: m.Type, ID: m.ID, Fields: m.Fields}
}

// ParseMutation decodes and validates one mutation log line.
func ParseMutation(line []byte) (Mutation, error) {
	var m Mutation
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return Mutation{}, serrors.New(serrors.ErrCodeInvalidMutation, "malformed mutation", err)
	}

	switch {
	case m.Op != OpSave && m.Op != OpDelete:
		return Mutation{}, serrors.New(serrors.ErrCodeInvalidMutation,
			fmt.Sprintf("unknown op %q", m.Op), nil).
			WithSuggestion(`op must be "save" or "delete"`)
	case m.Type == "":
		return Mutation{}, serrors.New(serrors.ErrCodeInvalidMutation, "mutation has no type", nil)
	case m.ID == "":
		return Mutation{}, serrors.New(serrors.ErrCodeInvalidMutation, "mutation has no id", nil)
	}
	return m, nil
}

// ReadMutations calls fn for every mutation in r, in order. Blank lines
// and lines starting with '#' are skipped. line is 1-based.
// Parse errors and errors from fn stop reading.
func ReadMutations(r io.Reader, fn func(line int, m Mutation) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	n := 0
	for scanner.Scan() {
		n++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 || text[0] == '#' {
			continue
		}

		m, err := ParseMutation(text)
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		if err := fn(n, m); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return scanner.Err()
}
