package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_StatusLines(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Successf("indexed %d records", 3)
	w.Warningf("skipped %s", "note")
	w.Errorf("failed")
	w.Infof("detail")

	assert.Equal(t, "✅ indexed 3 records\n⚠️  skipped note\n❌ failed\n   detail\n", buf.String())
}

func TestWriter_Table_AlignsColumns(t *testing.T) {
	// Given: rows of uneven width
	var buf bytes.Buffer
	w := New(&buf)

	// When: printed as a table
	w.Table([][]string{{"TYPE", "COUNT"}, {"article", "12"}, {"a", "3"}})

	// Then: the second column starts at the same offset on every line
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 3)
	col := strings.Index(lines[0], "COUNT")
	assert.Equal(t, col, strings.Index(lines[1], "12"))
	assert.Equal(t, col, strings.Index(lines[2], "3"))
}

func TestWriter_Table_Empty(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Table(nil)
	assert.Empty(t, buf.String())
}

func TestWriter_Counts_SortedByName(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Counts("TYPE", map[string]int{"zeta": 1, "alpha": 2})

	out := buf.String()
	assert.Less(t, strings.Index(out, "alpha"), strings.Index(out, "zeta"))
	assert.True(t, strings.HasPrefix(out, "TYPE"))
}

func TestWriter_Progress(t *testing.T) {
	// Given: a writer
	var buf bytes.Buffer
	w := New(&buf)

	// When: progress is reported midway and at completion
	w.Progress(5, 10, "replaying")
	w.Progress(10, 10, "replaying")

	// Then: only the final update ends the line
	out := buf.String()
	assert.Contains(t, out, "50% replaying")
	assert.Contains(t, out, "100% replaying\n")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestWriter_Progress_ZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Progress(1, 0, "x")
	assert.Empty(t, buf.String())
}

func TestBar(t *testing.T) {
	assert.Equal(t, "░░░░", bar(0, 4, 4))
	assert.Equal(t, "██░░", bar(2, 4, 4))
	assert.Equal(t, "████", bar(9, 4, 4))
	assert.Equal(t, "░░░░", bar(1, 0, 4))
}
