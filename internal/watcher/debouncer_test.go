package watcher

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWindow = 100 * time.Millisecond

func event(path string, op Operation) RecordEvent {
	return RecordEvent{Type: "article", ID: path, Path: path, Operation: op}
}

func receive(t *testing.T, d *Debouncer) []RecordEvent {
	t.Helper()
	select {
	case events := <-d.Output():
		return events
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for debounced events")
		return nil
	}
}

func assertNoBatch(t *testing.T, d *Debouncer) {
	t.Helper()
	select {
	case events := <-d.Output():
		t.Fatalf("unexpected batch: %v", events)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDebouncer_SingleEvent_PassesThrough(t *testing.T) {
	// Given: a debouncer on a fake clock
	clk := clockwork.NewFakeClock()
	d := NewDebouncer(testWindow, clk)
	defer d.Stop()

	// When: a single event is added and the window passes
	d.Add(event("a.json", OpCreate))
	clk.Advance(testWindow)

	// Then: the event passes through
	events := receive(t, d)
	require.Len(t, events, 1)
	assert.Equal(t, "a.json", events[0].Path)
	assert.Equal(t, OpCreate, events[0].Operation)
}

func TestDebouncer_WindowRestartsOnEachEvent(t *testing.T) {
	clk := clockwork.NewFakeClock()
	d := NewDebouncer(testWindow, clk)
	defer d.Stop()

	d.Add(event("a.json", OpModify))
	clk.Advance(testWindow / 2)
	d.Add(event("a.json", OpModify))
	clk.Advance(testWindow / 2)

	// Half a window after the second event nothing is emitted yet
	assertNoBatch(t, d)
	assert.Equal(t, 1, d.Pending())

	clk.Advance(testWindow)
	events := receive(t, d)
	require.Len(t, events, 1)
	assert.Equal(t, OpModify, events[0].Operation)
}

func TestDebouncer_Coalescing(t *testing.T) {
	tests := []struct {
		name  string
		ops   []Operation
		want  Operation
		empty bool
	}{
		{name: "create then modify", ops: []Operation{OpCreate, OpModify}, want: OpCreate},
		{name: "create then delete", ops: []Operation{OpCreate, OpDelete}, empty: true},
		{name: "modify then delete", ops: []Operation{OpModify, OpDelete}, want: OpDelete},
		{name: "delete then create", ops: []Operation{OpDelete, OpCreate}, want: OpModify},
		{name: "modify then modify", ops: []Operation{OpModify, OpModify}, want: OpModify},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clockwork.NewFakeClock()
			d := NewDebouncer(testWindow, clk)
			defer d.Stop()

			for _, op := range tt.ops {
				d.Add(event("a.json", op))
			}
			clk.Advance(testWindow)

			if tt.empty {
				assertNoBatch(t, d)
				return
			}
			events := receive(t, d)
			require.Len(t, events, 1)
			assert.Equal(t, tt.want, events[0].Operation)
		})
	}
}

func TestDebouncer_BatchSortedByPath(t *testing.T) {
	clk := clockwork.NewFakeClock()
	d := NewDebouncer(testWindow, clk)
	defer d.Stop()

	d.Add(event("c.json", OpCreate))
	d.Add(event("a.json", OpDelete))
	d.Add(event("b.json", OpModify))
	clk.Advance(testWindow)

	events := receive(t, d)
	require.Len(t, events, 3)
	assert.Equal(t, "a.json", events[0].Path)
	assert.Equal(t, "b.json", events[1].Path)
	assert.Equal(t, "c.json", events[2].Path)
}

func TestDebouncer_Stop(t *testing.T) {
	clk := clockwork.NewFakeClock()
	d := NewDebouncer(testWindow, clk)

	d.Add(event("a.json", OpCreate))
	d.Stop()
	d.Stop()

	// Then: output is closed and later adds are ignored
	_, ok := <-d.Output()
	assert.False(t, ok)
	d.Add(event("b.json", OpCreate))
	assert.Equal(t, 1, d.Pending())
}
