package signals

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type updateCall struct {
	records   []Record
	typeName  string
	batchSize int
}

type deleteCall struct {
	record   Record
	typeName string
}

// fakeBackend records every call it receives.
type fakeBackend struct {
	mu        sync.Mutex
	updates   []updateCall
	deletes   []deleteCall
	updateErr error
	deleteErr error
}

func (b *fakeBackend) UpdateIndex(_ context.Context, records []Record, typeName string, batchSize int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, updateCall{
		records:   append([]Record(nil), records...),
		typeName:  typeName,
		batchSize: batchSize,
	})
	return b.updateErr
}

func (b *fakeBackend) DeleteFromIndex(_ context.Context, record Record, typeName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes = append(b.deletes, deleteCall{record: record, typeName: typeName})
	return b.deleteErr
}

func (b *fakeBackend) Updates() []updateCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]updateCall(nil), b.updates...)
}

func (b *fakeBackend) Deletes() []deleteCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]deleteCall(nil), b.deletes...)
}

// staticRegistry manages a fixed set of types.
type staticRegistry map[RecordType]bool

func (r staticRegistry) IsManaged(rt RecordType) bool {
	return r[rt]
}

// fakeSource counts connections per type.
type fakeSource struct {
	mu       sync.Mutex
	handlers map[RecordType][]Handler
}

func newFakeSource() *fakeSource {
	return &fakeSource{handlers: make(map[RecordType][]Handler)}
}

func (s *fakeSource) Connect(rt RecordType, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[rt] = append(s.handlers[rt], h)
}

func (s *fakeSource) Disconnect(rt RecordType, h Handler) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.handlers[rt] {
		if cur == h {
			s.handlers[rt] = append(s.handlers[rt][:i], s.handlers[rt][i+1:]...)
			return true
		}
	}
	return false
}

func (s *fakeSource) count(rt RecordType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers[rt])
}

type countingObserver struct {
	mu      sync.Mutex
	flushes map[Trigger]int
	deletes int
	errors  int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{flushes: make(map[Trigger]int)}
}

func (o *countingObserver) Flushed(_ RecordType, trigger Trigger, _ int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flushes[trigger]++
	if err != nil {
		o.errors++
	}
}

func (o *countingObserver) Deleted(RecordType, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deletes++
}

func (o *countingObserver) flushCount(trigger Trigger) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flushes[trigger]
}

// newTestProcessor builds a buffered processor managing type "A" on a fake clock.
func newTestProcessor(t *testing.T, bufferSize int, opts ...Option) (*Processor, *fakeBackend, *clockwork.FakeClock) {
	t.Helper()

	backend := &fakeBackend{}
	clk := clockwork.NewFakeClock()
	all := append([]Option{WithBufferSize(bufferSize), WithClock(clk)}, opts...)

	p, err := New(staticRegistry{"A": true, "B": true}, backend, nil, all...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	return p, backend, clk
}

func blockUntilTimers(t *testing.T, clk *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clk.BlockUntilContext(ctx, n))
}
