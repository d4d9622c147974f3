package signals

// bufferStore holds the pending records of every record type.
//
// It has no lock of its own: callers must hold Scheduler.mu, which also
// guards the timer registry.
type bufferStore struct {
	buffers map[RecordType][]Record
}

func newBufferStore() *bufferStore {
	return &bufferStore{buffers: make(map[RecordType][]Record)}
}

// append adds rec to the buffer of rt. When the new length reaches threshold
// the whole buffer is returned as batch and the buffer is reset to empty;
// otherwise batch is nil.
func (b *bufferStore) append(rt RecordType, rec Record, threshold int) (n int, batch []Record) {
	buf := append(b.buffers[rt], rec)
	n = len(buf)
	if n >= threshold {
		b.buffers[rt] = nil
		return n, buf
	}
	b.buffers[rt] = buf
	return n, nil
}

// drain returns the current contents of the buffer of rt, possibly empty,
// and resets it. The map entry is kept.
func (b *bufferStore) drain(rt RecordType) []Record {
	buf := b.buffers[rt]
	b.buffers[rt] = nil
	return buf
}

func (b *bufferStore) len(rt RecordType) int {
	return len(b.buffers[rt])
}

// pending returns the buffered count per type, omitting empty buffers.
func (b *bufferStore) pending() map[RecordType]int {
	out := make(map[RecordType]int, len(b.buffers))
	for rt, buf := range b.buffers {
		if len(buf) > 0 {
			out[rt] = len(buf)
		}
	}
	return out
}
