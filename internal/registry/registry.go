// Package registry tracks which record types are managed by indexing.
package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/Aman-CERP/searchsync/pkg/signals"
)

// Registry is a concurrency-safe set of managed record types.
// It implements signals.Registry.
type Registry struct {
	mu    sync.RWMutex
	types map[signals.RecordType]struct{}
}

// New creates a registry managing names. Blank names are ignored.
func New(names ...string) *Registry {
	r := &Registry{types: make(map[signals.RecordType]struct{}, len(names))}
	for _, n := range names {
		r.Add(n)
	}
	return r
}

// Add manages name. It reports whether name was newly added.
func (r *Registry) Add(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rt := signals.RecordType(name)
	if _, ok := r.types[rt]; ok {
		return false
	}
	r.types[rt] = struct{}{}
	return true
}

// Remove stops managing name. It reports whether name was managed.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt := signals.RecordType(strings.TrimSpace(name))
	if _, ok := r.types[rt]; !ok {
		return false
	}
	delete(r.types, rt)
	return true
}

// IsManaged reports whether rt is managed.
func (r *Registry) IsManaged(rt signals.RecordType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[rt]
	return ok
}

// Types returns the managed types, sorted.
func (r *Registry) Types() []signals.RecordType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]signals.RecordType, 0, len(r.types))
	for rt := range r.types {
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of managed types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

var _ signals.Registry = (*Registry)(nil)
