package pipeline

import "github.com/Aman-CERP/searchsync/internal/store"

func storeFilter(typeName string) store.Filter {
	return store.Filter{Type: typeName}
}

func typeNames(p *Pipeline) []string {
	types := p.Types()
	out := make([]string, len(types))
	for i, rt := range types {
		out[i] = string(rt)
	}
	return out
}
