// Package indexer writes batches of records to a search index.
//
// It supplies the signals.Backend implementations that sit behind a
// signal processor:
//
//	┌──────────────────┐
//	│ signals.Processor│  (buffers saves, forwards deletes)
//	└────────┬─────────┘
//	         │ UpdateIndex / DeleteFromIndex
//	┌────────▼─────────┐
//	│     Fanout       │  (optional, several indexes)
//	└────────┬─────────┘
//	         │
//	┌────────▼─────────┐
//	│  StoreBackend    │  ← maps records to documents, chunks, retries,
//	└────────┬─────────┘     skips unchanged documents
//	         │
//	┌────────▼─────────┐
//	│   store.Index    │  (SQLite FTS5 or Bleve)
//	└──────────────────┘
//
// # Usage
//
//	idx, _ := store.Open(path, store.BackendSQLite, store.DefaultConfig())
//	backend, err := indexer.NewStoreBackend(indexer.WithStore(idx))
//	if err != nil {
//	    return err
//	}
//	defer backend.Close()
//
//	p, err := signals.New(registry, backend, bus)
//
// # Records
//
// By default a record must implement [Indexable]. Use [WithMapper] to
// index other types.
//
// # Thread Safety
//
// StoreBackend and Fanout are safe for concurrent use.
package indexer
