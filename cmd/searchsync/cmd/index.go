package cmd

import (
	"fmt"

	"github.com/Aman-CERP/searchsync/internal/config"
	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/pipeline"
	"github.com/Aman-CERP/searchsync/internal/store"
)

// openIndex opens the existing index of the project without taking the
// writer lock, so it can be read while 'watch' is running.
func openIndex(cfg *config.Config) (store.Index, error) {
	basePath := config.Resolve(projectDir, cfg.Index.Path)

	backend := store.DetectBackend(basePath)
	if backend == "" {
		return nil, serrors.New(serrors.ErrCodeIndexUnavailable, fmt.Sprintf("no index found at %s", basePath), nil).
			WithSuggestion("Run 'searchsync watch' or 'searchsync replay' first")
	}

	idx, err := store.Open(basePath, backend, pipeline.StoreConfig(cfg))
	if err != nil {
		return nil, serrors.New(serrors.ErrCodeIndexUnavailable, "failed to open index", err)
	}
	return idx, nil
}
