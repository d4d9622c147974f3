// Package watcher turns file system changes below a data root into record
// mutations.
//
// Records live at <root>/<type>/<id>.json. The watcher uses fsnotify and
// falls back to polling where fsnotify is unavailable (network mounts,
// some container volumes). Events are debounced per path so that editors
// writing a file several times produce one change, then handed to a Pump
// which loads each record and dispatches it to the mutation bus.
//
// Usage:
//
//	w, err := watcher.New(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go func() { _ = w.Start(ctx, root) }()
//	return watcher.Pump(ctx, root, w.Events(), bus, logger)
package watcher
