package docgo

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/hupe1980/docgo/storage"
)

// watcher invalidates cached documents when their files change outside the
// engine. Invalidation is rate-limited; once the budget is exhausted a burst
// degrades to invalidating the whole collection, which coalesces the
// remaining events.
type watcher struct {
	store   *storage.Store
	logger  *Logger
	fsw     *fsnotify.Watcher
	limiter *rate.Limiter
	wg      sync.WaitGroup
}

func newWatcher(store *storage.Store, logger *Logger) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &watcher{
		store:   store,
		logger:  logger,
		fsw:     fsw,
		limiter: rate.NewLimiter(rate.Limit(100), 200),
	}, nil
}

func (w *watcher) addCollection(name string) error {
	return w.fsw.Add(filepath.Join(w.store.CollectionDir(name), "docs"))
}

func (w *watcher) start() {
	w.wg.Add(1)
	go w.run()
}

func (w *watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.WarnContext(context.Background(), "watcher error", "error", err)
		}
	}
}

func (w *watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	base := filepath.Base(ev.Name)
	if !strings.HasSuffix(base, ".json") {
		// Temp files of in-flight atomic writes are not cached.
		return
	}
	id := strings.TrimSuffix(base, ".json")
	collection := filepath.Base(filepath.Dir(filepath.Dir(ev.Name)))

	if w.limiter.Allow() {
		w.store.Invalidate(collection, id)
		return
	}
	w.store.InvalidateCollection(collection)
}

func (w *watcher) Close() error {
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}
