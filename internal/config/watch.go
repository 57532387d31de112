package config

import (
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the directory containing the registry's config file and
// reloads it on a debounced write event, so an operator editing the file
// on disk is picked up without a process restart. Reload failures are
// logged and do not disturb the in-memory values already loaded.
type Watcher struct {
	fsw    *fsnotify.Watcher
	done   chan struct{}
	debounce time.Duration
}

// WatchFile arms a live-reload watcher for path against r. Returns a
// non-nil error if the watcher cannot be armed (e.g. the directory does
// not exist); callers should treat that as non-fatal per
// ConfigWatchError and continue with the already-loaded values.
func (r *Registry) WatchFile(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{fsw: fsw, done: make(chan struct{}), debounce: 250 * time.Millisecond}
	go w.run(r, path)
	return w, nil
}

func (w *Watcher) run(r *Registry, path string) {
	var timer *time.Timer
	reload := func() {
		before := r.ToJSON(true)
		if unknown, err := r.Load(path); err != nil {
			log.Printf("[config] reload of %s failed: %v", path, err)
		} else {
			after := r.ToJSON(true)
			for k, v := range after {
				if before[k] != v {
					log.Printf("[config] reloaded %s: %s changed to %v", path, k, v)
				}
			}
			if len(unknown) > 0 {
				log.Printf("[config] reload of %s skipped unknown/invalid keys: %v", path, unknown)
			}
		}
	}

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, reload)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("[config] watcher error: %v", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher goroutine and releases the underlying fsnotify
// handle.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
