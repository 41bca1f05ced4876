package catalog

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/roomcast/roomcast/internal/playback"
	"github.com/roomcast/roomcast/internal/realtime"
)

// Watcher keeps the catalog consistent with the backing directory. Raw
// filesystem events are debounced per path; after the quiet period the path
// is re-stat'd and classified. The delay avoids cataloging a file while it
// is still being written, at the cost of up to one debounce window of
// staleness.
type Watcher struct {
	dir      string
	debounce time.Duration
	cat      *Catalog
	store    *playback.Store
	hub      *realtime.Hub
	logger   *zap.Logger

	timers map[string]*time.Timer // pending debounce per path, touched only by the watch goroutine
}

// NewWatcher creates a watcher over dir.
func NewWatcher(dir string, debounce time.Duration, cat *Catalog, store *playback.Store, hub *realtime.Hub, logger *zap.Logger) *Watcher {
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		cat:      cat,
		store:    store,
		hub:      hub,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
	}
}

// Scan populates the catalog synchronously from the directory contents.
// Entries that fail to stat are logged and skipped.
func (w *Watcher) Scan() error {
	dirents, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		kind, ok := KindForFile(d.Name())
		if !ok {
			continue
		}
		info, err := d.Info()
		if err != nil {
			w.logger.Warn("scan skipping entry", zap.String("name", d.Name()), zap.Error(err))
			continue
		}
		w.cat.Add(d.Name(), kind, info.Size(), info.ModTime())
	}
	w.logger.Info("media directory scanned", zap.String("dir", w.dir), zap.Int("entries", w.cat.Len()))
	return nil
}

// Run watches the directory until ctx is canceled. An error setting up the
// watch is returned immediately; errors on individual events are logged.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return err
	}

	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.schedule(ev.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		case <-ctx.Done():
			return nil
		}
	}
}

// schedule arms the debounce timer for a path. A later event for the same
// path replaces the pending timer: last scheduled wins.
func (w *Watcher) schedule(path string) {
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.hub.Do(func() { w.settle(path) })
	})
}

// settle classifies a quiesced path and mutates the catalog accordingly.
// Runs on the hub loop.
func (w *Watcher) settle(path string) {
	name := filepath.Base(path)
	kind, qualifies := KindForFile(name)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			w.RemoveEntry(name)
			return
		}
		w.logger.Warn("stat failed after debounce", zap.String("path", path), zap.Error(err))
		return
	}
	if info.IsDir() || !qualifies {
		return
	}

	entry, added := w.cat.Add(name, kind, info.Size(), info.ModTime())
	if !added {
		return
	}
	w.logger.Info("media file added", zap.String("id", entry.ID), zap.String("kind", string(entry.Kind)))
	w.hub.ToRole(realtime.RoleController, realtime.EventFileAdded, entry)
}

// RemoveEntry removes a cataloged id, notifies controllers, and forces a
// stop when that id is the currently playing source. The stop bypasses the
// command processor because no controller initiated the change. Runs on the
// hub loop. Reports false for ids that were never cataloged.
func (w *Watcher) RemoveEntry(id string) bool {
	entry, ok := w.cat.Remove(id)
	if !ok {
		return false
	}
	w.logger.Info("media file removed", zap.String("id", entry.ID))
	w.hub.ToRole(realtime.RoleController, realtime.EventFileRemoved, entry)

	st := w.store.Snapshot()
	local := st.MediaType == playback.MediaVideo || st.MediaType == playback.MediaAudio
	if !local || st.Source != id {
		return true
	}
	next := w.store.Stop()
	w.logger.Info("playing source removed, playback stopped", zap.String("id", id))
	w.hub.ToAll(realtime.EventCommand, playback.Command{Type: "stop"})
	w.hub.ToAll(realtime.EventCurrentState, next)
	return true
}
