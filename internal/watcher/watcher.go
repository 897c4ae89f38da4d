// Package watcher turns raw filesystem notifications into debounced
// batches of changed paths.
package watcher

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/benwr/gwipt/internal/debounce"
)

const relevantOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

// Watcher watches a directory tree recursively and delivers one batch of
// changed paths per quiet period. Watch errors are logged and never stop
// the loop.
type Watcher struct {
	fsw     *fsnotify.Watcher
	batcher *debounce.Batcher
	batches chan []string
}

func New(root string, delay time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	w := &Watcher{
		fsw:     fsw,
		batches: make(chan []string),
	}
	w.batcher = debounce.NewBatcher(delay, func(paths []string) {
		w.batches <- paths
	})
	if err := w.addRecursive(root); err != nil {
		err = fmt.Errorf("watch %s: %w", root, err)
		if closeErr := fsw.Close(); closeErr != nil {
			slog.Error("watcher close", slog.Any("error", closeErr))
		}
		return nil, err
	}
	go w.loop()
	return w, nil
}

// Batches yields batches of changed paths in delivery order. The channel
// is unbuffered, so the consumer's pace throttles delivery and no two
// batches are ever handled concurrently.
func (w *Watcher) Batches() <-chan []string {
	return w.batches
}

func (w *Watcher) Close() error {
	w.batcher.Stop()
	return w.fsw.Close()
}

// addRecursive registers every directory below root. fsnotify watches are
// per-directory, so new directories are added as they show up in events.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			slog.Debug("skipping unreadable path", slog.String("path", path), slog.Any("error", err))
			return fs.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("add watch for %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&relevantOps == 0 {
				continue
			}
			slog.Debug("fsnotify event",
				slog.String("op", ev.Op.String()),
				slog.String("path", ev.Name),
			)
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(ev.Name); err != nil {
						slog.Error("watch new directory", slog.String("path", ev.Name), slog.Any("error", err))
					}
				}
			}
			w.batcher.Add(ev.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Error("fsnotify error", slog.Any("error", err))
		}
	}
}
