package driver

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceInterval is how long Watch waits for changes to settle.
const DebounceInterval = 100 * time.Millisecond

// WatchFunc receives the sorted, deduplicated template paths changed since the last
// call. An error stops the watch.
type WatchFunc func(ctx context.Context, changed []string) error

// Watch calls fn whenever templates under dirs change, until ctx is done. New
// directories are watched as they appear.
func Watch(ctx context.Context, dirs []string, logger *slog.Logger, fn WatchFunc) error {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range dirs {
		if err := addTree(watcher, dir); err != nil {
			return err
		}
	}
	logger.Debug("watching", "dirs", dirs)

	debounce := time.NewTimer(0)
	<-debounce.C
	defer debounce.Stop()

	pending := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !skipDir(filepath.Base(event.Name)) {
						if err := addTree(watcher, event.Name); err != nil {
							logger.Warn("watch failed", "dir", event.Name, "err", err)
						}
					}
					continue
				}
			}
			if !IsTemplateFile(event.Name) || event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}

			pending[event.Name] = struct{}{}
			debounce.Reset(DebounceInterval)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "err", err)

		case <-debounce.C:
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			clear(pending)

			if len(changed) == 0 {
				continue
			}
			slices.Sort(changed)
			if err := fn(ctx, changed); err != nil {
				return err
			}
		}
	}
}

// addTree watches dir and its subdirectories. fsnotify watches are not recursive.
func addTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %q: %w", path, err)
		}
		return nil
	})
}
