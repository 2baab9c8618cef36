// Package watch republishes a markdown file whenever it changes on disk.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// File watches path and invokes publish with the file's contents after each
// on-disk change. It blocks until ctx is cancelled.
//
// The parent directory is watched rather than the file itself: most editors
// save by writing a temp file and renaming it over the original, which would
// orphan a watch on the file's inode.
func File(ctx context.Context, path string, publish func([]byte), logger *slog.Logger) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve watch path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}

			data, err := os.ReadFile(abs)
			if err != nil {
				// Rename-over saves can leave a brief window where the file
				// is missing; the next event carries the new contents.
				logger.Warn("cannot re-read watched file",
					slog.String("path", abs), slog.String("error", err.Error()))
				continue
			}

			logger.Debug("watched file changed", slog.String("path", abs))
			publish(data)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}
