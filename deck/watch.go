package deck

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay coalesces the burst of events an editor produces on save.
const settleDelay = 150 * time.Millisecond

// Watch reloads the deck at path whenever it changes on disk and hands the
// result to onChange, until ctx is done. onChange runs on the watcher's
// goroutine; a failed reload passes a nil deck and the error.
//
// The containing directory is watched rather than the file, so editors that
// save by renaming a temp file over the original keep being followed.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Deck, error)) error {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("deck: watch %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("deck: watch %s: %w", path, err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return fmt.Errorf("deck: watch %s: %w", path, err)
	}

	go func() {
		defer w.Close()
		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				pending = time.After(settleDelay)
			case <-pending:
				pending = nil
				d, err := Load(abs)
				if err != nil {
					logger.Warn("deck reload failed", "path", abs, "error", err)
					onChange(nil, err)
					continue
				}
				logger.Info("deck reloaded", "path", abs, "slides", len(d.Entries))
				onChange(d, nil)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("deck watcher error", "path", abs, "error", err)
			}
		}
	}()
	return nil
}
