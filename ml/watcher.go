package ml

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 250 * time.Millisecond

// Reloader is what the watcher needs from a model holder.
type Reloader interface {
	Reload() error
	Info() string
}

// WatchModel reloads the model whenever the file at path is written, created or
// renamed into place. The parent directory is watched so that atomic replacements
// are seen too. It blocks until ctx is done. onReload, if set, receives the result
// of every reload attempt.
func WatchModel(ctx context.Context, store Reloader, path string, logger *zap.Logger, onReload func(error)) error {
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve model path: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create model watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}
	logger.Info("watching model file", zap.String("path", target))

	timer := time.NewTimer(reloadDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			timer.Reset(reloadDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("model watcher error", zap.Error(err))

		case <-timer.C:
			err := store.Reload()
			if err != nil {
				logger.Error("model reload failed, keeping previous model", zap.String("path", target), zap.Error(err))
			} else {
				logger.Info("model reloaded", zap.String("model", store.Info()))
			}
			if onReload != nil {
				onReload(err)
			}
		}
	}
}
