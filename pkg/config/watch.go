package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 100 * time.Millisecond

// Watch reloads the file at path whenever it changes and hands every valid
// result to onChange. Invalid files are logged and skipped. The directory is
// watched rather than the file so that editors replacing the file by rename
// are followed. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, logger *zap.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	logger.Info("watching config", zap.String("path", path))

	debounce := time.NewTimer(reloadDebounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("config file changed",
				zap.String("path", event.Name),
				zap.String("op", event.Op.String()),
			)
			debounce.Reset(reloadDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher error", zap.Error(err))

		case <-debounce.C:
			cfg, err := Load(path)
			if err != nil {
				logger.Error("ignoring invalid config", zap.Error(err))
				continue
			}
			logger.Info("config reloaded",
				zap.String("provider", cfg.Provider.Provider),
				zap.String("model", cfg.Provider.Model),
			)
			onChange(cfg)
		}
	}
}
