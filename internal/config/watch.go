package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/roach88/thebeat/internal/volume"
)

// WatchOffsets re-reads the config file at path whenever it is written
// and hands the new offset table to apply. It blocks until ctx is done.
//
// The parent directory is watched rather than the file, so editors that
// save by renaming a temp file over the original are picked up. A file
// that fails to load is logged and the previous offsets stay in effect.
func WatchOffsets(ctx context.Context, path string, apply func(volume.Offsets), logger zerolog.Logger) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	logger.Debug().Str("path", abs).Msg("watching config for offset changes")

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
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			cfg, err := Load(abs)
			if err != nil {
				logger.Warn().Err(err).Str("path", abs).Msg("config reload failed, keeping previous offsets")
				continue
			}
			apply(cfg.Audio.Offsets)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("config watcher error")
		}
	}
}
