package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
)

// LoadConfigFile reads a YAML or JSON configuration file on top of the
// defaults. Durations are written as Go duration strings ("30s").
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := defaultConfig()
	if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.DisallowUnknownField()); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	sanitized := sanitizeConfig(cfg)
	return &sanitized, nil
}

// WatchConfigFile reloads path whenever it changes and passes the result to
// apply. It blocks until ctx is done. Files that fail to parse are logged
// and skipped, leaving the last good configuration in place.
func WatchConfigFile(ctx context.Context, path string, apply func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	target := filepath.Clean(path)
	// Editors often replace files by rename, so watch the directory.
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	lg := zap.L().Named("config").With(zap.String("path", target))
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			cfg, err := LoadConfigFile(target)
			if err != nil {
				lg.Warn("Ignoring invalid configuration", zap.Error(err))
				continue
			}
			lg.Info("Configuration reloaded")
			apply(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			lg.Warn("Config watcher error", zap.Error(err))
		}
	}
}
