package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watch watches the config file with Viper (WatchConfig + OnConfigChange) and calls
// onChange with every successfully reloaded config. Invalid edits are logged and skipped.
// Blocks until ctx is done; run in a goroutine. No reload fires once it returns.
func Watch(ctx context.Context, path string, onChange func(*Config)) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		slog.Warn("config watch initial read failed", "path", path, "error", err)
		return
	}

	reload := func() {
		cfg, err := Load(path)
		if err != nil {
			slog.Warn("config hot-reload load failed", "path", path, "error", err)
			return
		}
		slog.Info("config hot-reloaded", "path", path)
		onChange(cfg)
	}

	var (
		mu       sync.Mutex
		debounce *time.Timer
		stopped  bool
	)
	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		if filepath.Clean(e.Name) != filepath.Clean(path) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		if debounce != nil {
			debounce.Stop()
		}
		debounce = time.AfterFunc(200*time.Millisecond, reload)
	})
	v.WatchConfig()

	<-ctx.Done()
	mu.Lock()
	stopped = true
	if debounce != nil {
		debounce.Stop()
	}
	mu.Unlock()
}
