package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Tunables is the subset of config safe to apply to a running gateway.
type Tunables struct {
	MinConfidenceThreshold float64
	DesktopEnabled         bool
	SlackEnabled           bool
}

// Watch re-reads the config file whenever it changes and reports the new
// tunables on apply. Structural settings (ports, DSNs, tokens) still need a
// restart. Blocks until ctx is done; callers run it in a goroutine.
func Watch(ctx context.Context, path string, apply func(Tunables)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors replace files on save, which drops a
	// watch registered on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(path)

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, func() {
				cfg, err := Load(path)
				if err != nil {
					slog.Warn("config reload failed", "path", path, "error", err)
					return
				}
				slog.Info("config reloaded",
					"min_confidence", cfg.Pipeline.MinConfidenceThreshold,
					"desktop_delivery", cfg.Delivery.DesktopEnabled,
					"slack_delivery", cfg.Delivery.SlackEnabled)
				apply(Tunables{
					MinConfidenceThreshold: cfg.Pipeline.MinConfidenceThreshold,
					DesktopEnabled:         cfg.Delivery.DesktopEnabled,
					SlackEnabled:           cfg.Delivery.SlackEnabled,
				})
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}
