package middleware

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/axle/pkg/observability"
)

// WatchRules watches the rules file at path and calls apply with the
// re-parsed rule set after each change. It watches the containing
// directory so atomic saves (write to temp file, rename over) are seen.
// An update that fails to parse is logged and skipped; the previous
// rules stay active. The watch stops when ctx is canceled.
func WatchRules(ctx context.Context, path string, base Limit, apply func(Rules), logger *observability.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create rules watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				rules, err := LoadRules(path, base)
				if err != nil {
					logger.WithError(err).WithField("path", path).Warn("Ignoring rate limit rules update")
					continue
				}
				apply(rules)
				logger.WithField("path", path).Info("Reloaded rate limit rules")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("Rate limit rules watcher error")
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}
