package i18n

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/canonical/docs-viewer/internal/debounce"
	"github.com/canonical/docs-viewer/internal/logging"
)

const watchedOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

// Watch calls onChange after locale files in dir change. Bursts of events
// (editors write a file several times) within delay collapse into one call.
// The watcher runs until ctx is cancelled.
func Watch(ctx context.Context, dir string, delay time.Duration, logger *slog.Logger, onChange func()) error {
	logger = logging.OrDiscard(logger)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create locale watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	d := debounce.New(delay, func(string) { onChange() })

	go func() {
		defer func() { _ = watcher.Close() }()
		defer d.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isLocaleEvent(event) {
					continue
				}
				logger.Debug("locale file changed", "path", event.Name, "op", event.Op.String())
				d.Trigger(filepath.Base(event.Name))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("locale watcher error", "error", err)
			}
		}
	}()
	return nil
}

func isLocaleEvent(event fsnotify.Event) bool {
	if event.Op&watchedOps == 0 {
		return false
	}
	return strings.HasSuffix(strings.ToLower(event.Name), localeExtension)
}
