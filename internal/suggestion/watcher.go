package suggestion

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce collapses the burst of events an editor save produces
const DefaultReloadDebounce = 250 * time.Millisecond

// TemplateWatcher reloads a template file into a producer when it changes.
// The parent directory is watched so saves that replace the file by rename
// are seen too.
type TemplateWatcher struct {
	path     string
	producer *TemplateProducer
	debounce time.Duration
	logger   *slog.Logger

	// reloaded is signalled after every reload attempt; tests use it
	reloaded chan error
}

// NewTemplateWatcher creates a watcher for path
func NewTemplateWatcher(path string, producer *TemplateProducer, logger *slog.Logger) *TemplateWatcher {
	return &TemplateWatcher{
		path:     filepath.Clean(path),
		producer: producer,
		debounce: DefaultReloadDebounce,
		logger:   logger,
	}
}

// Run watches until ctx is done. A file that fails to load leaves the
// current catalogue in place.
func (w *TemplateWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create template watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.logger.Info("Watching suggestion templates", "path", w.path)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("Template file changed", "op", event.Op.String())
			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Template watcher error", "error", err)

		case <-timer.C:
			w.notify(w.reload())
		}
	}
}

func (w *TemplateWatcher) reload() error {
	templates, err := LoadTemplates(w.path)
	if err != nil {
		w.logger.Warn("Template reload failed, keeping current templates", "path", w.path, "error", err)
		return err
	}
	w.producer.SetTemplates(templates)
	w.logger.Info("Suggestion templates reloaded", "path", w.path, "count", len(templates))
	return nil
}

func (w *TemplateWatcher) notify(err error) {
	if w.reloaded == nil {
		return
	}
	select {
	case w.reloaded <- err:
	default:
	}
}
