package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config file at path whenever it changes on disk
// and invokes onChange with the result. A failed reload is reported
// through onChange rather than silently kept, and does not stop
// watching — a transient editor save (many editors write via a temp
// file and rename) can produce an unparseable intermediate state.
// Watch blocks until the watcher is closed or stop is closed.
func Watch(path string, stop <-chan struct{}, onChange func(*Config, error), logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(path); err != nil {
		return err
	}

	for {
		select {
		case <-stop:
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			logger.Debug("config file changed, reloading", "path", path, "op", event.Op)
			cfg, err := Load(path)
			onChange(cfg, err)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", err)
		}
	}
}
