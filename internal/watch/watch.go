// Package watch implements the config-file watch loop: reload and
// re-fetch on Modify (a write) or Create, clear the cache on Remove, log
// and ignore anything else.
package watch

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Cache is the coordinator-facing capability the watch loop drives: run
// one fetch pass, or clear the store outright.
type Cache interface {
	Fetch(ctx context.Context) error
	Clear() error
}

// Loader reloads the config file at path and rebinds the coordinator's
// entry set to it. Handed in rather than owned by watch, since reading
// and parsing the config format is internal/config's concern.
type Loader func(path string) error

// Loop watches configPath for filesystem events until ctx is cancelled,
// the watcher's event or error channel closes, or the handler panics.
// Cancelling ctx makes Loop return ctx.Err() without waiting for another
// event; a handler already running is not interrupted.
func Loop(ctx context.Context, configPath string, cache Cache, load Loader, logger *logrus.Logger) error {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(configPath); err != nil {
		return err
	}

	logger.WithField("path", configPath).Info("watching config file")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			handleEvent(ctx, event, configPath, cache, load, logger)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("watch error, continuing")
		}
	}
}

func handleEvent(ctx context.Context, event fsnotify.Event, configPath string, cache Cache, load Loader, logger *logrus.Logger) {
	switch {
	case event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create:
		logger.WithField("path", configPath).Info("config modified, reloading")
		if err := load(configPath); err != nil {
			panic(err)
		}
		if err := cache.Fetch(ctx); err != nil {
			panic(err)
		}
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		logger.WithField("path", configPath).Info("config removed, clearing cache")
		if err := cache.Clear(); err != nil {
			panic(err)
		}
	default:
		logger.WithField("op", event.Op.String()).Debug("ignoring event")
	}
}
