package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"

	"github.com/koltyakov/flo/internal/client"
	"github.com/koltyakov/flo/internal/settings"
)

const configReloadDebounce = 200 * time.Millisecond

// watchConfigFile reloads the configuration whenever path is written. The
// parent directory is watched so editors that replace the file are seen.
func watchConfigFile(ctx context.Context, path string, store settings.Store, ctrl *client.Controller, logger *slog.Logger) (func(), error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}

	name := filepath.Clean(path)
	debounced := debounce.New(configReloadDebounce)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				debounced(func() { reloadConfiguration(ctx, store, ctrl, logger) })
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("config watch", "err", err)
			}
		}
	}()

	return func() {
		_ = w.Close()
		<-done
	}, nil
}
