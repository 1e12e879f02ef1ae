package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/koltyakov/flo/internal/client"
	"github.com/koltyakov/flo/internal/config"
	"github.com/koltyakov/flo/internal/devtools"
	ilog "github.com/koltyakov/flo/internal/log"
	"github.com/koltyakov/flo/internal/settings"
	"github.com/koltyakov/flo/internal/store/sqlite"
)

func runClient(ctx context.Context, args []string) int {
	cfg, err := config.ParseClientFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "client config error:", err)
		return 2
	}

	interactive := !cfg.Plain && term.IsTerminal(int(os.Stdout.Fd()))
	logger := ilog.NewWithOptions(cfg.LogLevel, ilog.Options{File: cfg.LogFile, Quiet: interactive})

	store, closeStore, err := openSettingsStore(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config store error:", err)
		return 1
	}
	defer closeStore()

	var (
		hosts   client.HostResolver = client.StaticHost(cfg.PageHost)
		applier client.Applier
	)
	if cfg.DevtoolsURL != "" {
		page, err := devtools.Attach(ctx, cfg.DevtoolsURL, cfg.Target, logger)
		if err != nil {
			fmt.Fprintln(os.Stderr, "devtools error:", err)
			return 1
		}
		defer func() { _ = page.Close() }()
		logger.Info("attached to page", "url", page.URL())
		hosts, applier = page, page
	}

	ctrl := client.NewController(client.ControllerOptions{
		Store:        store,
		Hosts:        hosts,
		Applier:      applier,
		PingInterval: cfg.PingInterval,
		RetryLimit:   cfg.RetryLimit,
		Logger:       logger,
	})
	ctrl.Start(ctx)
	defer ctrl.Stop()

	display := client.NewDisplay(interactive)
	display.ShowBanner(Version)
	defer display.Cleanup()
	ctrl.AttachPanel(display)

	if cfg.ConfigDB == "" {
		stopWatch, err := watchConfigFile(ctx, cfg.ConfigPath, store, ctrl, logger)
		if err != nil {
			logger.Warn("config file watch disabled", "path", cfg.ConfigPath, "err", err)
		} else {
			defer stopWatch()
		}
	}

	var keys <-chan clientHotkey
	if interactive {
		ch, restore, err := startClientHotkeyListener()
		if err != nil {
			logger.Warn("hotkeys disabled", "err", err)
		} else {
			defer restore()
			keys = ch
		}
	}

	for {
		select {
		case <-ctx.Done():
			return 0
		case k := <-keys:
			switch k {
			case hotkeyQuit:
				return 0
			case hotkeyRetry:
				ctrl.Retry(ctx)
			case hotkeyEnable:
				if err := ctrl.EnableForHost(ctx); err != nil {
					logger.Warn("enable for host", "err", err)
				}
			}
		}
	}
}

// openSettingsStore returns the configuration store selected by the flags
// and a function releasing it.
func openSettingsStore(cfg config.ClientConfig) (settings.Store, func(), error) {
	if cfg.ConfigDB == "" {
		return settings.FileStore{Path: cfg.ConfigPath}, func() {}, nil
	}
	db, err := sqlite.Open(cfg.ConfigDB)
	if err != nil {
		return nil, func() {}, err
	}
	return db.SettingStore(sqlite.ConfigKey), func() { _ = db.Close() }, nil
}

// reloadConfiguration pushes the stored configuration to ctrl unless it is
// what the controller already holds (its own save echoing back).
func reloadConfiguration(ctx context.Context, store settings.Store, ctrl *client.Controller, logger *slog.Logger) {
	next, err := settings.Load(ctx, store)
	if err != nil {
		logger.Warn("reload configuration", "err", err)
		return
	}
	if next.Equal(ctrl.Configuration()) {
		return
	}
	logger.Info("configuration changed on disk", "port", next.Port, "rules", len(next.HostRules))
	if err := ctrl.ConfigurationChanged(ctx, next); err != nil {
		logger.Warn("apply configuration", "err", err)
	}
}
