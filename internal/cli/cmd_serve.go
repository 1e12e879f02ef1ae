package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/koltyakov/flo/internal/config"
	ilog "github.com/koltyakov/flo/internal/log"
	"github.com/koltyakov/flo/internal/pipeline"
	"github.com/koltyakov/flo/internal/resolver"
	"github.com/koltyakov/flo/internal/server"
	"github.com/koltyakov/flo/internal/store/sqlite"
	"github.com/koltyakov/flo/internal/watcher"
)

func runServe(ctx context.Context, args []string) int {
	cfg, err := config.ParseServerFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "serve config error:", err)
		return 2
	}
	logger := ilog.NewWithOptions(cfg.LogLevel, ilog.Options{File: cfg.LogFile})

	var recorder pipeline.Recorder
	if cfg.HistoryDB != "" {
		store, err := sqlite.OpenWithOptions(cfg.HistoryDB, sqlite.OpenOptions{HistoryLimit: cfg.HistoryLimit})
		if err != nil {
			fmt.Fprintln(os.Stderr, "db error:", err)
			return 1
		}
		defer func() { _ = store.Close() }()
		recorder = store
	}

	srv := server.New(server.Options{
		Host:        cfg.Host,
		Port:        cfg.Port,
		PingTimeout: cfg.PingTimeout,
		Version:     Version,
		Pprof:       cfg.Pprof,
		Logger:      logger,
	})
	if err := srv.Start(); err != nil {
		_ = srv.Close()
		fmt.Fprintln(os.Stderr, "server error:", err)
		return 1
	}

	det, err := watcher.New(cfg.Dir, watcher.Options{
		Glob:     cfg.Glob,
		Debounce: cfg.Debounce,
		Logger:   ilog.Component(logger, "watcher"),
	})
	if err != nil {
		_ = srv.Close()
		fmt.Fprintln(os.Stderr, "watch error:", err)
		return 1
	}

	p := pipeline.New(cfg.Dir, det, resolver.New(cfg.Dir, cfg.ResolverCmd), srv, pipeline.Options{
		Recorder: recorder,
		Logger:   logger,
		OnReady: func() {
			logger.Info("watching for changes", "dir", cfg.Dir, "glob", cfg.Glob, "addr", srv.Addr())
		},
	})
	if err := p.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "flo error:", err)
		return 1
	}
	return 0
}
