package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestParseServerFlagsDefaults(t *testing.T) {
	t.Setenv("FLO_PORT", "")
	t.Setenv("FLO_GLOB", "")
	dir := t.TempDir()

	cfg, err := ParseServerFlags([]string{dir})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != DefaultPort || cfg.Host != DefaultHost || cfg.Glob != DefaultGlob {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Debounce != defaultDebounce {
		t.Fatalf("expected debounce %s, got %s", defaultDebounce, cfg.Debounce)
	}
	if !filepath.IsAbs(cfg.Dir) {
		t.Fatalf("expected absolute dir, got %q", cfg.Dir)
	}
}

func TestParseServerFlagsOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FLO_PORT", "9000")

	cfg, err := ParseServerFlags([]string{"--glob", "**/*.css", "--debounce", "200ms", "-v", dir})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9000 {
		t.Fatalf("expected env port 9000, got %d", cfg.Port)
	}
	if cfg.Glob != "**/*.css" || cfg.Debounce != 200*time.Millisecond {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected --verbose to select debug, got %q", cfg.LogLevel)
	}
}

func TestParseServerFlagsValidation(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
	}{
		{name: "port out of range", args: []string{"--port", "70000", dir}},
		{name: "missing dir", args: []string{filepath.Join(dir, "nope")}},
		{name: "two dirs", args: []string{dir, dir}},
		{name: "history limit", args: []string{"--history-limit", "0", dir}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseServerFlags(tt.args); err == nil {
				t.Fatalf("expected parse error for args: %v", tt.args)
			}
		})
	}
}

func TestParseClientFlagsRequiresHostSource(t *testing.T) {
	t.Setenv("FLO_DEVTOOLS", "")
	t.Setenv("FLO_PAGE_HOST", "")

	if _, err := ParseClientFlags(nil); err == nil {
		t.Fatal("expected error without --devtools or --page-host")
	}
	cfg, err := ParseClientFlags([]string{"--page-host", "localhost", "--retry-limit", "3"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PageHost != "localhost" || cfg.RetryLimit != 3 {
		t.Fatalf("unexpected client config: %+v", cfg)
	}
	if cfg.PingInterval != defaultClientPingInterval {
		t.Fatalf("expected default ping interval, got %s", cfg.PingInterval)
	}
}

func TestParseServerFlagsPprof(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FLO_PPROF", "")

	cfg, err := ParseServerFlags([]string{dir})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pprof {
		t.Fatalf("expected pprof off by default")
	}

	t.Setenv("FLO_PPROF", "1")
	cfg, err = ParseServerFlags([]string{dir})
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Pprof {
		t.Fatalf("expected FLO_PPROF=1 to enable pprof")
	}
}
