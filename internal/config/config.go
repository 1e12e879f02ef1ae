package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// ServerConfig drives `flo serve`: the watched directory, the broadcaster
// listen address, and the optional resolver build step and history log.
type ServerConfig struct {
	Dir          string
	Host         string
	Port         int
	Glob         string
	Debounce     time.Duration
	ResolverCmd  string
	HistoryDB    string
	HistoryLimit int
	PingTimeout  time.Duration
	Pprof        bool
	LogLevel     string
	LogFile      string
}

// ClientConfig drives `flo client`: where the current page hostname comes
// from and where the host-rule configuration is persisted.
type ClientConfig struct {
	DevtoolsURL  string
	Target       string
	PageHost     string
	ConfigPath   string
	ConfigDB     string
	PingInterval time.Duration
	RetryLimit   int
	Plain        bool
	LogLevel     string
	LogFile      string
}

const (
	DefaultHost = "localhost"
	DefaultPort = 8888
	DefaultGlob = "**/*.{js,css}"
)

const defaultDebounce = 50 * time.Millisecond
const defaultHistoryLimit = 500
const defaultServerPingTimeout = 90 * time.Second
const defaultClientPingInterval = 30 * time.Second
const defaultClientRetryLimit = 10

func ParseServerFlags(args []string) (ServerConfig, error) {
	cfg := ServerConfig{
		Dir:          envOrDefault("FLO_DIR", "."),
		Host:         envOrDefault("FLO_HOST", DefaultHost),
		Port:         envIntOrDefault("FLO_PORT", DefaultPort),
		Glob:         envOrDefault("FLO_GLOB", DefaultGlob),
		Debounce:     envDurationOrDefault("FLO_DEBOUNCE", defaultDebounce),
		ResolverCmd:  envOrDefault("FLO_RESOLVER_CMD", ""),
		HistoryDB:    envOrDefault("FLO_HISTORY_DB", ""),
		HistoryLimit: envIntOrDefault("FLO_HISTORY_LIMIT", defaultHistoryLimit),
		PingTimeout:  defaultServerPingTimeout,
		LogLevel:     envOrDefault("FLO_LOG_LEVEL", "info"),
		LogFile:      envOrDefault("FLO_LOG_FILE", ""),
	}

	var verbose bool
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Broadcaster listen host")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "Broadcaster listen port")
	fs.StringVarP(&cfg.Glob, "glob", "g", cfg.Glob, "Glob of watched files, relative to the directory")
	fs.DurationVar(&cfg.Debounce, "debounce", cfg.Debounce, "Per-file debounce window for change events")
	fs.StringVar(&cfg.ResolverCmd, "resolver-cmd", cfg.ResolverCmd, "Shell command that builds a changed file (FLO_PATH is set)")
	fs.StringVar(&cfg.HistoryDB, "history-db", cfg.HistoryDB, "SQLite path for the delivery history (disabled when empty)")
	fs.IntVar(&cfg.HistoryLimit, "history-limit", cfg.HistoryLimit, "Number of deliveries kept in the history")
	fs.DurationVar(&cfg.PingTimeout, "ping-timeout", cfg.PingTimeout, "Drop clients silent for longer than this")
	fs.BoolVar(&cfg.Pprof, "pprof", os.Getenv("FLO_PPROF") == "1", "Serve runtime profiles under /debug/pprof/")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Also write logs to this rotating file")
	fs.BoolVarP(&verbose, "verbose", "v", false, "Shorthand for --log-level=debug")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if rest := fs.Args(); len(rest) > 0 {
		if len(rest) > 1 {
			return cfg, errors.New("expected a single directory argument")
		}
		cfg.Dir = rest[0]
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	dir, err := filepath.Abs(strings.TrimSpace(cfg.Dir))
	if err != nil {
		return cfg, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return cfg, err
	}
	if !info.IsDir() {
		return cfg, errors.New("watched path must be a directory")
	}
	cfg.Dir = dir
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.Glob = strings.TrimSpace(cfg.Glob)
	if cfg.Glob == "" {
		cfg.Glob = DefaultGlob
	}
	if err := validatePort(cfg.Port); err != nil {
		return cfg, err
	}
	if cfg.Debounce < 0 {
		return cfg, errors.New("debounce must be >= 0")
	}
	if cfg.HistoryLimit <= 0 {
		return cfg, errors.New("history limit must be > 0")
	}
	if cfg.PingTimeout <= 0 {
		return cfg, errors.New("ping timeout must be > 0")
	}
	return cfg, nil
}

func ParseClientFlags(args []string) (ClientConfig, error) {
	cfg := ClientConfig{
		DevtoolsURL:  envOrDefault("FLO_DEVTOOLS", ""),
		Target:       envOrDefault("FLO_TARGET", ""),
		PageHost:     envOrDefault("FLO_PAGE_HOST", ""),
		ConfigPath:   envOrDefault("FLO_CONFIG", DefaultConfigPath()),
		ConfigDB:     envOrDefault("FLO_CONFIG_DB", ""),
		PingInterval: defaultClientPingInterval,
		RetryLimit:   envIntOrDefault("FLO_RETRY_LIMIT", defaultClientRetryLimit),
		LogLevel:     envOrDefault("FLO_LOG_LEVEL", "info"),
		LogFile:      envOrDefault("FLO_LOG_FILE", ""),
	}

	fs := pflag.NewFlagSet("client", pflag.ContinueOnError)
	fs.StringVar(&cfg.DevtoolsURL, "devtools", cfg.DevtoolsURL, "Chrome remote debugging URL (e.g. http://127.0.0.1:9222)")
	fs.StringVar(&cfg.Target, "target", cfg.Target, "Pick the first page whose URL contains this text")
	fs.StringVar(&cfg.PageHost, "page-host", cfg.PageHost, "Static page hostname when no devtools URL is given")
	fs.StringVarP(&cfg.ConfigPath, "config", "c", cfg.ConfigPath, "Configuration file path")
	fs.StringVar(&cfg.ConfigDB, "config-db", cfg.ConfigDB, "Keep configuration in this SQLite database instead of a file")
	fs.DurationVar(&cfg.PingInterval, "ping-interval", cfg.PingInterval, "Keepalive ping interval")
	fs.IntVar(&cfg.RetryLimit, "retry-limit", cfg.RetryLimit, "Consecutive failed connects before giving up")
	fs.BoolVar(&cfg.Plain, "plain", false, "Print status lines instead of the interactive panel")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Also write logs to this rotating file")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.DevtoolsURL = strings.TrimSpace(cfg.DevtoolsURL)
	cfg.PageHost = strings.TrimSpace(cfg.PageHost)
	if cfg.DevtoolsURL == "" && cfg.PageHost == "" {
		return cfg, errors.New("missing --devtools or --page-host")
	}
	if cfg.RetryLimit <= 0 {
		return cfg, errors.New("retry limit must be > 0")
	}
	if cfg.PingInterval <= 0 {
		return cfg, errors.New("ping interval must be > 0")
	}
	return cfg, nil
}

// DefaultConfigPath returns ~/.flo/config.json, falling back to the temp dir
// when the home directory cannot be resolved.
func DefaultConfigPath() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, ".flo", "config.json")
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDurationOrDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
