package cli

import (
	"fmt"

	"github.com/koltyakov/flo/internal/versionutil"
)

func printUsage() {
	fmt.Println(`flo - live-update pipeline for CSS and JS assets

Watches a directory, resolves every changed file into a resource and pushes
it to connected clients, which apply it to the pages they are enabled for.

Usage:
  flo serve [dir]                       Watch dir (default .) and broadcast changes
                                        --glob, --debounce, --resolver-cmd, --history-db
  flo client --devtools URL             Attach to a Chrome tab and apply updates
  flo client --page-host HOST           Run a session for a fixed hostname
  flo config show                       Print the client configuration
  flo config port N                     Set the broadcaster port
  flo config add RULE                   Allow a host (literal or /pattern/flags)
  flo config remove RULE                Remove a host rule
  flo config reset                      Restore defaults
  flo history [--limit N]               List recent deliveries
  flo version                           Print version
  flo help                              Show this help

Environment Variables:
  FLO_HOST                Broadcaster listen host (default: localhost)
  FLO_PORT                Broadcaster listen port (default: 8888)
  FLO_GLOB                Watched file glob (default: **/*.{js,css})
  FLO_DEBOUNCE            Per-file debounce window (default: 50ms)
  FLO_RESOLVER_CMD        Build step run for each change; FLO_PATH is set
  FLO_HISTORY_DB          SQLite path for the delivery history
  FLO_PPROF               Set to 1 to serve /debug/pprof/ on the broadcaster
  FLO_DEVTOOLS            Chrome remote debugging URL
  FLO_PAGE_HOST           Static page hostname for the client
  FLO_CONFIG              Client configuration file (default: ~/.flo/config.json)
  FLO_CONFIG_DB           Keep the client configuration in SQLite instead
  FLO_LOG_LEVEL           Log level: debug|info|warn|error (default: info)
  FLO_LOG_FILE            Also write logs to this rotating file`)
}

// Version is set at build time via -ldflags.
var Version = "dev"

func init() {
	Version = versionutil.Resolve(Version, versionutil.GitDescribe)
}

func printVersion() {
	fmt.Println("flo", Version)
}
