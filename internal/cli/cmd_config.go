package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/koltyakov/flo/internal/config"
	"github.com/koltyakov/flo/internal/hostmatch"
	"github.com/koltyakov/flo/internal/settings"
)

const configUsage = "usage: flo config <show|port N|add RULE|remove RULE|reset> [--config PATH | --config-db PATH]"

func runConfig(ctx context.Context, args []string) int {
	return configCommand(ctx, args, os.Stdout, os.Stderr)
}

func configCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg := config.ClientConfig{
		ConfigPath: envOr("FLO_CONFIG", config.DefaultConfigPath()),
		ConfigDB:   envOr("FLO_CONFIG_DB", ""),
	}
	fs.StringVarP(&cfg.ConfigPath, "config", "c", cfg.ConfigPath, "Configuration file path")
	fs.StringVar(&cfg.ConfigDB, "config-db", cfg.ConfigDB, "Configuration SQLite database")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprintln(stderr, configUsage)
		return 2
	}

	store, closeStore, err := openSettingsStore(cfg)
	if err != nil {
		fmt.Fprintln(stderr, "config store error:", err)
		return 1
	}
	defer closeStore()

	current, err := settings.Load(ctx, store)
	if err != nil {
		fmt.Fprintln(stderr, "load configuration:", err)
		return 1
	}

	next, code := applyConfigCommand(current, rest, stderr)
	if code != 0 {
		return code
	}
	if next == nil {
		return printConfiguration(stdout, current)
	}
	if err := settings.Save(ctx, store, *next); err != nil {
		fmt.Fprintln(stderr, "save configuration:", err)
		return 1
	}
	return printConfiguration(stdout, *next)
}

// applyConfigCommand returns the edited configuration, or nil for a
// read-only command.
func applyConfigCommand(cur settings.Configuration, args []string, stderr io.Writer) (*settings.Configuration, int) {
	needArg := func() (string, bool) {
		if len(args) != 2 || args[1] == "" {
			fmt.Fprintln(stderr, configUsage)
			return "", false
		}
		return args[1], true
	}

	switch args[0] {
	case "show":
		return nil, 0
	case "port":
		v, ok := needArg()
		if !ok {
			return nil, 2
		}
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			fmt.Fprintln(stderr, "invalid port:", v)
			return nil, 2
		}
		next := cur.Clone()
		next.Port = port
		return &next, 0
	case "add":
		v, ok := needArg()
		if !ok {
			return nil, 2
		}
		next := cur.Clone()
		if !slices.ContainsFunc(next.HostRules, func(r hostmatch.Rule) bool { return r.String() == v }) {
			next.HostRules = append(next.HostRules, hostmatch.Parse(v))
		}
		return &next, 0
	case "remove":
		v, ok := needArg()
		if !ok {
			return nil, 2
		}
		next := cur.Clone()
		next.HostRules = slices.DeleteFunc(next.HostRules, func(r hostmatch.Rule) bool { return r.String() == v })
		return &next, 0
	case "reset":
		next := settings.Default()
		return &next, 0
	default:
		fmt.Fprintln(stderr, "unknown config command:", args[0])
		return nil, 2
	}
}

func printConfiguration(w io.Writer, cfg settings.Configuration) int {
	var out bytes.Buffer
	if err := json.Indent(&out, settings.Encode(cfg), "", "  "); err != nil {
		fmt.Fprintln(os.Stderr, "encode configuration:", err)
		return 1
	}
	out.WriteByte('\n')
	_, _ = w.Write(out.Bytes())
	return 0
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
