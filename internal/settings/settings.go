// Package settings owns the persisted client configuration record: the
// broadcaster port and the ordered host-rule allow-list.
package settings

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/jsonc"

	"github.com/koltyakov/flo/internal/hostmatch"
)

// DefaultPort is the broadcaster port used when the record has none.
const DefaultPort = 8888

// Configuration is the client configuration record.
type Configuration struct {
	Port      int
	HostRules []hostmatch.Rule
}

// Default returns the configuration used when nothing valid is persisted.
func Default() Configuration {
	return Configuration{Port: DefaultPort, HostRules: []hostmatch.Rule{}}
}

// Clone returns a copy whose rule slice can be modified independently.
func (c Configuration) Clone() Configuration {
	c.HostRules = slices.Clone(c.HostRules)
	if c.HostRules == nil {
		c.HostRules = []hostmatch.Rule{}
	}
	return c
}

// WithRule returns a copy with r appended to the host rules.
func (c Configuration) WithRule(r hostmatch.Rule) Configuration {
	out := c.Clone()
	out.HostRules = append(out.HostRules, r)
	return out
}

// Equal reports whether two configurations serialize identically.
func (c Configuration) Equal(other Configuration) bool {
	return bytes.Equal(Encode(c), Encode(other))
}

type ruleRecord struct {
	Pattern string `json:"pattern"`
	Server  string `json:"server,omitempty"`
	Port    int    `json:"port,omitempty"`
}

type record struct {
	Port      int   `json:"port"`
	HostRules []any `json:"hostRules"`
}

// Encode serializes c as {"port": N, "hostRules": [...]}. Rules without a
// server or port override are written as bare strings.
func Encode(c Configuration) []byte {
	rec := record{Port: c.Port, HostRules: make([]any, 0, len(c.HostRules))}
	for _, r := range c.HostRules {
		if r.Server == "" && r.Port == 0 {
			rec.HostRules = append(rec.HostRules, r.String())
			continue
		}
		rec.HostRules = append(rec.HostRules, ruleRecord{Pattern: r.String(), Server: r.Server, Port: r.Port})
	}
	b, _ := json.Marshal(rec)
	return b
}

// Decode parses a persisted record. It never fails: malformed input yields
// [Default], and individually malformed fields fall back to their defaults.
// Comments and trailing commas are tolerated.
func Decode(raw []byte) Configuration {
	cfg := Default()
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return cfg
	}
	raw = jsonc.ToJSON(raw)
	if !gjson.ValidBytes(raw) {
		return cfg
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return cfg
	}

	if port, ok := parsePort(root.Get("port")); ok {
		cfg.Port = port
	}

	rules := root.Get("hostRules")
	if !rules.Exists() {
		// Older records used "sites" and "hostnames".
		rules = root.Get("sites")
		if !rules.Exists() {
			rules = root.Get("hostnames")
		}
	}
	if rules.IsArray() {
		for _, item := range rules.Array() {
			if r, ok := parseRule(item); ok {
				cfg.HostRules = append(cfg.HostRules, r)
			}
		}
	}
	return cfg
}

func parseRule(v gjson.Result) (hostmatch.Rule, bool) {
	switch {
	case v.Type == gjson.String:
		s := strings.TrimSpace(v.String())
		if s == "" {
			return hostmatch.Rule{}, false
		}
		return hostmatch.Parse(s), true
	case v.IsObject():
		pattern := strings.TrimSpace(v.Get("pattern").String())
		if pattern == "" {
			return hostmatch.Rule{}, false
		}
		port, _ := parsePort(v.Get("port"))
		return hostmatch.Parse(pattern).WithTarget(v.Get("server").String(), port), true
	}
	return hostmatch.Rule{}, false
}

func parsePort(v gjson.Result) (int, bool) {
	var port int
	switch v.Type {
	case gjson.Number:
		port = int(v.Int())
		if float64(port) != v.Float() {
			return 0, false
		}
	case gjson.String:
		n, err := strconv.Atoi(strings.TrimSpace(v.String()))
		if err != nil {
			return 0, false
		}
		port = n
	default:
		return 0, false
	}
	if port <= 0 || port > 65535 {
		return 0, false
	}
	return port, true
}
