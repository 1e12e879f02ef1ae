// Package hostmatch decides whether live updates are enabled for a hostname
// based on an ordered list of literal or pattern host rules.
package hostmatch

import (
	"regexp"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// Kind tells literal rules from pattern rules.
type Kind int

const (
	KindLiteral Kind = iota
	KindPattern
)

func (k Kind) String() string {
	if k == KindPattern {
		return "pattern"
	}
	return "literal"
}

// patternSyntax recognizes the serialized "/body/flags" form.
var patternSyntax = regexp.MustCompile(`^/(.+)/([gim]{0,3})$`)

// matchTimeout bounds a single pattern evaluation; rules are operator input.
const matchTimeout = 100 * time.Millisecond

// Rule is one entry of the host allow-list: either a literal hostname or a
// compiled pattern. Patterns are compiled once, when the rule is parsed.
//
// Server and Port optionally redirect the session for hosts matched by this
// rule; zero values mean "the page host" and "the configured port".
type Rule struct {
	kind Kind
	raw  string
	re   *regexp2.Regexp

	Server string
	Port   int
}

// Literal returns a rule matching exactly host.
func Literal(host string) Rule {
	return Rule{kind: KindLiteral, raw: host}
}

// Parse turns a serialized rule into its matchable form. Strings shaped like
// "/body/flags" become patterns; everything else, including patterns that
// fail to compile, is kept as a literal of the raw text.
func Parse(s string) Rule {
	m := patternSyntax.FindStringSubmatch(s)
	if m == nil {
		return Literal(s)
	}
	opts, ok := patternOptions(m[2])
	if !ok {
		return Literal(s)
	}
	re, err := regexp2.Compile(m[1], opts)
	if err != nil {
		return Literal(s)
	}
	re.MatchTimeout = matchTimeout
	return Rule{kind: KindPattern, raw: s, re: re}
}

func patternOptions(flags string) (regexp2.RegexOptions, bool) {
	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	seen := map[rune]bool{}
	for _, f := range flags {
		if seen[f] {
			return 0, false
		}
		seen[f] = true
		switch f {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 'g':
			// global only affects iteration state; a single test ignores it
		}
	}
	return opts, true
}

// Kind reports whether the rule is a literal or a pattern.
func (r Rule) Kind() Kind { return r.kind }

// String returns the serialized form the rule was parsed from.
func (r Rule) String() string { return r.raw }

// WithTarget returns a copy of r that redirects matched sessions.
func (r Rule) WithTarget(server string, port int) Rule {
	r.Server = strings.TrimSpace(server)
	r.Port = port
	return r
}

// Matches reports whether host satisfies this rule.
func (r Rule) Matches(host string) bool {
	if r.raw == "" {
		return false
	}
	if r.kind == KindLiteral || r.re == nil {
		return r.raw == host
	}
	ok, err := r.re.MatchString(host)
	return err == nil && ok
}

// Match returns the first rule accepting host.
func Match(rules []Rule, host string) (Rule, bool) {
	for _, r := range rules {
		if r.Matches(host) {
			return r, true
		}
	}
	return Rule{}, false
}

// Matches reports whether any rule accepts host.
func Matches(rules []Rule, host string) bool {
	_, ok := Match(rules, host)
	return ok
}
