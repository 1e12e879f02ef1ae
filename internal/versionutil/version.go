// Package versionutil resolves the version string printed by the CLI and
// sent to clients in the broadcaster hello.
package versionutil

import (
	"os/exec"
	"strings"
)

// EnsureVPrefix returns s with a leading "v" if it doesn't already have one.
func EnsureVPrefix(s string) string {
	if s != "" && !strings.HasPrefix(s, "v") {
		return "v" + s
	}
	return s
}

// Resolve returns the display form of a build version. Development builds
// ("dev" or empty) use describe, typically `git describe`, when it succeeds.
func Resolve(build string, describe func() (string, error)) string {
	build = strings.TrimSpace(build)
	if build != "" && build != "dev" {
		return EnsureVPrefix(build)
	}
	if describe != nil {
		if desc, err := describe(); err == nil {
			if v := strings.TrimSpace(desc); v != "" {
				return EnsureVPrefix(v) + "-dev"
			}
		}
	}
	return "dev"
}

// GitDescribe runs `git describe --tags --always` in the working directory.
func GitDescribe() (string, error) {
	out, err := exec.Command("git", "describe", "--tags", "--always").Output()
	return string(out), err
}
