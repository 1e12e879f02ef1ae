package resolver

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/koltyakov/flo/internal/domain"
)

// Command runs a shell build step for every change. The relative path is
// passed in FLO_PATH and the step runs in Root.
//
// A JSON object on stdout with a resourceURL key is taken as the record.
// Any other output is used verbatim as the contents of rel.
type Command struct {
	Root string
	Cmd  string
}

func (c Command) Resolve(ctx context.Context, rel string) (*domain.Resource, error) {
	rel = filepath.ToSlash(rel)
	cmd := exec.CommandContext(ctx, "sh", "-c", c.Cmd)
	cmd.Dir = c.Root
	cmd.Env = append(os.Environ(), "FLO_PATH="+rel)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = &commandError{err: err, stderr: msg}
		}
		return nil, &domain.ResourceError{Path: rel, Op: "resolve", Err: err}
	}
	return parseOutput(rel, stdout.Bytes())
}

func parseOutput(rel string, out []byte) (*domain.Resource, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) > 0 && trimmed[0] == '{' && gjson.ValidBytes(trimmed) {
		doc := gjson.ParseBytes(trimmed)
		if url := doc.Get("resourceURL"); url.Exists() {
			contents := doc.Get("contents")
			if !contents.Exists() {
				return nil, errMissing("contents")
			}
			return &domain.Resource{URL: url.String(), Contents: contents.String()}, nil
		}
	}
	return &domain.Resource{URL: rel, Contents: string(out)}, nil
}

type commandError struct {
	err    error
	stderr string
}

func (e *commandError) Error() string { return e.err.Error() + ": " + e.stderr }
func (e *commandError) Unwrap() error { return e.err }
