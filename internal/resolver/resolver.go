// Package resolver turns a changed file path into the resource record that
// the broadcaster fans out to connected clients.
package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/koltyakov/flo/internal/domain"
)

// Resolver maps a path relative to the watched root to a resource record.
// It is called once per change event.
type Resolver interface {
	Resolve(ctx context.Context, rel string) (*domain.Resource, error)
}

// Func adapts a plain function to a Resolver.
type Func func(ctx context.Context, rel string) (*domain.Resource, error)

func (f Func) Resolve(ctx context.Context, rel string) (*domain.Resource, error) {
	return f(ctx, rel)
}

// File reads the changed file from disk. The resource URL is the relative
// path in slash form; read errors propagate unchanged.
type File struct {
	Root string
}

func (f File) Resolve(ctx context.Context, rel string) (*domain.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(f.Root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, &domain.ResourceError{Path: rel, Op: "read", Err: err}
	}
	return &domain.Resource{URL: filepath.ToSlash(rel), Contents: string(data)}, nil
}

// New returns the Command resolver when cmd is set and the File resolver
// otherwise.
func New(root, cmd string) Resolver {
	if cmd != "" {
		return Command{Root: root, Cmd: cmd}
	}
	return File{Root: root}
}

func errMissing(field string) error {
	return fmt.Errorf("%w: expecting %s", domain.ErrInvalidResource, field)
}
