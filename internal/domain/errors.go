package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for well-known failure conditions that cross package
// boundaries.  Callers should use [errors.Is] to match these.
var (
	// ErrInvalidResource indicates a resolver produced a record without a
	// resource URL (or no record at all). It is a contract violation by the
	// resolver and is fatal to the pipeline.
	ErrInvalidResource = errors.New("invalid resource")

	// ErrServerClosed is returned by broadcast attempts made after the
	// transport server was closed.
	ErrServerClosed = errors.New("server closed")

	// ErrSessionDestroyed is reported when an operation targets a session
	// that has already been torn down.
	ErrSessionDestroyed = errors.New("session destroyed")
)

// ResourceError wraps an underlying error with the path being resolved.
type ResourceError struct {
	Path string
	Op   string
	Err  error
}

func (e *ResourceError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}
