// Package domain defines the core data types shared across the flo
// pipeline, broadcaster, client session, and history store.
package domain

import (
	"fmt"
	"time"
)

// Resource is the unit of delivery: a URL-like identifier plus the current
// contents of the changed asset.
type Resource struct {
	URL      string `json:"resourceURL"`
	Contents string `json:"contents"`
}

// Validate reports whether the record satisfies the resolver post-condition.
func (r *Resource) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: no record", ErrInvalidResource)
	}
	if r.URL == "" {
		return fmt.Errorf("%w: expecting resourceURL", ErrInvalidResource)
	}
	return nil
}

// Delivery summarizes one broadcast for the history log.
type Delivery struct {
	ID          string
	ResourceURL string
	Bytes       int
	Clients     int
	DeliveredAt time.Time
}
