// Package apperr defines the sentinel errors shared across wikigraph packages.
package apperr

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrFetch        = errors.New("fetch failed")
	ErrInvalidTitle = errors.New("invalid title")
	ErrNoHistory    = errors.New("no history entry")
	// ErrDanglingEdge marks an edge whose endpoint has no node. It signals a
	// programming defect, not a user-facing condition.
	ErrDanglingEdge = errors.New("dangling edge")
)
