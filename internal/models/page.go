// Package models defines the value types passed between wikigraph packages.
package models

// PageRef addresses an article and, optionally, a section anchor inside it.
type PageRef struct {
	Title   string `json:"title"`
	Section string `json:"section,omitempty"`
}

// LoadState is the outcome of a single navigation request.
type LoadState string

const (
	StateCacheHit      LoadState = "cache_hit"
	StateFetchInFlight LoadState = "fetch_in_flight"
	StateFetchFailed   LoadState = "fetch_failed"
	StateResolved      LoadState = "resolved"
)

// UnknownPageID is the sentinel for articles whose remote id is not known.
const UnknownPageID int64 = -1
