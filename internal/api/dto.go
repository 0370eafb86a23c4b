package api

import (
	"time"

	"github.com/Tasour/wikipedia-graph/internal/index"
	"github.com/Tasour/wikipedia-graph/internal/session"
)

// NavigateRequest is the request body for opening an article.
type NavigateRequest struct {
	Title   string `json:"title" example:"Go (programming language)" validate:"required"`
	Section string `json:"section,omitempty" example:"History"`
}

// PositionRequest reports a node position computed by the layout engine.
type PositionRequest struct {
	Title string  `json:"title" example:"Gopher" validate:"required"`
	X     float64 `json:"x" example:"120.5"`
	Y     float64 `json:"y" example:"88"`
}

// PageResponse is a navigation result (aliased from the domain layer).
type PageResponse = session.Page

// HistoryResponse is the navigation history (aliased from the domain layer).
type HistoryResponse = session.HistoryView

// CachedPageResponse is a cached article with its visited backlinks.
type CachedPageResponse struct {
	Title     string    `json:"title" example:"Gopher" validate:"required"`
	Content   string    `json:"content" validate:"required"`
	PageID    int64     `json:"pageid" example:"12345"`
	URL       string    `json:"url" example:"https://en.wikipedia.org/wiki/Gopher"`
	Checksum  string    `json:"checksum" example:"abc123..."`
	CachedAt  time.Time `json:"cached_at"`
	Backlinks []string  `json:"backlinks"`
}

// TitlesResponse wraps a list of article titles.
type TitlesResponse struct {
	Titles []string `json:"titles" validate:"required"`
}

// VisitedSearchResponse wraps visited-page search results.
type VisitedSearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// ShareResponse carries the query string that reopens the current graph.
type ShareResponse struct {
	Query string `json:"query" example:"pageids=1|2|3"`
}
