package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Tasour/wikipedia-graph/internal/checksum"
	"github.com/Tasour/wikipedia-graph/internal/index"
	"github.com/Tasour/wikipedia-graph/internal/session"
)

// Discovery finds articles that have not been visited yet.
type Discovery interface {
	Search(ctx context.Context, q string, limit int) ([]string, error)
	Featured(ctx context.Context, day time.Time) ([]string, error)
	RandomTitle(ctx context.Context) (string, error)
}

// VisitedIndex searches pages visited in this session.
type VisitedIndex interface {
	Search(query string, limit int) ([]index.SearchResult, error)
	Backlinks(target string) ([]string, error)
}

// Handler holds API route handlers.
type Handler struct {
	sess    *session.Session
	disc    Discovery
	visited VisitedIndex
	now     func() time.Time
}

// NewHandler creates a new Handler. disc and visited may be nil; the routes
// that need them then answer 503.
func NewHandler(sess *session.Session, disc Discovery, visited VisitedIndex) *Handler {
	return &Handler{sess: sess, disc: disc, visited: visited, now: time.Now}
}

// pageTitle extracts the article title from the URL (everything after
// /api/pages/). Titles may contain slashes, encoded or not.
func pageTitle(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// Navigate handles POST /api/navigate.
//
//	@Summary		Open an article as a new navigation
//	@Tags			navigation
//	@Accept			json
//	@Produce		json
//	@Param			body	body		NavigateRequest	true	"Article to open"
//	@Success		200		{object}	PageResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/navigate [post]
func (h *Handler) Navigate(w http.ResponseWriter, r *http.Request) {
	var req NavigateRequest
	if !readJSON(w, r, &req) {
		return
	}
	page, err := h.sess.Navigate(r.Context(), req.Title, req.Section)
	if err != nil {
		writeError(w, "navigate", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Back handles POST /api/back.
//
//	@Summary		Return to the previous article
//	@Tags			navigation
//	@Produce		json
//	@Success		200	{object}	PageResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/back [post]
func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	page, err := h.sess.Back(r.Context())
	if err != nil {
		writeError(w, "back", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Forward handles POST /api/forward.
//
//	@Summary		Re-open the article left with back
//	@Tags			navigation
//	@Produce		json
//	@Success		200	{object}	PageResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/forward [post]
func (h *Handler) Forward(w http.ResponseWriter, r *http.Request) {
	page, err := h.sess.Forward(r.Context())
	if err != nil {
		writeError(w, "forward", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// DeleteCurrent handles DELETE /api/current.
//
//	@Summary		Delete the current article from history and graph
//	@Tags			navigation
//	@Produce		json
//	@Success		200	{object}	PageResponse
//	@Success		204	"History is now empty"
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/current [delete]
func (h *Handler) DeleteCurrent(w http.ResponseWriter, r *http.Request) {
	page, err := h.sess.Delete(r.Context())
	if err != nil {
		writeError(w, "delete current", err)
		return
	}
	if page == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Random handles POST /api/random.
//
//	@Summary		Open a random article
//	@Tags			navigation
//	@Produce		json
//	@Success		200	{object}	PageResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/random [post]
func (h *Handler) Random(w http.ResponseWriter, r *http.Request) {
	if h.disc == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("discovery disabled"))
		return
	}
	t, err := h.disc.RandomTitle(r.Context())
	if err != nil {
		writeError(w, "random", err)
		return
	}
	page, err := h.sess.Navigate(r.Context(), t, "")
	if err != nil {
		writeError(w, "random", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the navigation graph
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	graph.Snapshot
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sess.Graph()
	if err != nil {
		writeError(w, "graph", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// SetPosition handles PUT /api/graph/positions.
//
//	@Summary		Store a node position computed by the layout engine
//	@Tags			graph
//	@Accept			json
//	@Param			body	body	PositionRequest	true	"Node position"
//	@Success		204		"Position stored"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/graph/positions [put]
func (h *Handler) SetPosition(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("title is required"))
		return
	}
	if !h.sess.SetPosition(req.Title, req.X, req.Y) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// History handles GET /api/history.
//
//	@Summary		Get the back and forward stacks
//	@Tags			navigation
//	@Produce		json
//	@Success		200	{object}	HistoryResponse
//	@Security		BearerAuth
//	@Router			/history [get]
func (h *Handler) History(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.sess.History())
}

// GetPage handles GET /api/pages/*.
//
//	@Summary		Get a cached article
//	@Tags			pages
//	@Produce		json
//	@Param			title			path		string	true	"Article title"
//	@Param			If-None-Match	header		string	false	"Checksum of a copy the client holds"
//	@Success		200				{object}	CachedPageResponse
//	@Success		304				"Not modified"
//	@Failure		404				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{title} [get]
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	t := pageTitle(r)
	if t == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("title is required"))
		return
	}
	e, ok := h.sess.Page(t)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	sum := checksum.Sum([]byte(e.Content))
	etag := checksum.ETag(e.Content)
	w.Header().Set("ETag", etag)
	if checksum.Matches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	backlinks := []string{}
	if h.visited != nil {
		found, err := h.visited.Backlinks(e.Title)
		if err != nil {
			slog.Warn("backlinks failed", slog.String("title", e.Title), slog.String("error", err.Error()))
		} else if found != nil {
			backlinks = found
		}
	}
	writeJSON(w, http.StatusOK, CachedPageResponse{
		Title:     e.Title,
		Content:   e.Content,
		PageID:    e.PageID,
		URL:       e.URL,
		Checksum:  sum,
		CachedAt:  e.CachedAt,
		Backlinks: backlinks,
	})
}

// Search handles GET /api/search.
//
//	@Summary		Search Wikipedia titles
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	TitlesResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	if h.disc == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("discovery disabled"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	titles, err := h.disc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, TitlesResponse{Titles: nonNil(titles)})
}

// Suggestions handles GET /api/suggestions.
//
//	@Summary		Search suggestions, or today's featured articles for an empty query
//	@Tags			search
//	@Produce		json
//	@Param			q	query		string	false	"Search query"
//	@Success		200	{object}	TitlesResponse
//	@Security		BearerAuth
//	@Router			/suggestions [get]
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	if h.disc == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("discovery disabled"))
		return
	}
	var (
		titles []string
		err    error
	)
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		titles, err = h.disc.Search(r.Context(), q, 0)
	} else {
		titles, err = h.disc.Featured(r.Context(), h.now())
	}
	if err != nil {
		writeError(w, "suggestions", err)
		return
	}
	writeJSON(w, http.StatusOK, TitlesResponse{Titles: nonNil(titles)})
}

// SearchVisited handles GET /api/visited/search.
//
//	@Summary		Full-text search across visited articles
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	VisitedSearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/visited/search [get]
func (h *Handler) SearchVisited(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	if h.visited == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("index disabled"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.visited.Search(q, limit)
	if err != nil {
		slog.Error("visited search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	writeJSON(w, http.StatusOK, VisitedSearchResponse{Results: results})
}

// Share handles GET /api/share.
//
//	@Summary		Get the query string that reopens the current graph
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	ShareResponse
//	@Security		BearerAuth
//	@Router			/share [get]
func (h *Handler) Share(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ShareResponse{Query: h.sess.ShareQuery()})
}

// Stats handles GET /api/stats.
//
//	@Summary		Get component sizes
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	session.Stats
//	@Security		BearerAuth
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.sess.Stats())
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
