package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Navigation.
	r.Post("/navigate", h.Navigate)
	r.Post("/back", h.Back)
	r.Post("/forward", h.Forward)
	r.Delete("/current", h.DeleteCurrent)
	r.Post("/random", h.Random)
	r.Get("/history", h.History)

	// Graph.
	r.Get("/graph", h.Graph)
	r.Put("/graph/positions", h.SetPosition)
	r.Get("/share", h.Share)
	r.Get("/stats", h.Stats)

	// Cached pages.
	r.Get("/pages/*", h.GetPage)

	// Search.
	r.Get("/search", h.Search)
	r.Get("/suggestions", h.Suggestions)
	r.Get("/visited/search", h.SearchVisited)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
