package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/refdeck/internal/refservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *refservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Documents and panels.
	r.Get("/documents", h.SearchDocuments)
	r.Get("/search", h.SearchText)
	r.Get("/references/*", h.GetPanel)
	r.Post("/collapse", h.ToggleCollapse)
	r.Get("/referrers", h.Referrers)
	r.Get("/preview", h.Preview)

	// Editing sessions.
	r.Post("/sessions", h.OpenSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Post("/field", h.SwitchField)
		r.Post("/append", h.Append)
		r.Post("/append-note", h.AppendNote)
		r.Post("/append-url", h.AppendURL)
		r.Post("/reorder", h.Reorder)
		r.Post("/move", h.Move)
		r.Post("/remove", h.Remove)
		r.Post("/commit", h.Commit)
		r.Post("/cancel", h.Cancel)
	})

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
