package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/framegrab/internal/captureservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *captureservice.Service, authEnabled bool, token string, sseHandler http.Handler, maxUploadBytes int64) chi.Router {
	h := NewHandler(svc, maxUploadBytes)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Post("/captures", h.TagCapture)
	r.Post("/inspect", h.Inspect)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
