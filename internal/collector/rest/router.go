package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter returns a configured chi.Router for the gwatch collector API.
//
// Route layout:
//
//	GET  /healthz          – liveness probe (no authentication required)
//	POST /api/v1/events     – ingest one ChangeEvent (JWT required)
//	GET  /api/v1/events     – paginated event query (JWT required)
//
// secret is the HS256 shared secret used to verify Bearer tokens on all
// /api routes. Pass an empty string to disable JWT validation (useful in
// tests that cover only request parsing / response formatting).
func NewRouter(srv *Server, secret string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", srv.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		if secret != "" {
			r.Use(JWTMiddleware(secret))
		}

		r.Post("/events", srv.handlePostEvent)
		r.Get("/events", srv.handleGetEvents)
	})

	return r
}
