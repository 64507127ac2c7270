package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// NewRouter builds the chi router serving the admin API
func NewRouter(handlers *AdminHandlers) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware)

	r.Get("/generations", handlers.handleGenerations)
	r.Get("/generations/{topic}", handlers.handleGeneration)
	r.Get("/status", handlers.handleStatus)
	r.Post("/topics/{topic}/post", handlers.handlePost)

	return r
}

// RegisterRoutes mounts the admin API under /admin
func RegisterRoutes(mux *http.ServeMux, handlers *AdminHandlers) {
	r := NewRouter(handlers)

	mux.Handle("/admin", http.RedirectHandler("/admin/", http.StatusMovedPermanently))
	mux.Handle("/admin/", http.StripPrefix("/admin", r))

	log.Info().Msg("Admin endpoints enabled at /admin/*")
}
