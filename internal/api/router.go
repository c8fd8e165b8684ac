package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	ChiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/api/middleware"
)

func newBaseRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(ChiMiddleware.RequestID)
	r.Use(ChiMiddleware.Logger)
	r.Use(ChiMiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// NewPostRouter serves the post API. redisClient backs the Idempotency-Key
// support on creation; nil disables it.
func NewPostRouter(h *PostHandlers, redisClient *redis.Client) http.Handler {
	r := newBaseRouter()

	r.Route("/api/posts", func(r chi.Router) {
		r.Get("/", h.ListPosts)
		r.Get("/{id}", h.GetPost)
		r.Get("/{id}/propagation", h.GetPropagation)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser)
			r.With(middleware.Idempotency(redisClient)).Post("/", h.CreatePost)
			r.Delete("/{id}", h.DeletePost)
		})
	})

	return r
}

func NewSearchRouter(h *SearchHandlers) http.Handler {
	r := newBaseRouter()
	r.Get("/api/search/posts", h.SearchPosts)
	return r
}

func NewMediaRouter(h *MediaHandlers) http.Handler {
	r := newBaseRouter()

	r.Route("/api/media", func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.Post("/upload", h.UploadMedia)
		r.Get("/all", h.ListMedia)
	})

	return r
}
