package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/devKanishk15/postgres-ai/internal/api/middleware"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", h.root)
	r.Get("/health", h.Health)
	r.Get("/version", h.version)

	r.Post("/chat", h.Chat)
	r.Post("/conversations", h.NewConversation)
	r.Delete("/chat/{conversationID}", h.ClearConversation)
	r.Get("/db-health", h.DBHealth)
	r.Get("/parse-time", h.ParseTime)
	r.Post("/parse-time", h.ParseTime)

	r.Route("/metrics", func(r chi.Router) {
		r.Get("/", h.ListMetrics)
		r.Get("/{metricKey}", h.GetMetric)
	})

	return r
}

func (h *Handlers) root(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": "postgres-ai",
		"version": h.Version,
		"endpoints": []string{
			"POST /chat",
			"POST /conversations",
			"DELETE /chat/{conversationID}",
			"GET /db-health",
			"GET|POST /parse-time",
			"GET /metrics",
			"GET /metrics/{metricKey}",
			"GET /health",
			"GET /version",
		},
	})
}

func (h *Handlers) version(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"version": h.Version,
		"service": "postgres-ai",
	})
}
