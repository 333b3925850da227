package routes

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/tier-router/app"
	"github.com/upb/tier-router/handlers"
	authmw "github.com/upb/tier-router/middleware"
)

const defaultRequestTimeout = 60 * time.Second

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	var db *sql.DB
	if deps.DB != nil {
		db = deps.DB.DB
	}
	health := handlers.NewHealthHandler(db, deps.Templates, deps.Logger)
	placement := handlers.NewPlacementHandler(deps.Placement, deps.Logger)
	narrative := handlers.NewNarrativeHandler(deps.Templates, handlers.NarrativeOptions{
		DefaultModality: deps.Config.Narrative.DefaultModality,
		OriginPatterns:  deps.Config.Narrative.WSAllowedOrigins,
		ReadLimit:       deps.Config.Narrative.WSReadLimit,
	}, deps.Logger)

	// Streams live as long as the client stays connected.
	r.Get("/ws/narrative", narrative.HandleStream)

	r.Group(func(r chi.Router) {
		timeout := deps.Config.Server.RequestTimeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		r.Use(middleware.Timeout(timeout))

		r.Get("/healthz", health.HandleHealth)
		r.Get("/readyz", health.HandleReadiness)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/status", handlers.StatusHandler(deps))

			r.Route("/placement", func(r chi.Router) {
				decide := http.Handler(http.HandlerFunc(placement.HandleDecide))
				if deps.AuthMiddleware != nil {
					r.Use(deps.AuthMiddleware.RequireAuth)
					decide = deps.AuthMiddleware.RequireScope(authmw.ScopeDecide)(decide)
				}
				if deps.RateLimiter != nil {
					r.Use(deps.RateLimiter.Limit)
				}
				r.Get("/defaults", placement.HandleDefaults)
				r.Get("/gates", placement.HandleGates)
				r.Method(http.MethodPost, "/decide", decide)
				r.Post("/explain", placement.HandleExplain)
				r.Get("/decisions", placement.HandleListDecisions)
				r.Get("/decisions/{id}", placement.HandleGetDecision)
			})

			r.Route("/narrative/{modality}", func(r chi.Router) {
				r.Post("/events", narrative.HandleEvent)
				r.Post("/events:batch", narrative.HandleEventBatch)
			})
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
