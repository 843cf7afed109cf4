package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/api/docs"
	documentapi "github.com/futig/compliance-rag/internal/api/document"
	"github.com/futig/compliance-rag/internal/api/middleware"
	queryapi "github.com/futig/compliance-rag/internal/api/query"
	"github.com/futig/compliance-rag/internal/entity"
)

type RouterConfig struct {
	RequestTimeout time.Duration
	Identity       middleware.IdentityConfig
}

// SetupRouter creates and configures the HTTP router
func SetupRouter(
	queryHandler *queryapi.Handler,
	documentHandler *documentapi.Handler,
	access middleware.AccessChecker,
	cfg RouterConfig,
	logger *zap.Logger,
) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 90 * time.Second
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(chimiddleware.Recoverer)                   // Recover from panics
	r.Use(chimiddleware.RequestID)                   // Add request ID
	r.Use(middleware.Logger(logger))                 // Log requests
	r.Use(middleware.CORS)                           // Handle CORS
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout)) // Default timeout

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Swagger documentation endpoints
	docs.RegisterRoutes(r)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Identity(cfg.Identity))

		queryapi.RegisterRoutes(r, queryHandler)
		documentapi.RegisterRoutes(r, documentHandler,
			middleware.RequireCapability(access, entity.CapabilityViewDashboard),
			middleware.RequireCapability(access, entity.CapabilityModifyKnowledge),
		)
	})

	return r
}
