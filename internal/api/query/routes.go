package query

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers query routes
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/query", h.Query)
}
