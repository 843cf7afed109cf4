package document

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers document routes. read guards listing, write
// guards ingestion and removal.
func RegisterRoutes(r chi.Router, h *Handler, read, write func(http.Handler) http.Handler) {
	r.Route("/documents", func(r chi.Router) {
		r.With(read).Get("/", h.ListDocuments)
		r.With(write).Post("/", h.IngestDocument)
		r.With(write).Delete("/{document_id}", h.RemoveDocument)
	})
}
