package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// vaultRoot is used to resolve the attachments directory.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler, vaultRoot string) chi.Router {
	ah := NewAttachmentHandler(vaultRoot)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Reference resolution and search.
	r.Get("/resolve", h.Resolve)
	r.Get("/search", h.Search)
	r.Get("/paragraphs", h.SearchParagraphs)

	// Listings.
	r.Get("/notes", h.ListNotes)
	r.Get("/folders", h.ListFolders)

	// Note reads and mutations.
	r.Get("/notes/*", h.GetNote)
	r.Put("/notes/*", h.ReplaceNote)
	r.Patch("/notes/*", h.PatchNote)
	r.Delete("/notes/*", h.DeleteNote)

	// Attachments.
	r.Get("/attachments/{filename}", ah.ServeFile)
	r.Post("/attachments", ah.Upload)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
