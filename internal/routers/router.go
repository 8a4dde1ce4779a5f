package routers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"notespad/internal/api"
)

func New(h *api.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Get("/api/v1/healthz", h.Health)

	r.Route("/api/v1/notes", func(r chi.Router) {
		r.Post("/", h.CreateNote)
		r.Get("/", h.ListNotes)
		r.Get("/{id}", h.GetNote)
		r.Put("/{id}", h.UpdateNote)
		r.Delete("/{id}", h.DeleteNote)
		r.Get("/{id}/presence", h.Presence)
	})

	r.Get("/ws/{id}", h.NoteWS)

	return r
}
