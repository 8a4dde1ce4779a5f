package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"notespad/internal/models"
	"notespad/internal/repositories"
	"notespad/internal/session"
	"notespad/internal/status"
)

type Handlers struct {
	log      *zap.Logger
	notes    *repositories.NoteRepository
	registry *session.Registry
	service  *session.Service
	mirror   *status.PresenceMirror
}

func NewHandlers(log *zap.Logger, notes *repositories.NoteRepository, registry *session.Registry, service *session.Service, mirror *status.PresenceMirror) *Handlers {
	return &Handlers{
		log:      log,
		notes:    notes,
		registry: registry,
		service:  service,
		mirror:   mirror,
	}
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

/*** Notes CRUD ***/

func (h *Handlers) CreateNote(w http.ResponseWriter, r *http.Request) {
	var in models.NoteCreate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	note, err := h.notes.CreateNote(in)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, note)
}

func (h *Handlers) ListNotes(w http.ResponseWriter, _ *http.Request) {
	notes, err := h.notes.GetAllNotes()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, notes)
}

func (h *Handlers) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.notes.GetNote(chi.URLParam(r, "id"))
	if err != nil {
		writeNoteError(w, err)
		return
	}
	writeJSON(w, note)
}

func (h *Handlers) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var update models.NoteUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	note, err := h.notes.UpdateNote(chi.URLParam(r, "id"), update)
	if err != nil {
		writeNoteError(w, err)
		return
	}
	writeJSON(w, note)
}

func (h *Handlers) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.notes.DeleteNote(chi.URLParam(r, "id")); err != nil {
		writeNoteError(w, err)
		return
	}
	writeJSON(w, map[string]string{"message": "Note deleted successfully"})
}

/*** Presence lookup ***/

// Presence serves the occupant snapshot for a note. Rooms held by this
// process come from the registry; otherwise the Redis mirror is consulted.
func (h *Handlers) Presence(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "id")
	if h.registry.CountUsers(noteID) > 0 {
		writeJSON(w, h.registry.Status(noteID))
		return
	}
	if stat, err := h.mirror.RoomStatus(noteID); err == nil {
		writeJSON(w, stat)
		return
	}
	writeJSON(w, models.RoomStatus{NoteID: noteID, Users: []string{}})
}

/*** Collaboration WebSocket ***/

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func (h *Handlers) NoteWS(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "id")
	userName := r.URL.Query().Get("user_name")
	if userName == "" {
		userName = "Anonymous"
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("note_id", noteID), zap.Error(err))
		return
	}
	defer conn.Close()

	client := h.registry.Attach(conn, noteID, userName)
	defer h.registry.Detach(client)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.service.HandleMessage(client, data)
	}
}

func writeNoteError(w http.ResponseWriter, err error) {
	if errors.Is(err, repositories.ErrNoteNotFound) {
		http.Error(w, "Note not found", http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
