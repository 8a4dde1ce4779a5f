package session

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"notespad/internal/metrics"
	"notespad/internal/models"
	"notespad/internal/repositories"
)

// DefaultDebounce is the quiet period after the last edit before a note is
// written to the store.
const DefaultDebounce = 300 * time.Millisecond

// NoteStore is the slice of the note repository the saver needs.
type NoteStore interface {
	UpdateContent(noteID, content string) (*models.Note, error)
}

type pendingEdit struct {
	content   string
	timestamp time.Time
	origin    *Client
}

// Saver coalesces a burst of content changes per note into a single store
// write. Each note holds at most one pending edit and one live timer; a newer
// edit overwrites the pending content and supersedes the timer. Persistence is
// best effort: a failed write is logged and dropped, the next edit retries
// naturally.
type Saver struct {
	store NoteStore
	reg   *Registry
	log   *zap.Logger
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*pendingEdit
	timers  map[string]*time.Timer
	gens    map[string]uint64
}

func NewSaver(store NoteStore, reg *Registry, log *zap.Logger, delay time.Duration) *Saver {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Saver{
		store:   store,
		reg:     reg,
		log:     log,
		delay:   delay,
		pending: make(map[string]*pendingEdit),
		timers:  make(map[string]*time.Timer),
		gens:    make(map[string]uint64),
	}
}

// Schedule records the latest content for the origin's note and restarts the
// quiet-period timer. The generation counter guards the race between Stop and
// an already-fired timer: a stale flush sees a newer generation and no-ops, so
// the superseded edit can never reach the store.
func (s *Saver) Schedule(origin *Client, content string, timestamp time.Time) {
	noteID := origin.NoteID

	s.mu.Lock()
	s.gens[noteID]++
	gen := s.gens[noteID]
	s.pending[noteID] = &pendingEdit{content: content, timestamp: timestamp, origin: origin}
	if t, ok := s.timers[noteID]; ok {
		t.Stop()
	}
	s.timers[noteID] = time.AfterFunc(s.delay, func() { s.flush(noteID, gen) })
	s.mu.Unlock()
}

// PendingCount reports how many notes currently have an unsaved edit.
func (s *Saver) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Saver) flush(noteID string, gen uint64) {
	s.mu.Lock()
	if s.gens[noteID] != gen {
		s.mu.Unlock()
		return
	}
	edit := s.pending[noteID]
	delete(s.pending, noteID)
	delete(s.timers, noteID)
	delete(s.gens, noteID)
	s.mu.Unlock()

	if edit == nil {
		return
	}

	// The store call happens outside the lock; only one flush per note can be
	// in flight, so writes for a note never overlap.
	if _, err := s.store.UpdateContent(noteID, edit.content); err != nil {
		if errors.Is(err, repositories.ErrNoteNotFound) {
			metrics.NoteSaved("not_found")
		} else {
			metrics.NoteSaved("error")
		}
		s.log.Error("debounced save failed",
			zap.String("note_id", noteID),
			zap.String("user_name", edit.origin.UserName),
			zap.Error(err))
		return
	}

	metrics.NoteSaved("ok")
	s.log.Info("note saved",
		zap.String("note_id", noteID),
		zap.String("user_name", edit.origin.UserName))
	s.reg.SendToClient(edit.origin, models.ContentSaved{
		Type:      models.TypeContentSaved,
		Timestamp: time.Now().UTC(),
	})
}
