package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"notespad/internal/metrics"
	"notespad/internal/models"
)

// Mirror receives presence snapshots as rooms change. Implementations must be
// safe for concurrent use; a nil Mirror disables mirroring.
type Mirror interface {
	RoomUpdated(noteID string, users []string)
	RoomClosed(noteID string)
}

// Registry owns every room and client for its lifetime. A room exists only
// while at least one client is attached; the last detach removes it.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string][]*Client // attachment order
	log    *zap.Logger
	mirror Mirror
}

func NewRegistry(log *zap.Logger, mirror Mirror) *Registry {
	return &Registry{
		rooms:  make(map[string][]*Client),
		log:    log,
		mirror: mirror,
	}
}

// Attach registers a new client in the note's room, creating the room if
// needed. The new client is told the current occupants via room_joined and the
// rest of the room hears user_joined. Attach never fails.
func (reg *Registry) Attach(conn *websocket.Conn, noteID, userName string) *Client {
	c := NewClient(conn, noteID, userName)
	reg.AttachClient(c)
	return c
}

// AttachClient registers an already-constructed client (tests inject clients
// with a send hook here).
func (reg *Registry) AttachClient(c *Client) {
	noteID, userName := c.NoteID, c.UserName

	reg.mu.Lock()
	reg.rooms[noteID] = append(reg.rooms[noteID], c)
	users := userNamesLocked(reg.rooms[noteID])
	reg.mu.Unlock()

	metrics.SessionOpened()
	reg.log.Info("client attached",
		zap.String("note_id", noteID),
		zap.String("user_name", userName),
		zap.String("session_id", c.ID))

	now := time.Now().UTC()
	reg.SendToClient(c, models.RoomJoined{
		Type:        models.TypeRoomJoined,
		NoteID:      noteID,
		ActiveUsers: users,
		Timestamp:   now,
	})
	reg.BroadcastToRoom(noteID, models.Presence{
		Type:        models.TypeUserJoined,
		UserName:    userName,
		ActiveUsers: users,
		Timestamp:   now,
	}, c.ID)

	if reg.mirror != nil {
		reg.mirror.RoomUpdated(noteID, users)
	}
}

// Detach removes the client from its room and announces user_left to whoever
// remains. The last detach deletes the room. Calling Detach on a client that
// is already gone is a no-op, so the explicit disconnect path and the
// broadcast failure path may race freely.
func (reg *Registry) Detach(c *Client) {
	reg.mu.Lock()
	clients, ok := reg.rooms[c.NoteID]
	if !ok {
		reg.mu.Unlock()
		return
	}
	idx := -1
	for i, existing := range clients {
		if existing.ID == c.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		reg.mu.Unlock()
		return
	}
	clients = append(clients[:idx], clients[idx+1:]...)
	if len(clients) == 0 {
		delete(reg.rooms, c.NoteID)
	} else {
		reg.rooms[c.NoteID] = clients
	}
	users := userNamesLocked(clients)
	reg.mu.Unlock()

	metrics.SessionClosed()
	reg.log.Info("client detached",
		zap.String("note_id", c.NoteID),
		zap.String("user_name", c.UserName),
		zap.String("session_id", c.ID))

	if len(users) == 0 {
		if reg.mirror != nil {
			reg.mirror.RoomClosed(c.NoteID)
		}
		return
	}
	reg.BroadcastToRoom(c.NoteID, models.Presence{
		Type:        models.TypeUserLeft,
		UserName:    c.UserName,
		ActiveUsers: users,
		Timestamp:   time.Now().UTC(),
	}, "")
	if reg.mirror != nil {
		reg.mirror.RoomUpdated(c.NoteID, users)
	}
}

// BroadcastToRoom serializes msg once and delivers it to every client in the
// room except excludeID. Sends happen on a snapshot taken under the lock, so a
// slow client cannot stall attach/detach. Clients whose transport fails are
// detached afterward; a missing room is a no-op.
func (reg *Registry) BroadcastToRoom(noteID string, msg any, excludeID string) {
	data, err := json.Marshal(msg)
	if err != nil {
		reg.log.Error("marshal broadcast", zap.String("note_id", noteID), zap.Error(err))
		return
	}

	reg.mu.RLock()
	clients := reg.rooms[noteID]
	snapshot := make([]*Client, len(clients))
	copy(snapshot, clients)
	reg.mu.RUnlock()

	if len(snapshot) == 0 {
		return
	}

	var broken []*Client
	for _, c := range snapshot {
		if c.ID == excludeID {
			continue
		}
		if err := c.send(data); err != nil {
			reg.log.Warn("broadcast send failed, dropping client",
				zap.String("note_id", noteID),
				zap.String("session_id", c.ID),
				zap.Error(err))
			broken = append(broken, c)
		}
	}
	metrics.BroadcastSent()
	for _, c := range broken {
		reg.Detach(c)
	}
}

// SendToClient is a best-effort unicast; a broken transport triggers the same
// detach path as a broadcast failure.
func (reg *Registry) SendToClient(c *Client, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		reg.log.Error("marshal unicast", zap.String("session_id", c.ID), zap.Error(err))
		return
	}
	if err := c.send(data); err != nil {
		reg.log.Warn("unicast send failed, dropping client",
			zap.String("session_id", c.ID), zap.Error(err))
		reg.Detach(c)
	}
}

// ListUsers returns the display names currently in the note's room, in
// attachment order. Empty when the note has no room.
func (reg *Registry) ListUsers(noteID string) []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return userNamesLocked(reg.rooms[noteID])
}

func (reg *Registry) CountUsers(noteID string) int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms[noteID])
}

// Status is the presence snapshot served by the HTTP lookup.
func (reg *Registry) Status(noteID string) models.RoomStatus {
	users := reg.ListUsers(noteID)
	return models.RoomStatus{NoteID: noteID, Users: users, UserCount: len(users)}
}

func userNamesLocked(clients []*Client) []string {
	users := make([]string, 0, len(clients))
	for _, c := range clients {
		users = append(users, c.UserName)
	}
	return users
}
