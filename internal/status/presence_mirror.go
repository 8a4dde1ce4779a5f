package status

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"notespad/internal/models"
)

var ErrRoomNotFound = errors.New("room not found")

const (
	roomKeyPrefix = "note_room:"
	roomTTL       = time.Hour
)

// PresenceMirror keeps a read-only copy of each room's occupants in Redis so
// presence can be looked up outside the live session. Writes are best effort:
// a Redis failure is logged and never touches room state. A nil mirror is a
// no-op, which keeps the session core runnable without Redis.
type PresenceMirror struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewPresenceMirror(rdb *redis.Client, log *zap.Logger) *PresenceMirror {
	return &PresenceMirror{rdb: rdb, log: log}
}

func (m *PresenceMirror) RoomUpdated(noteID string, users []string) {
	if m == nil {
		return
	}
	ctx := context.Background()
	data, err := json.Marshal(users)
	if err != nil {
		m.log.Warn("mirror: marshal users", zap.String("note_id", noteID), zap.Error(err))
		return
	}
	key := roomKeyPrefix + noteID
	if err := m.rdb.HSet(ctx, key, map[string]interface{}{
		"note_id":    noteID,
		"users":      string(data),
		"user_count": len(users),
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}).Err(); err != nil {
		m.log.Warn("mirror: update room", zap.String("note_id", noteID), zap.Error(err))
		return
	}
	m.rdb.Expire(ctx, key, roomTTL)
}

func (m *PresenceMirror) RoomClosed(noteID string) {
	if m == nil {
		return
	}
	if err := m.rdb.Del(context.Background(), roomKeyPrefix+noteID).Err(); err != nil {
		m.log.Warn("mirror: delete room", zap.String("note_id", noteID), zap.Error(err))
	}
}

// RoomStatus reads a mirrored snapshot back. Used as a fallback when the
// in-memory registry has no room for the note.
func (m *PresenceMirror) RoomStatus(noteID string) (*models.RoomStatus, error) {
	if m == nil {
		return nil, ErrRoomNotFound
	}
	result := m.rdb.HGetAll(context.Background(), roomKeyPrefix+noteID)
	if result.Err() != nil {
		return nil, result.Err()
	}
	fields := result.Val()
	if len(fields) == 0 {
		return nil, ErrRoomNotFound
	}

	stat := &models.RoomStatus{NoteID: fields["note_id"]}
	if raw := fields["users"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &stat.Users); err != nil {
			return nil, err
		}
	}
	if raw := fields["user_count"]; raw != "" {
		count, err := strconv.Atoi(raw)
		if err != nil {
			return nil, err
		}
		stat.UserCount = count
	}
	return stat, nil
}
