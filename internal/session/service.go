package session

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"notespad/internal/metrics"
	"notespad/internal/models"
)

// Service routes one inbound frame at a time per client. Every outbound event
// is stamped with the sender's name and a fresh server timestamp; client
// timestamps are ignored.
type Service struct {
	reg   *Registry
	saver *Saver
	log   *zap.Logger
}

func NewService(reg *Registry, saver *Saver, log *zap.Logger) *Service {
	return &Service{reg: reg, saver: saver, log: log}
}

// HandleMessage classifies raw by its type discriminator and dispatches.
// Malformed frames and unrecognized types are answered with an error frame to
// the sender only; neither ends the session.
func (svc *Service) HandleMessage(c *Client, raw []byte) {
	var in models.Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		svc.log.Warn("invalid frame",
			zap.String("note_id", c.NoteID),
			zap.String("session_id", c.ID),
			zap.Error(err))
		svc.reg.SendToClient(c, models.ErrorMessage{
			Type:    models.TypeError,
			Message: "Invalid JSON format",
		})
		return
	}

	now := time.Now().UTC()

	switch in.Type {
	case models.TypeContentChange:
		metrics.MessageReceived(in.Type)
		// Peers see the keystroke immediately; persistence is debounced.
		svc.reg.BroadcastToRoom(c.NoteID, models.ContentChange{
			Type:      models.TypeContentChange,
			NoteID:    c.NoteID,
			Content:   in.Content,
			UserName:  c.UserName,
			Timestamp: now,
		}, c.ID)
		svc.saver.Schedule(c, in.Content, now)

	case models.TypeCursorPosition:
		metrics.MessageReceived(in.Type)
		svc.reg.BroadcastToRoom(c.NoteID, models.CursorPosition{
			Type:      models.TypeCursorPosition,
			Position:  in.Position,
			UserName:  c.UserName,
			Timestamp: now,
		}, c.ID)

	case models.TypeTypingIndicator:
		metrics.MessageReceived(in.Type)
		svc.reg.BroadcastToRoom(c.NoteID, models.TypingIndicator{
			Type:      models.TypeTypingIndicator,
			IsTyping:  in.IsTyping,
			UserName:  c.UserName,
			Timestamp: now,
		}, c.ID)

	case models.TypeChatMessage:
		metrics.MessageReceived(in.Type)
		// Chat goes to the whole room, sender included.
		svc.reg.BroadcastToRoom(c.NoteID, models.ChatMessage{
			Type:      models.TypeChatMessage,
			Message:   in.Message,
			UserName:  c.UserName,
			Timestamp: now,
		}, "")

	default:
		metrics.MessageReceived("unknown")
		svc.reg.SendToClient(c, models.ErrorMessage{
			Type:    models.TypeError,
			Message: "Unknown message type: " + in.Type,
		})
	}
}
