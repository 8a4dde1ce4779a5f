package models

import (
	"encoding/json"
	"time"
)

// Note is the durable document record.
type Note struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type NoteCreate struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// NoteUpdate carries a partial update; nil fields are left untouched.
type NoteUpdate struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

/*** WebSocket protocol ***/

const (
	TypeContentChange   = "content_change"
	TypeCursorPosition  = "cursor_position"
	TypeTypingIndicator = "typing_indicator"
	TypeChatMessage     = "message"
	TypeRoomJoined      = "room_joined"
	TypeUserJoined      = "user_joined"
	TypeUserLeft        = "user_left"
	TypeContentSaved    = "content_saved"
	TypeError           = "error"
)

// Inbound is one client frame. Only the fields matching Type are meaningful.
type Inbound struct {
	Type     string          `json:"type"`
	Content  string          `json:"content"`
	Position json.RawMessage `json:"position"`
	IsTyping bool            `json:"is_typing"`
	Message  string          `json:"message"`
}

type RoomJoined struct {
	Type        string    `json:"type"`
	NoteID      string    `json:"note_id"`
	ActiveUsers []string  `json:"active_users"`
	Timestamp   time.Time `json:"timestamp"`
}

// Presence is sent as user_joined / user_left to the rest of the room.
type Presence struct {
	Type        string    `json:"type"`
	UserName    string    `json:"user_name"`
	ActiveUsers []string  `json:"active_users"`
	Timestamp   time.Time `json:"timestamp"`
}

type ContentChange struct {
	Type      string    `json:"type"`
	NoteID    string    `json:"note_id"`
	Content   string    `json:"content"`
	UserName  string    `json:"user_name"`
	Timestamp time.Time `json:"timestamp"`
}

type CursorPosition struct {
	Type      string          `json:"type"`
	Position  json.RawMessage `json:"position"`
	UserName  string          `json:"user_name"`
	Timestamp time.Time       `json:"timestamp"`
}

type TypingIndicator struct {
	Type      string    `json:"type"`
	IsTyping  bool      `json:"is_typing"`
	UserName  string    `json:"user_name"`
	Timestamp time.Time `json:"timestamp"`
}

type ChatMessage struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	UserName  string    `json:"user_name"`
	Timestamp time.Time `json:"timestamp"`
}

type ContentSaved struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// RoomStatus is the presence snapshot served over HTTP and mirrored to Redis.
type RoomStatus struct {
	NoteID    string   `json:"note_id"`
	Users     []string `json:"users"`
	UserCount int      `json:"user_count"`
}
