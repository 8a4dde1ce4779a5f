package session

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"notespad/internal/models"
)

type frameCapture struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func newFrameCapture() *frameCapture { return &frameCapture{} }

func (c *frameCapture) hook(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.frames = append(c.frames, buf)
	return nil
}

func (c *frameCapture) fail(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *frameCapture) list() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, raw := range c.frames {
		var frame map[string]any
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		out = append(out, frame)
	}
	return out
}

func (c *frameCapture) types() []string {
	var types []string
	for _, frame := range c.list() {
		typ, _ := frame["type"].(string)
		types = append(types, typ)
	}
	return types
}

func (c *frameCapture) byType(typ string) []map[string]any {
	var out []map[string]any
	for _, frame := range c.list() {
		if frame["type"] == typ {
			out = append(out, frame)
		}
	}
	return out
}

func newTestRegistry() *Registry {
	return NewRegistry(zap.NewNop(), nil)
}

func attach(reg *Registry, noteID, userName string) (*Client, *frameCapture) {
	c := NewClient(nil, noteID, userName)
	capture := newFrameCapture()
	c.SetSendHook(capture.hook)
	reg.AttachClient(c)
	return c, capture
}

func stringSlice(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, _ := item.(string)
		out = append(out, s)
	}
	return out
}

func TestAttachAnnouncesRoomJoined(t *testing.T) {
	reg := newTestRegistry()

	_, alice := attach(reg, "d1", "Alice")

	joined := alice.byType(models.TypeRoomJoined)
	if len(joined) != 1 {
		t.Fatalf("expected one room_joined, got %v", alice.types())
	}
	if got := joined[0]["note_id"]; got != "d1" {
		t.Fatalf("expected note_id d1, got %v", got)
	}
	if users := stringSlice(joined[0]["active_users"]); len(users) != 1 || users[0] != "Alice" {
		t.Fatalf("unexpected active_users: %v", users)
	}
}

func TestAttachAnnouncesUserJoinedToOthersOnly(t *testing.T) {
	reg := newTestRegistry()
	_, alice := attach(reg, "d1", "Alice")
	_, bob := attach(reg, "d1", "Bob")

	joined := alice.byType(models.TypeUserJoined)
	if len(joined) != 1 {
		t.Fatalf("expected Alice to see one user_joined, got %v", alice.types())
	}
	if got := joined[0]["user_name"]; got != "Bob" {
		t.Fatalf("expected user_name Bob, got %v", got)
	}
	if users := stringSlice(joined[0]["active_users"]); len(users) != 2 || users[0] != "Alice" || users[1] != "Bob" {
		t.Fatalf("unexpected active_users: %v", users)
	}

	if got := bob.byType(models.TypeUserJoined); len(got) != 0 {
		t.Fatalf("new client must not receive its own user_joined, got %v", got)
	}
	roomJoined := bob.byType(models.TypeRoomJoined)
	if len(roomJoined) != 1 {
		t.Fatalf("expected Bob to see room_joined, got %v", bob.types())
	}
	if users := stringSlice(roomJoined[0]["active_users"]); len(users) != 2 || users[0] != "Alice" {
		t.Fatalf("expected Bob to see Alice in active_users, got %v", users)
	}
}

func TestListAndCountUsers(t *testing.T) {
	reg := newTestRegistry()
	if users := reg.ListUsers("d1"); len(users) != 0 {
		t.Fatalf("expected empty room, got %v", users)
	}

	attach(reg, "d1", "Alice")
	attach(reg, "d1", "Bob")
	attach(reg, "d2", "Carol")

	users := reg.ListUsers("d1")
	if len(users) != 2 || users[0] != "Alice" || users[1] != "Bob" {
		t.Fatalf("expected attachment order [Alice Bob], got %v", users)
	}
	if count := reg.CountUsers("d1"); count != 2 {
		t.Fatalf("expected 2 users, got %d", count)
	}
	if count := reg.CountUsers("d2"); count != 1 {
		t.Fatalf("expected 1 user in d2, got %d", count)
	}
}

func TestDetachAnnouncesUserLeft(t *testing.T) {
	reg := newTestRegistry()
	alice, _ := attach(reg, "d1", "Alice")
	_, bob := attach(reg, "d1", "Bob")

	reg.Detach(alice)

	left := bob.byType(models.TypeUserLeft)
	if len(left) != 1 {
		t.Fatalf("expected one user_left, got %v", bob.types())
	}
	if got := left[0]["user_name"]; got != "Alice" {
		t.Fatalf("expected user_name Alice, got %v", got)
	}
	if users := stringSlice(left[0]["active_users"]); len(users) != 1 || users[0] != "Bob" {
		t.Fatalf("unexpected active_users: %v", users)
	}
	if count := reg.CountUsers("d1"); count != 1 {
		t.Fatalf("expected room to survive with 1 user, got %d", count)
	}
}

func TestLastDetachRemovesRoom(t *testing.T) {
	reg := newTestRegistry()
	alice, _ := attach(reg, "d1", "Alice")
	bob, _ := attach(reg, "d1", "Bob")

	reg.Detach(alice)
	reg.Detach(bob)

	reg.mu.RLock()
	_, exists := reg.rooms["d1"]
	reg.mu.RUnlock()
	if exists {
		t.Fatalf("expected room to be removed after last detach")
	}
	if count := reg.CountUsers("d1"); count != 0 {
		t.Fatalf("expected 0 users, got %d", count)
	}
}

func TestDetachIsIdempotent(t *testing.T) {
	reg := newTestRegistry()
	alice, _ := attach(reg, "d1", "Alice")
	_, bob := attach(reg, "d1", "Bob")

	reg.Detach(alice)
	reg.Detach(alice)

	if left := bob.byType(models.TypeUserLeft); len(left) != 1 {
		t.Fatalf("expected exactly one user_left, got %d", len(left))
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	reg := newTestRegistry()
	sender, senderCap := attach(reg, "d1", "Alice")
	_, bob := attach(reg, "d1", "Bob")
	_, carol := attach(reg, "d1", "Carol")

	msg := models.ChatMessage{Type: models.TypeChatMessage, Message: "hello", UserName: "Alice"}
	reg.BroadcastToRoom("d1", msg, sender.ID)

	if got := senderCap.byType(models.TypeChatMessage); len(got) != 0 {
		t.Fatalf("sender must not receive excluded broadcast, got %v", got)
	}
	for name, capture := range map[string]*frameCapture{"bob": bob, "carol": carol} {
		got := capture.byType(models.TypeChatMessage)
		if len(got) != 1 || got[0]["message"] != "hello" {
			t.Fatalf("%s missing chat frame: %v", name, capture.types())
		}
	}
}

func TestBroadcastToMissingRoomIsNoOp(t *testing.T) {
	reg := newTestRegistry()

	reg.BroadcastToRoom("ghost", models.ChatMessage{Type: models.TypeChatMessage}, "")

	reg.mu.RLock()
	_, exists := reg.rooms["ghost"]
	reg.mu.RUnlock()
	if exists {
		t.Fatalf("broadcast must not allocate a room entry")
	}
}

func TestBroadcastPrunesBrokenClient(t *testing.T) {
	reg := newTestRegistry()
	_, brokenCap := attach(reg, "d1", "Alice")
	_, bob := attach(reg, "d1", "Bob")

	brokenCap.fail(errors.New("write: broken pipe"))
	reg.BroadcastToRoom("d1", models.ChatMessage{Type: models.TypeChatMessage, Message: "hi"}, "")

	if count := reg.CountUsers("d1"); count != 1 {
		t.Fatalf("expected broken client to be pruned, got %d users", count)
	}
	if users := reg.ListUsers("d1"); users[0] != "Bob" {
		t.Fatalf("expected Bob to remain, got %v", users)
	}
	// The healthy peer still got the message and then heard the departure.
	if got := bob.byType(models.TypeChatMessage); len(got) != 1 {
		t.Fatalf("expected delivery to healthy client, got %v", bob.types())
	}
	if left := bob.byType(models.TypeUserLeft); len(left) != 1 || left[0]["user_name"] != "Alice" {
		t.Fatalf("expected user_left for pruned client, got %v", bob.types())
	}
}

func TestSendToClientFailureDetaches(t *testing.T) {
	reg := newTestRegistry()
	broken, brokenCap := attach(reg, "d1", "Alice")
	attach(reg, "d1", "Bob")

	brokenCap.fail(errors.New("connection reset"))
	reg.SendToClient(broken, models.ContentSaved{Type: models.TypeContentSaved})

	if count := reg.CountUsers("d1"); count != 1 {
		t.Fatalf("expected failing client to be detached, got %d users", count)
	}
}

func TestStatusSnapshot(t *testing.T) {
	reg := newTestRegistry()
	attach(reg, "d1", "Alice")
	attach(reg, "d1", "Bob")

	stat := reg.Status("d1")
	if stat.NoteID != "d1" || stat.UserCount != 2 {
		t.Fatalf("unexpected status: %#v", stat)
	}
	if len(stat.Users) != 2 || stat.Users[0] != "Alice" {
		t.Fatalf("unexpected users: %v", stat.Users)
	}

	empty := reg.Status("missing")
	if empty.UserCount != 0 || len(empty.Users) != 0 {
		t.Fatalf("expected empty status, got %#v", empty)
	}
}

func TestClientSendWithoutConnDoesNotPanic(t *testing.T) {
	c := NewClient(nil, "d1", "Alice")
	if err := c.send([]byte(`{"type":"noop"}`)); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
