package collab

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeConn — соединение для тестов без сокетов; используется всем пакетом.
type fakeConn struct {
	id string

	mu       sync.Mutex
	sent     []Envelope
	closed   bool
	failSend bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(env Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.failSend {
		return errors.New("send failed")
	}
	c.sent = append(c.sent, env)
	return nil
}

func (c *fakeConn) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) envelopes() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Envelope, len(c.sent))
	copy(out, c.sent)
	return out
}

func TestRegistryJoinNoDuplicates(t *testing.T) {
	r := NewRegistry()

	for i := int64(1); i <= 3; i++ {
		r.Join(newFakeConn(string(rune('a'+i))), i, "user", 7)
	}
	// повторный join того же пользователя
	r.Join(newFakeConn("z"), 2, "user", 7)

	parts := r.Participants(7, 0)
	if len(parts) != 3 {
		t.Fatalf("expected 3 participants, got %d", len(parts))
	}
	seen := map[int64]bool{}
	for _, p := range parts {
		if seen[p.UserID] {
			t.Fatalf("duplicate userID %d", p.UserID)
		}
		seen[p.UserID] = true
	}
}

func TestRegistryJoinSwitchesRoom(t *testing.T) {
	r := NewRegistry()
	c := newFakeConn("c1")

	r.Join(c, 1, "alice", 7)
	r.Join(newFakeConn("c2"), 2, "bob", 7)

	prev := r.Join(c, 1, "alice", 8)
	if prev == nil || prev.FileID != 7 {
		t.Fatalf("expected previous membership in file 7, got %+v", prev)
	}
	if n := len(r.Participants(7, 0)); n != 1 {
		t.Fatalf("old room should have 1 participant, got %d", n)
	}
	if n := len(r.Participants(8, 0)); n != 1 {
		t.Fatalf("new room should have 1 participant, got %d", n)
	}
}

func TestRegistryCursorGuard(t *testing.T) {
	r := NewRegistry()
	r.Join(newFakeConn("c1"), 1, "alice", 7)

	if r.RecordCursor(2, 7, Position{LineNumber: 1, Column: 1}) {
		t.Fatal("cursor for non-member must be dropped")
	}
	if r.RecordCursor(1, 8, Position{LineNumber: 1, Column: 1}) {
		t.Fatal("cursor for wrong room must be dropped")
	}
	if !r.RecordCursor(1, 7, Position{LineNumber: 3, Column: 5}) {
		t.Fatal("cursor for member must be recorded")
	}

	parts := r.Participants(7, 0)
	if parts[0].Cursor == nil || parts[0].Cursor.LineNumber != 3 {
		t.Fatalf("cursor not recorded: %+v", parts[0].Cursor)
	}
}

func TestRegistryLeaveIdempotent(t *testing.T) {
	r := NewRegistry()
	c := newFakeConn("c1")
	r.Join(c, 1, "alice", 7)

	p := r.Leave(c)
	if p == nil || p.UserID != 1 {
		t.Fatalf("expected removed participant, got %+v", p)
	}
	if r.Leave(c) != nil {
		t.Fatal("second leave must be a no-op")
	}
	if r.RecordCursor(1, 7, Position{LineNumber: 1, Column: 1}) {
		t.Fatal("cursor after leave must be dropped")
	}
	if parts := r.Participants(7, 0); len(parts) != 0 {
		t.Fatalf("room should be empty, got %d", len(parts))
	}
}

func TestRegistryLeaveIgnoresReplacedConn(t *testing.T) {
	r := NewRegistry()
	old := newFakeConn("old")
	r.Join(old, 1, "alice", 7)

	// вторая вкладка того же пользователя
	r.Join(newFakeConn("new"), 1, "alice", 7)

	if p := r.Leave(old); p != nil {
		t.Fatalf("closing replaced conn must not remove participant, got %+v", p)
	}
	if n := len(r.Participants(7, 0)); n != 1 {
		t.Fatalf("participant must survive, got %d", n)
	}
}

func TestRegistrySnapshotIsCopy(t *testing.T) {
	r := NewRegistry()
	r.Join(newFakeConn("c1"), 1, "alice", 7)
	r.RecordCursor(1, 7, Position{LineNumber: 1, Column: 1})

	parts := r.Participants(7, 0)
	parts[0].Cursor.LineNumber = 99
	parts[0].Username = "mallory"

	again := r.Participants(7, 0)
	if again[0].Cursor.LineNumber != 1 || again[0].Username != "alice" {
		t.Fatalf("snapshot must not alias registry state: %+v", again[0])
	}
}

func TestRegistryParticipantsExclude(t *testing.T) {
	r := NewRegistry()
	r.Join(newFakeConn("c1"), 1, "alice", 7)
	r.Join(newFakeConn("c2"), 2, "bob", 7)

	parts := r.Participants(7, 1)
	if len(parts) != 1 || parts[0].UserID != 2 {
		t.Fatalf("expected only bob, got %+v", parts)
	}
}

func TestRegistryEvictStale(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	r.now = func() time.Time { return now }

	c1 := newFakeConn("c1")
	c2 := newFakeConn("c2")
	r.Join(c1, 1, "alice", 7)

	r.now = func() time.Time { return now.Add(3 * time.Minute) }
	r.Join(c2, 2, "bob", 7)

	evs := r.EvictStale(2 * time.Minute)
	if len(evs) != 1 {
		t.Fatalf("expected 1 eviction, got %d", len(evs))
	}
	if evs[0].Participant.UserID != 1 || evs[0].Conn != c1 {
		t.Fatalf("wrong eviction: %+v", evs[0])
	}
	if _, ok := r.FileOf(c1); ok {
		t.Fatal("evicted conn must lose its binding")
	}
	if parts := r.Participants(7, 0); len(parts) != 1 || parts[0].UserID != 2 {
		t.Fatalf("bob must remain: %+v", parts)
	}
}
