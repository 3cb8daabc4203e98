package collab

import (
	"context"
	"testing"
	"time"
)

func TestSupervisorReapBroadcastsLeave(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	r.now = func() time.Time { return now }

	stale := newFakeConn("stale")
	r.Join(stale, 1, "alice", 7)

	r.now = func() time.Time { return now.Add(5 * time.Minute) }
	fresh := newFakeConn("fresh")
	r.Join(fresh, 2, "bob", 7)

	bc := NewBroadcaster(r, nil)
	s := NewSupervisor(r, bc, time.Second, 2*time.Minute)
	s.reap(context.Background())

	if stale.Alive() {
		t.Fatal("evicted participant's conn must be closed")
	}
	got := fresh.envelopes()
	if len(got) != 1 || got[0].Type != TypeLeave || got[0].UserID != 1 {
		t.Fatalf("remaining peer must receive leave for user 1, got %+v", got)
	}
	if got[0].Timestamp == 0 {
		t.Fatal("outbound leave must carry a timestamp")
	}
	if parts := r.Participants(7, 0); len(parts) != 1 || parts[0].UserID != 2 {
		t.Fatalf("only bob should remain: %+v", parts)
	}
}

func TestSupervisorReapNothingStale(t *testing.T) {
	r := NewRegistry()
	c := newFakeConn("c1")
	r.Join(c, 1, "alice", 7)

	s := NewSupervisor(r, NewBroadcaster(r, nil), time.Second, time.Hour)
	s.reap(context.Background())

	if !c.Alive() {
		t.Fatal("fresh participant must not be evicted")
	}
	if len(r.Participants(7, 0)) != 1 {
		t.Fatal("membership must be intact")
	}
}

func TestSupervisorRunStopsOnCancel(t *testing.T) {
	r := NewRegistry()
	s := NewSupervisor(r, NewBroadcaster(r, nil), time.Millisecond, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
