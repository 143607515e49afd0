package journal_test

import (
	"context"
	"path/filepath"
	"testing"

	"fermata/internal/journal"
)

func openTestStore(t *testing.T) *journal.Store {
	t.Helper()
	store, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	id, err := store.BeginSession(ctx)
	if err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero session id")
	}

	if err := store.SetMediaTarget(ctx, id, "/media/example.mkv"); err != nil {
		t.Fatalf("SetMediaTarget: %v", err)
	}
	for _, state := range []string{"starting", "ready", "crashed", "starting", "ready", "stopped"} {
		if err := store.RecordState(ctx, id, state, ""); err != nil {
			t.Fatalf("RecordState(%s): %v", state, err)
		}
	}
	if err := store.EndSession(ctx, id); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	sessions, err := store.RecentSessions(ctx, 10)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(sessions))
	}
	got := sessions[0]
	if got.ID != id || got.MediaTarget != "/media/example.mkv" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if got.EndedAt == nil {
		t.Fatal("expected ended session to carry an end time")
	}
	if got.EndedAt.Before(got.StartedAt) {
		t.Fatalf("ended %s before started %s", got.EndedAt, got.StartedAt)
	}

	events, err := store.SessionEvents(ctx, id)
	if err != nil {
		t.Fatalf("SessionEvents: %v", err)
	}
	if len(events) != 6 {
		t.Fatalf("events = %d, want 6", len(events))
	}
	if events[2].State != "crashed" {
		t.Fatalf("event order wrong: %+v", events)
	}
}

func TestRecentSessionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := store.BeginSession(ctx)
		if err != nil {
			t.Fatalf("BeginSession: %v", err)
		}
		ids = append(ids, id)
	}

	sessions, err := store.RecentSessions(ctx, 2)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}
	if sessions[0].ID != ids[2] || sessions[1].ID != ids[1] {
		t.Fatalf("unexpected ordering: %v", sessions)
	}
	if sessions[0].EndedAt != nil {
		t.Fatal("open session should have nil end time")
	}
}

func TestReopenExistingDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	store, err := journal.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id, err := store.BeginSession(ctx)
	if err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := journal.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	sessions, err := reopened.RecentSessions(ctx, 5)
	if err != nil {
		t.Fatalf("RecentSessions after reopen: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != id {
		t.Fatalf("expected persisted session %d, got %v", id, sessions)
	}
}
