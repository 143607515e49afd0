package main

import (
	"context"
	"strings"
	"testing"

	"fermata/internal/journal"
	"fermata/internal/logging"
	"fermata/internal/testsupport"
)

func TestOpenSessionHoldsInstanceLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	logger := logging.NewNop()

	session, err := openSession(cfg, logger)
	if err != nil {
		t.Fatalf("openSession: %v", err)
	}

	if _, err := openSession(cfg, logger); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("second openSession err = %v, want instance lock conflict", err)
	}

	if err := session.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Lock released: a new session can start and the journal recorded both.
	again, err := openSession(cfg, logger)
	if err != nil {
		t.Fatalf("openSession after close: %v", err)
	}
	defer again.Close(context.Background())

	store, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer store.Close()
	sessions, err := store.RecentSessions(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("journal sessions = %d, want 2", len(sessions))
	}
}

func TestOpenSessionWithoutJournal(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithJournalDisabled())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	session, err := openSession(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("openSession: %v", err)
	}
	defer session.Close(context.Background())

	if session.store != nil {
		t.Fatal("expected no journal store when journaling is disabled")
	}
	// State callbacks must be safe with journaling off.
	session.recordState("ready")
	session.recordTarget("/media/example.mkv")
}
