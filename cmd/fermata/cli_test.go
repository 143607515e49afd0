package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fermata/internal/journal"
)

func runCLI(t *testing.T, args []string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	out, _, err := runCLI(t, []string{"config", "validate"})
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target})
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	// Second init without --overwrite refuses to clobber.
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}); err == nil {
		t.Fatal("expected error when config file already exists")
	}
}

func TestConfigShowRendersDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	out, _, err := runCLI(t, []string{"config", "show"})
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "showing defaults")
	requireContains(t, out, "[worker]")
	requireContains(t, out, "restart_limit = 3")
}

func TestSessionsListsJournalHistory(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	// Seed the journal at its default location.
	journalPath := filepath.Join(tempHome, ".local", "share", "fermata", "journal.db")
	if err := os.MkdirAll(filepath.Dir(journalPath), 0o755); err != nil {
		t.Fatalf("mkdir journal dir: %v", err)
	}
	store, err := journal.Open(journalPath)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	ctx := context.Background()
	id, err := store.BeginSession(ctx)
	if err != nil {
		t.Fatalf("begin session: %v", err)
	}
	if err := store.SetMediaTarget(ctx, id, "/media/example.mkv"); err != nil {
		t.Fatalf("set target: %v", err)
	}
	if err := store.RecordState(ctx, id, "ready", ""); err != nil {
		t.Fatalf("record state: %v", err)
	}
	if err := store.RecordState(ctx, id, "crashed", "exit code 1"); err != nil {
		t.Fatalf("record state: %v", err)
	}
	if err := store.EndSession(ctx, id); err != nil {
		t.Fatalf("end session: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close journal: %v", err)
	}

	out, _, err := runCLI(t, []string{"sessions"})
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	requireContains(t, out, "/media/example.mkv")

	out, _, err = runCLI(t, []string{"sessions", "1"})
	if err != nil {
		t.Fatalf("sessions 1: %v", err)
	}
	requireContains(t, out, "crashed")
	requireContains(t, out, "exit code 1")
}

func TestSessionsRejectsBadID(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if _, _, err := runCLI(t, []string{"sessions", "not-a-number"}); err == nil {
		t.Fatal("expected error for non-numeric session id")
	}
}
