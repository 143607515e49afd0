package framepool_test

import (
	"errors"
	"testing"

	"fermata/internal/framepool"
)

func TestAcquireRotatesThroughSlots(t *testing.T) {
	pool, err := framepool.New(3, 64)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer pool.Close()

	first, err := pool.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	first.Release()

	second, err := pool.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if second.Index == first.Index {
		t.Fatalf("expected rotation to advance past slot %d", first.Index)
	}
	second.Release()
}

func TestAcquireFailsWhenAllInFlight(t *testing.T) {
	pool, err := framepool.New(2, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer pool.Close()

	a, err := pool.Acquire()
	if err != nil {
		t.Fatalf("Acquire a: %v", err)
	}
	b, err := pool.Acquire()
	if err != nil {
		t.Fatalf("Acquire b: %v", err)
	}
	if _, err := pool.Acquire(); !errors.Is(err, framepool.ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if pool.InFlight() != 2 {
		t.Fatalf("expected 2 in flight, got %d", pool.InFlight())
	}

	a.Release()
	c, err := pool.Acquire()
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	if c.Index != a.Index {
		t.Fatalf("expected released slot %d to come back, got %d", a.Index, c.Index)
	}
	b.Release()
	c.Release()
}

func TestDoubleReleaseIsHarmless(t *testing.T) {
	pool, err := framepool.New(1, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer pool.Close()

	buf, err := pool.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	buf.Release()
	buf.Release()
	if pool.InFlight() != 0 {
		t.Fatalf("expected 0 in flight, got %d", pool.InFlight())
	}
}

func TestResizeDiscardsInFlightGeneration(t *testing.T) {
	pool, err := framepool.New(2, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer pool.Close()

	old, err := pool.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := pool.Resize(128); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if pool.BufferSize() != 128 {
		t.Fatalf("expected buffer size 128, got %d", pool.BufferSize())
	}
	if pool.InFlight() != 0 {
		t.Fatalf("expected fresh generation with 0 in flight, got %d", pool.InFlight())
	}

	// Stale release must not free a slot of the new generation.
	fresh, err := pool.Acquire()
	if err != nil {
		t.Fatalf("Acquire fresh: %v", err)
	}
	old.Release()
	if pool.InFlight() != 1 {
		t.Fatalf("stale release changed new generation, in flight %d", pool.InFlight())
	}
	if len(fresh.Pix) != 128 {
		t.Fatalf("expected resized buffer, got %d bytes", len(fresh.Pix))
	}
	fresh.Release()
}

func TestClosedPoolRejectsAcquire(t *testing.T) {
	pool, err := framepool.New(1, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pool.Close()
	if _, err := pool.Acquire(); !errors.Is(err, framepool.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
