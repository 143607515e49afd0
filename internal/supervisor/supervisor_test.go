package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"fermata/internal/protocol"
)

// fakeProc is an in-process worker stand-in wired over pipes, with an exit
// the test (or the worker behavior) controls.
type fakeProc struct {
	stdinR *io.PipeReader
	stdinW *io.PipeWriter
	protoR *io.PipeReader
	protoW *io.PipeWriter
	diagR  *io.PipeReader
	diagW  *io.PipeWriter

	behave     func(*fakeProc)
	done       chan ExitStatus
	terminated chan struct{}

	exitOnce sync.Once
	termOnce sync.Once
}

func newFakeProc(behave func(*fakeProc)) *fakeProc {
	p := &fakeProc{
		behave:     behave,
		done:       make(chan ExitStatus, 1),
		terminated: make(chan struct{}),
	}
	p.stdinR, p.stdinW = io.Pipe()
	p.protoR, p.protoW = io.Pipe()
	p.diagR, p.diagW = io.Pipe()
	return p
}

func (p *fakeProc) Start() error {
	go p.behave(p)
	return nil
}

func (p *fakeProc) Stdin() io.Writer { return p.stdinW }

func (p *fakeProc) Protocol() io.Reader { return p.protoR }

func (p *fakeProc) Diagnostics() io.Reader { return p.diagR }

func (p *fakeProc) Terminate() error {
	p.termOnce.Do(func() { close(p.terminated) })
	return nil
}

func (p *fakeProc) Kill() error {
	p.exit(137)
	return nil
}

func (p *fakeProc) Done() <-chan ExitStatus { return p.done }

func (p *fakeProc) exit(code int) {
	p.exitOnce.Do(func() {
		p.protoW.Close()
		p.diagW.Close()
		p.stdinR.Close()
		p.done <- ExitStatus{Code: code}
	})
}

// fakeSpawner hands out a fresh fakeProc per (re)start and remembers them.
type fakeSpawner struct {
	mu     sync.Mutex
	behave func(*fakeProc)
	procs  []*fakeProc
	err    error
}

func (fs *fakeSpawner) spawn() (Process, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.err != nil {
		return nil, fs.err
	}
	p := newFakeProc(fs.behave)
	fs.procs = append(fs.procs, p)
	return p, nil
}

func (fs *fakeSpawner) spawnCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.procs)
}

func (fs *fakeSpawner) latest() *fakeProc {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.procs) == 0 {
		return nil
	}
	return fs.procs[len(fs.procs)-1]
}

// respondingWorker answers every method immediately, except those listed in
// silent, and exits cleanly when terminated.
func respondingWorker(silent ...protocol.Method) func(*fakeProc) {
	quiet := map[protocol.Method]bool{}
	for _, m := range silent {
		quiet[m] = true
	}
	return func(p *fakeProc) {
		go func() {
			<-p.terminated
			p.exit(0)
		}()
		enc := protocol.NewEncoder(p.protoW)
		if err := enc.Encode(protocol.NewReady()); err != nil {
			return
		}
		dec := protocol.NewDecoder(p.stdinR)
		for {
			msg, err := dec.Next()
			if err != nil {
				return
			}
			if msg.Type != protocol.TypeMethod || quiet[msg.Method] {
				continue
			}
			var reply protocol.Message
			switch msg.Method {
			case protocol.MethodGetVolume:
				reply, _ = protocol.NewResult(msg.ID, 80)
			case protocol.MethodGetDuration:
				reply, _ = protocol.NewResult(msg.ID, 60000)
			default:
				reply, _ = protocol.NewResult(msg.ID, nil)
			}
			if err := enc.Encode(reply); err != nil {
				return
			}
		}
	}
}

func fastOpts() Options {
	return Options{
		ReadyTimeout:   time.Second,
		CallTimeout:    time.Second,
		StopGrace:      time.Second,
		RestartBackoff: 5 * time.Millisecond,
		RestartLimit:   3,
	}
}

func newTestSupervisor(t *testing.T, fs *fakeSpawner, opts Options) *Supervisor {
	t.Helper()
	s, err := New(fs.spawn, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartReadyAndCall(t *testing.T) {
	fs := &fakeSpawner{behave: respondingWorker()}

	var mu sync.Mutex
	var transitions []State
	opts := fastOpts()
	opts.OnStateChange = func(st State) {
		mu.Lock()
		transitions = append(transitions, st)
		mu.Unlock()
	}

	s := newTestSupervisor(t, fs, opts)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := s.State(); got != StateReady {
		t.Fatalf("state = %s, want %s", got, StateReady)
	}

	raw, err := s.Call(context.Background(), protocol.GetVolumeRequest{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	var volume int
	if err := json.Unmarshal(raw, &volume); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if volume != 80 {
		t.Fatalf("volume = %d, want 80", volume)
	}

	mu.Lock()
	got := append([]State(nil), transitions...)
	mu.Unlock()
	if len(got) < 2 || got[0] != StateStarting || got[1] != StateReady {
		t.Fatalf("transitions = %v, want starting then ready", got)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStartTwiceFails(t *testing.T) {
	fs := &fakeSpawner{behave: respondingWorker()}
	s := newTestSupervisor(t, fs, fastOpts())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start err = %v, want ErrAlreadyStarted", err)
	}
}

func TestSpawnFailure(t *testing.T) {
	fs := &fakeSpawner{err: errors.New("no such binary")}
	s := newTestSupervisor(t, fs, fastOpts())
	if err := s.Start(context.Background()); !errors.Is(err, ErrSpawn) {
		t.Fatalf("Start err = %v, want ErrSpawn", err)
	}
	if got := s.State(); got != StateStopped {
		t.Fatalf("state = %s, want %s", got, StateStopped)
	}
}

func TestCallBeforeStart(t *testing.T) {
	fs := &fakeSpawner{behave: respondingWorker()}
	s := newTestSupervisor(t, fs, fastOpts())
	if _, err := s.Call(context.Background(), protocol.GetVolumeRequest{}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Call err = %v, want ErrNotReady", err)
	}
}

func TestReadyTimeout(t *testing.T) {
	// Worker never emits ready.
	fs := &fakeSpawner{behave: func(p *fakeProc) {
		dec := protocol.NewDecoder(p.stdinR)
		for {
			if _, err := dec.Next(); err != nil {
				return
			}
		}
	}}
	opts := fastOpts()
	opts.ReadyTimeout = 30 * time.Millisecond
	s := newTestSupervisor(t, fs, opts)

	if err := s.Start(context.Background()); !errors.Is(err, ErrReadyTimeout) {
		t.Fatalf("Start err = %v, want ErrReadyTimeout", err)
	}
	waitFor(t, "stopped state", func() bool { return s.State() == StateStopped })
	if got := fs.spawnCount(); got != 1 {
		t.Fatalf("spawn count = %d, want 1 (kill after ready timeout must not restart)", got)
	}
}

func TestConcurrentCallsCorrelateOutOfOrder(t *testing.T) {
	// Worker holds both replies and sends them in reverse arrival order.
	fs := &fakeSpawner{behave: func(p *fakeProc) {
		go func() {
			<-p.terminated
			p.exit(0)
		}()
		enc := protocol.NewEncoder(p.protoW)
		_ = enc.Encode(protocol.NewReady())
		dec := protocol.NewDecoder(p.stdinR)
		var held []protocol.Message
		for {
			msg, err := dec.Next()
			if err != nil {
				return
			}
			if msg.Type != protocol.TypeMethod {
				continue
			}
			held = append(held, msg)
			if len(held) < 2 {
				continue
			}
			for i := len(held) - 1; i >= 0; i-- {
				var reply protocol.Message
				switch held[i].Method {
				case protocol.MethodGetVolume:
					reply, _ = protocol.NewResult(held[i].ID, 80)
				case protocol.MethodGetDuration:
					reply, _ = protocol.NewResult(held[i].ID, 60000)
				}
				_ = enc.Encode(reply)
			}
			held = nil
		}
	}}
	s := newTestSupervisor(t, fs, fastOpts())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	var wg sync.WaitGroup
	results := make([]json.RawMessage, 2)
	callErrs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0], callErrs[0] = s.Call(context.Background(), protocol.GetVolumeRequest{})
	}()
	go func() {
		defer wg.Done()
		results[1], callErrs[1] = s.Call(context.Background(), protocol.GetDurationRequest{})
	}()
	wg.Wait()

	for i, err := range callErrs {
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	var volume, duration int
	if err := json.Unmarshal(results[0], &volume); err != nil {
		t.Fatalf("unmarshal volume: %v", err)
	}
	if err := json.Unmarshal(results[1], &duration); err != nil {
		t.Fatalf("unmarshal duration: %v", err)
	}
	if volume != 80 || duration != 60000 {
		t.Fatalf("volume = %d, duration = %d; want 80 and 60000", volume, duration)
	}
	if got := s.PendingCalls(); got != 0 {
		t.Fatalf("pending calls = %d, want 0", got)
	}
}

func TestCrashRejectsPendingAndRestarts(t *testing.T) {
	fs := &fakeSpawner{behave: respondingWorker(protocol.MethodSeek)}
	s := newTestSupervisor(t, fs, fastOpts())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	const inFlight = 3
	errCh := make(chan error, inFlight)
	for i := 0; i < inFlight; i++ {
		go func() {
			_, err := s.Call(context.Background(), protocol.SeekRequest{OffsetMillis: 1000})
			errCh <- err
		}()
	}
	waitFor(t, "pending calls", func() bool { return s.PendingCalls() == inFlight })

	fs.latest().exit(2)

	for i := 0; i < inFlight; i++ {
		select {
		case err := <-errCh:
			if !errors.Is(err, ErrProcessExited) {
				t.Fatalf("pending call err = %v, want ErrProcessExited", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("pending call not rejected after crash")
		}
	}
	if got := s.PendingCalls(); got != 0 {
		t.Fatalf("pending calls after crash = %d, want 0", got)
	}

	waitFor(t, "restarted worker", func() bool { return s.State() == StateReady })
	if got := s.Restarts(); got != 0 {
		t.Fatalf("restarts after successful restart = %d, want 0 (counter resets on ready)", got)
	}
	if got := fs.spawnCount(); got != 2 {
		t.Fatalf("spawn count = %d, want 2", got)
	}

	raw, err := s.Call(context.Background(), protocol.GetVolumeRequest{})
	if err != nil {
		t.Fatalf("Call after restart: %v", err)
	}
	var volume int
	if err := json.Unmarshal(raw, &volume); err != nil || volume != 80 {
		t.Fatalf("volume after restart = %s, err = %v; want 80", raw, err)
	}
}

func TestRestartLimitStopsCrashLoop(t *testing.T) {
	// Worker dies before ever signaling ready. The restart counter only
	// resets on a successful ready, so this is the crash loop that
	// exhausts the bound.
	fs := &fakeSpawner{behave: func(p *fakeProc) {
		p.exit(1)
	}}
	opts := fastOpts()
	opts.RestartLimit = 2
	s := newTestSupervisor(t, fs, opts)

	var mu sync.Mutex
	var exits []ExitPayload
	unsubscribe := s.Subscribe(EventProcessExited, func(data json.RawMessage) {
		var payload ExitPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Errorf("unmarshal exit payload: %v", err)
			return
		}
		mu.Lock()
		exits = append(exits, payload)
		mu.Unlock()
	})
	defer unsubscribe()

	if err := s.Start(context.Background()); !errors.Is(err, ErrSpawn) {
		t.Fatalf("Start err = %v, want ErrSpawn (exit before ready)", err)
	}

	waitFor(t, "final exit event", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(exits) > 0 && exits[len(exits)-1].Final
	})
	waitFor(t, "stopped state", func() bool { return s.State() == StateStopped })

	mu.Lock()
	got := append([]ExitPayload(nil), exits...)
	mu.Unlock()
	if len(got) != opts.RestartLimit+1 {
		t.Fatalf("exit events = %d, want %d", len(got), opts.RestartLimit+1)
	}
	for i, payload := range got {
		if payload.Code != 1 {
			t.Errorf("exit %d code = %d, want 1", i, payload.Code)
		}
		wantFinal := i == len(got)-1
		if payload.Final != wantFinal {
			t.Errorf("exit %d final = %v, want %v", i, payload.Final, wantFinal)
		}
	}
	if spawned := fs.spawnCount(); spawned != opts.RestartLimit+1 {
		t.Fatalf("spawn count = %d, want %d", spawned, opts.RestartLimit+1)
	}
	if _, err := s.Call(context.Background(), protocol.GetVolumeRequest{}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Call after crash loop err = %v, want ErrNotReady", err)
	}
}

func TestCallTimeoutLeavesWorkerAlive(t *testing.T) {
	fs := &fakeSpawner{behave: respondingWorker(protocol.MethodSeek)}
	opts := fastOpts()
	opts.CallTimeout = 30 * time.Millisecond
	s := newTestSupervisor(t, fs, opts)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	if _, err := s.Call(context.Background(), protocol.SeekRequest{OffsetMillis: 500}); !errors.Is(err, ErrMethodTimeout) {
		t.Fatalf("Call err = %v, want ErrMethodTimeout", err)
	}
	if got := s.State(); got != StateReady {
		t.Fatalf("state after call timeout = %s, want %s", got, StateReady)
	}
	if _, err := s.Call(context.Background(), protocol.GetVolumeRequest{}); err != nil {
		t.Fatalf("Call after timeout: %v", err)
	}
	if got := s.PendingCalls(); got != 0 {
		t.Fatalf("pending calls = %d, want 0", got)
	}
}

func TestEngineErrorReply(t *testing.T) {
	fs := &fakeSpawner{behave: func(p *fakeProc) {
		go func() {
			<-p.terminated
			p.exit(0)
		}()
		enc := protocol.NewEncoder(p.protoW)
		_ = enc.Encode(protocol.NewReady())
		dec := protocol.NewDecoder(p.stdinR)
		for {
			msg, err := dec.Next()
			if err != nil {
				return
			}
			if msg.Type != protocol.TypeMethod {
				continue
			}
			_ = enc.Encode(protocol.NewError(msg.ID, "no media loaded", "stack trace here"))
		}
	}}
	s := newTestSupervisor(t, fs, fastOpts())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	_, err := s.Call(context.Background(), protocol.PlayRequest{})
	if !errors.Is(err, ErrEngine) {
		t.Fatalf("Call err = %v, want ErrEngine", err)
	}
	var engineErr *EngineError
	if !errors.As(err, &engineErr) {
		t.Fatalf("Call err %T does not unwrap to *EngineError", err)
	}
	if engineErr.Message != "no media loaded" || engineErr.Stack != "stack trace here" {
		t.Fatalf("engine error = %+v", engineErr)
	}
	if got := s.State(); got != StateReady {
		t.Fatalf("state after engine error = %s, want %s", got, StateReady)
	}
}

func TestMalformedLineTolerated(t *testing.T) {
	fs := &fakeSpawner{behave: func(p *fakeProc) {
		go func() {
			<-p.terminated
			p.exit(0)
		}()
		enc := protocol.NewEncoder(p.protoW)
		_ = enc.Encode(protocol.NewReady())
		dec := protocol.NewDecoder(p.stdinR)
		for {
			msg, err := dec.Next()
			if err != nil {
				return
			}
			if msg.Type != protocol.TypeMethod {
				continue
			}
			fmt.Fprintf(p.protoW, "this is not json\n")
			reply, _ := protocol.NewResult(msg.ID, 80)
			_ = enc.Encode(reply)
		}
	}}
	s := newTestSupervisor(t, fs, fastOpts())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	raw, err := s.Call(context.Background(), protocol.GetVolumeRequest{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	var volume int
	if err := json.Unmarshal(raw, &volume); err != nil || volume != 80 {
		t.Fatalf("volume = %s, err = %v; want 80", raw, err)
	}
}

func TestEventFanOutAndUnsubscribe(t *testing.T) {
	emit := make(chan int64, 8)
	fs := &fakeSpawner{behave: func(p *fakeProc) {
		go func() {
			<-p.terminated
			p.exit(0)
		}()
		enc := protocol.NewEncoder(p.protoW)
		_ = enc.Encode(protocol.NewReady())
		for millis := range emit {
			event, _ := protocol.NewEvent(protocol.EventTimeChanged, map[string]int64{"millis": millis})
			if err := enc.Encode(event); err != nil {
				return
			}
		}
	}}
	s := newTestSupervisor(t, fs, fastOpts())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		close(emit)
		s.Stop(context.Background())
	}()

	var mu sync.Mutex
	var seen []int64
	unsubscribe := s.Subscribe(protocol.EventTimeChanged, func(data json.RawMessage) {
		var payload struct {
			Millis int64 `json:"millis"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Errorf("unmarshal event: %v", err)
			return
		}
		mu.Lock()
		seen = append(seen, payload.Millis)
		mu.Unlock()
	})

	emit <- 100
	emit <- 200
	waitFor(t, "two events", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	})

	unsubscribe()
	emit <- 300
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	got := append([]int64(nil), seen...)
	mu.Unlock()
	if len(got) != 2 || got[0] != 100 || got[1] != 200 {
		t.Fatalf("events after unsubscribe = %v, want [100 200]", got)
	}
}

func TestStopIsCleanExit(t *testing.T) {
	fs := &fakeSpawner{behave: respondingWorker()}
	s := newTestSupervisor(t, fs, fastOpts())

	crashed := false
	s.Subscribe(EventProcessExited, func(json.RawMessage) { crashed = true })

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := s.State(); got != StateStopped {
		t.Fatalf("state = %s, want %s", got, StateStopped)
	}
	if crashed {
		t.Fatal("clean stop must not publish a process exit event")
	}
	if got := fs.spawnCount(); got != 1 {
		t.Fatalf("spawn count = %d, want 1 (clean stop must not restart)", got)
	}

	// Stopping again is a no-op.
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestStopKillsAfterGrace(t *testing.T) {
	// Worker ignores termination requests entirely.
	fs := &fakeSpawner{behave: func(p *fakeProc) {
		enc := protocol.NewEncoder(p.protoW)
		_ = enc.Encode(protocol.NewReady())
		dec := protocol.NewDecoder(p.stdinR)
		for {
			if _, err := dec.Next(); err != nil {
				// Input gone; keep the process "alive" until killed.
				select {}
			}
		}
	}}
	opts := fastOpts()
	opts.StopGrace = 20 * time.Millisecond
	s := newTestSupervisor(t, fs, opts)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	start := time.Now()
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed < opts.StopGrace {
		t.Fatalf("Stop returned after %s, before the %s grace period", elapsed, opts.StopGrace)
	}
	if got := s.State(); got != StateStopped {
		t.Fatalf("state = %s, want %s", got, StateStopped)
	}
}
