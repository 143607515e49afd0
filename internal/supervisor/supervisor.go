package supervisor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fermata/internal/logging"
	"fermata/internal/protocol"
)

// State is the supervisor lifecycle:
// stopped -> starting -> ready -> (crashed -> starting | stopping -> stopped).
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateReady    State = "ready"
	StateCrashed  State = "crashed"
	StateStopping State = "stopping"
)

const (
	DefaultReadyTimeout   = 10 * time.Second
	DefaultCallTimeout    = 30 * time.Second
	DefaultStopGrace      = 5 * time.Second
	DefaultRestartLimit   = 3
	DefaultRestartBackoff = time.Second
)

// Options tune supervisor timing and recovery. Zero values take the
// defaults above.
type Options struct {
	ReadyTimeout   time.Duration
	CallTimeout    time.Duration
	StopGrace      time.Duration
	RestartLimit   int
	RestartBackoff time.Duration
	Logger         *slog.Logger

	// OnStateChange observes lifecycle transitions (journaling, UI status).
	// Called outside supervisor locks; may be nil.
	OnStateChange func(state State)
}

func (o *Options) normalize() {
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = DefaultReadyTimeout
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.StopGrace <= 0 {
		o.StopGrace = DefaultStopGrace
	}
	if o.RestartLimit <= 0 {
		o.RestartLimit = DefaultRestartLimit
	}
	if o.RestartBackoff <= 0 {
		o.RestartBackoff = DefaultRestartBackoff
	}
}

type callOutcome struct {
	result json.RawMessage
	err    error
}

// pendingCall is the bookkeeping for one in-flight method call. The map of
// pending calls is owned by the supervisor and cleared wholesale, rejecting
// every entry, when the worker exits.
type pendingCall struct {
	timer *time.Timer
	ch    chan callOutcome
}

// Supervisor owns the worker process and presents a request/response plus
// event API to the host application. Construct with New; one supervisor
// manages one worker at a time across restarts.
type Supervisor struct {
	spawn  Spawner
	opts   Options
	logger *slog.Logger
	events *hub

	mu            sync.Mutex
	state         State
	proc          Process
	enc           *protocol.Encoder
	pending       map[string]*pendingCall
	restarts      int
	stopRequested bool
	exitCh        chan struct{}
}

// New builds a supervisor around the given spawner.
func New(spawn Spawner, opts Options) (*Supervisor, error) {
	if spawn == nil {
		return nil, errors.New("supervisor requires a spawner")
	}
	opts.normalize()
	return &Supervisor{
		spawn:   spawn,
		opts:    opts,
		logger:  logging.NewComponentLogger(opts.Logger, "supervisor"),
		events:  newHub(),
		state:   StateStopped,
		pending: map[string]*pendingCall{},
	}, nil
}

// State reports the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Restarts reports the consecutive crash-triggered restart count. It resets
// to zero whenever the worker reaches ready.
func (s *Supervisor) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// PendingCalls reports the number of in-flight method calls.
func (s *Supervisor) PendingCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Subscribe registers a handler for a worker event by name and returns its
// unsubscribe handle. Events carry no correlation to any call.
func (s *Supervisor) Subscribe(event string, fn func(data json.RawMessage)) func() {
	return s.events.subscribe(event, fn)
}

// Start spawns the worker and blocks until it signals ready, the readiness
// timeout elapses, or ctx is canceled. Starting an already running
// supervisor fails with ErrAlreadyStarted.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateStopped, StateCrashed:
	default:
		s.mu.Unlock()
		return Wrap(ErrAlreadyStarted, "start", "state "+string(s.state), nil)
	}
	s.state = StateStarting
	s.mu.Unlock()
	s.notify(StateStarting)

	proc, err := s.spawn()
	if err == nil {
		err = proc.Start()
	}
	if err != nil {
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		s.notify(StateStopped)
		return Wrap(ErrSpawn, "start", "", err)
	}

	readyCh := make(chan struct{})
	exitCh := make(chan struct{})

	s.mu.Lock()
	s.proc = proc
	s.enc = protocol.NewEncoder(proc.Stdin())
	s.stopRequested = false
	s.exitCh = exitCh
	s.mu.Unlock()

	go s.readProtocol(proc, readyCh)
	go s.readDiagnostics(proc)
	go s.watchExit(proc, exitCh)

	readyTimer := time.NewTimer(s.opts.ReadyTimeout)
	defer readyTimer.Stop()

	select {
	case <-readyCh:
		s.mu.Lock()
		s.state = StateReady
		s.restarts = 0
		s.mu.Unlock()
		s.notify(StateReady)
		s.logger.Info("worker ready")
		return nil
	case <-exitCh:
		return Wrap(ErrSpawn, "start", "worker exited before ready", nil)
	case <-readyTimer.C:
		s.abortStartup(proc)
		return Wrap(ErrReadyTimeout, "start", fmt.Sprintf("no ready signal within %s", s.opts.ReadyTimeout), nil)
	case <-ctx.Done():
		s.abortStartup(proc)
		return ctx.Err()
	}
}

// abortStartup kills a worker that never became ready, marking the exit as
// host-requested so the crash path does not try to restart it.
func (s *Supervisor) abortStartup(proc Process) {
	s.mu.Lock()
	s.stopRequested = true
	s.mu.Unlock()
	_ = proc.Kill()
}

// Call sends one typed method request and blocks for its correlated result,
// the per-call timeout, or ctx cancellation. Only valid in the ready state.
// A timed-out call is abandoned, not fatal: the worker stays alive.
func (s *Supervisor) Call(ctx context.Context, req protocol.Request) (json.RawMessage, error) {
	s.mu.Lock()
	if s.state != StateReady {
		state := s.state
		s.mu.Unlock()
		return nil, Wrap(ErrNotReady, string(req.Method()), "state "+string(state), nil)
	}
	enc := s.enc
	id := uuid.NewString()
	pc := &pendingCall{ch: make(chan callOutcome, 1)}
	s.pending[id] = pc
	s.mu.Unlock()

	msg, err := protocol.NewMethod(id, req)
	if err != nil {
		s.removePending(id)
		return nil, err
	}
	if err := enc.Encode(msg); err != nil {
		s.removePending(id)
		return nil, Wrap(ErrProcessExited, string(req.Method()), "write to worker", err)
	}

	timeout := s.opts.CallTimeout
	timer := time.AfterFunc(timeout, func() {
		s.resolve(id, callOutcome{err: Wrap(ErrMethodTimeout, string(req.Method()),
			fmt.Sprintf("no response within %s", timeout), nil)})
	})

	s.mu.Lock()
	if current, ok := s.pending[id]; ok && current == pc {
		pc.timer = timer
		s.mu.Unlock()
	} else {
		s.mu.Unlock()
		timer.Stop()
	}

	select {
	case out := <-pc.ch:
		return out.result, out.err
	case <-ctx.Done():
		s.removePending(id)
		return nil, ctx.Err()
	}
}

// Stop requests graceful termination, waits up to the grace period, then
// force-kills. It returns once the process has actually exited; all pending
// calls are rejected on the way out.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	proc := s.proc
	exitCh := s.exitCh
	s.stopRequested = true
	if proc == nil {
		s.state = StateStopped
		s.mu.Unlock()
		s.notify(StateStopped)
		return nil
	}
	s.state = StateStopping
	s.mu.Unlock()
	s.notify(StateStopping)

	if err := proc.Terminate(); err != nil {
		s.logger.Warn("terminate signal failed", logging.Error(err))
	}

	grace := time.NewTimer(s.opts.StopGrace)
	defer grace.Stop()
	select {
	case <-exitCh:
		return nil
	case <-ctx.Done():
		_ = proc.Kill()
		return ctx.Err()
	case <-grace.C:
		s.logger.Warn("worker did not exit within grace period, killing",
			logging.Duration("grace", s.opts.StopGrace))
		_ = proc.Kill()
	}

	select {
	case <-exitCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) readProtocol(proc Process, readyCh chan struct{}) {
	dec := protocol.NewDecoder(proc.Protocol())
	readySeen := false
	for {
		msg, err := dec.Next()
		if errors.Is(err, protocol.ErrMalformedLine) {
			// One malformed line must not take down the channel.
			s.logger.Warn("dropping malformed line from worker", logging.Error(err))
			continue
		}
		if err != nil {
			return
		}
		switch msg.Type {
		case protocol.TypeReady:
			if !readySeen {
				readySeen = true
				close(readyCh)
			}
		case protocol.TypeResult:
			s.resolve(msg.ID, callOutcome{result: msg.Result})
		case protocol.TypeError:
			engineErr := &EngineError{Message: "unknown error"}
			if msg.Error != nil {
				engineErr.Message = msg.Error.Message
				engineErr.Stack = msg.Error.Stack
			}
			s.resolve(msg.ID, callOutcome{err: engineErr})
		case protocol.TypeEvent:
			s.events.publish(msg.Event, msg.Data)
		case protocol.TypeLog:
			s.routeLog(msg)
		default:
			s.logger.Warn("ignoring unexpected message from worker",
				logging.String("type", string(msg.Type)))
		}
	}
}

// readDiagnostics drains the worker's free-form stderr stream into the host
// log so native engine chatter is not lost.
func (s *Supervisor) readDiagnostics(proc Process) {
	scanner := bufio.NewScanner(proc.Diagnostics())
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		s.logger.Debug("worker stderr", logging.String("line", line))
	}
}

func (s *Supervisor) routeLog(msg protocol.Message) {
	attrs := logging.Args(logging.String("origin", "worker"))
	switch strings.ToLower(msg.Level) {
	case "debug":
		s.logger.Debug(msg.Text, attrs...)
	case "warn":
		s.logger.Warn(msg.Text, attrs...)
	case "error":
		s.logger.Error(msg.Text, attrs...)
	default:
		s.logger.Info(msg.Text, attrs...)
	}
}

// watchExit handles the worker leaving, intentionally or not. Crash exits
// reject all pending calls, surface an exit event, and trigger a bounded
// automatic restart after backoff.
func (s *Supervisor) watchExit(proc Process, exitCh chan struct{}) {
	st := <-proc.Done()

	s.mu.Lock()
	intentional := s.stopRequested || st.Code == 0
	failed := s.takePendingLocked()
	s.proc = nil
	s.enc = nil
	restart := false
	if intentional {
		s.state = StateStopped
	} else {
		s.restarts++
		if s.restarts <= s.opts.RestartLimit {
			s.state = StateCrashed
			restart = true
		} else {
			// Crash loop exceeded the bound: stay down, surface the event.
			s.state = StateStopped
		}
	}
	restarts := s.restarts
	state := s.state
	s.mu.Unlock()

	exitErr := Wrap(ErrProcessExited, "call", fmt.Sprintf("worker exited with code %d", st.Code), nil)
	for _, pc := range failed {
		if pc.timer != nil {
			pc.timer.Stop()
		}
		pc.ch <- callOutcome{err: exitErr}
	}
	close(exitCh)
	s.notify(state)

	if intentional {
		s.logger.Info("worker stopped", logging.Int("exit_code", st.Code))
		return
	}

	payload, _ := json.Marshal(ExitPayload{Code: st.Code, Restarts: restarts, Final: !restart})
	s.events.publish(EventProcessExited, payload)

	if !restart {
		s.logger.Error("worker crash loop exceeded restart limit",
			logging.Int("exit_code", st.Code),
			logging.Int("restart_limit", s.opts.RestartLimit),
			logging.Error(Wrap(ErrRestartLimit, "restart", "", nil)))
		return
	}

	s.logger.Warn("worker crashed, scheduling restart",
		logging.Int("exit_code", st.Code),
		logging.Int("restart", restarts),
		logging.Duration("backoff", s.opts.RestartBackoff))
	go s.restartAfterBackoff()
}

func (s *Supervisor) restartAfterBackoff() {
	time.Sleep(s.opts.RestartBackoff)

	s.mu.Lock()
	if s.state != StateCrashed {
		// Stopped (or restarted) by someone else in the meantime.
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.Start(context.Background()); err != nil {
		s.logger.Error("automatic restart failed", logging.Error(err))
	}
}

func (s *Supervisor) resolve(id string, out callOutcome) {
	s.mu.Lock()
	pc, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if pc.timer != nil {
		pc.timer.Stop()
	}
	pc.ch <- out
}

func (s *Supervisor) removePending(id string) {
	s.mu.Lock()
	pc, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if ok && pc.timer != nil {
		pc.timer.Stop()
	}
}

func (s *Supervisor) takePendingLocked() []*pendingCall {
	failed := make([]*pendingCall, 0, len(s.pending))
	for _, pc := range s.pending {
		failed = append(failed, pc)
	}
	s.pending = map[string]*pendingCall{}
	return failed
}

func (s *Supervisor) notify(state State) {
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(state)
	}
}
