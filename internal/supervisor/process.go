package supervisor

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

// ExitStatus describes how a worker process ended. Code 0 together with a
// host-requested stop means intentional shutdown; anything else is a crash.
type ExitStatus struct {
	Code int
	Err  error
}

// Process is the supervisor's view of a spawned worker: two output streams
// (structured protocol, free-form diagnostics), one input stream, and
// termination control. The exec implementation is the production path; tests
// substitute an in-process fake.
type Process interface {
	Start() error
	Stdin() io.Writer
	Protocol() io.Reader
	Diagnostics() io.Reader
	Terminate() error
	Kill() error
	Done() <-chan ExitStatus
}

// Spawner creates a fresh worker process for each (re)start.
type Spawner func() (Process, error)

// execProcess runs the worker binary with the host environment passed
// through unchanged, so the native engine can reach the platform display and
// audio subsystems.
type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
	done   chan ExitStatus
}

// NewExecSpawner builds the production spawner for the given worker binary
// and arguments.
func NewExecSpawner(binary string, args ...string) Spawner {
	return func() (Process, error) {
		cmd := exec.Command(binary, args...)
		cmd.Env = os.Environ()

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("stdout pipe: %w", err)
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("stderr pipe: %w", err)
		}
		return &execProcess{
			cmd:    cmd,
			stdin:  stdin,
			stdout: stdout,
			stderr: stderr,
			done:   make(chan ExitStatus, 1),
		}, nil
	}
}

func (p *execProcess) Start() error {
	if err := p.cmd.Start(); err != nil {
		return err
	}
	go func() {
		err := p.cmd.Wait()
		code := -1
		if p.cmd.ProcessState != nil {
			code = p.cmd.ProcessState.ExitCode()
		}
		p.done <- ExitStatus{Code: code, Err: err}
	}()
	return nil
}

func (p *execProcess) Stdin() io.Writer { return p.stdin }

func (p *execProcess) Protocol() io.Reader { return p.stdout }

func (p *execProcess) Diagnostics() io.Reader { return p.stderr }

func (p *execProcess) Terminate() error {
	if p.cmd.Process == nil {
		return nil
	}
	// Closing stdin lets the dispatcher notice EOF and dispose the engine;
	// SIGTERM covers workers stuck outside the input loop.
	_ = p.stdin.Close()
	return p.cmd.Process.Signal(unix.SIGTERM)
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Signal(unix.SIGKILL)
}

func (p *execProcess) Done() <-chan ExitStatus { return p.done }
