package supervisor

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for supervisor failures. Callers classify with errors.Is;
// Wrap attaches operation context while preserving the marker.
var (
	ErrSpawn          = errors.New("worker spawn failed")
	ErrReadyTimeout   = errors.New("worker readiness timeout")
	ErrMethodTimeout  = errors.New("method call timeout")
	ErrProcessExited  = errors.New("worker process exited")
	ErrRestartLimit   = errors.New("restart limit exceeded")
	ErrNotReady       = errors.New("worker not ready")
	ErrAlreadyStarted = errors.New("worker already started")
	ErrEngine         = errors.New("engine error")
)

// Wrap builds an error that carries operation context while tagging it with
// the provided marker for later classification.
func Wrap(marker error, operation, message string, err error) error {
	detail := buildDetail(operation, message)
	if marker == nil {
		marker = ErrProcessExited
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(operation, message string) string {
	parts := make([]string, 0, 2)
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "supervisor failure"
	}
	return strings.Join(parts, ": ")
}

// EngineError is a handler-level failure reported by the worker, carried on
// the wire as an error message with the originating call id.
type EngineError struct {
	Message string
	Stack   string
}

func (e *EngineError) Error() string {
	if e.Stack != "" {
		return fmt.Sprintf("engine error: %s\n%s", e.Message, e.Stack)
	}
	return "engine error: " + e.Message
}

func (e *EngineError) Unwrap() error { return ErrEngine }
