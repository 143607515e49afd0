package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type discriminates wire messages.
type Type string

const (
	TypeMethod Type = "method"
	TypeResult Type = "result"
	TypeError  Type = "error"
	TypeEvent  Type = "event"
	TypeLog    Type = "log"
	TypeReady  Type = "ready"
)

// Event names pushed by the worker, uncorrelated to any call.
const (
	EventTimeChanged     = "timeChanged"
	EventStateChanged    = "stateChanged"
	EventDurationChanged = "durationChanged"
	EventPositionChanged = "positionChanged"
	EventEndReached      = "endReached"
	EventError           = "error"
	EventAudioVolume     = "audioVolume"
	EventVideoFrame      = "videoFrame"
)

// ErrorPayload carries a worker-side failure for a specific call.
type ErrorPayload struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Message is the unit of communication, one per transport line.
//
// The id field correlates a method call with its eventual result or error and
// is absent on event, log, and ready messages.
type Message struct {
	Type   Type              `json:"type"`
	ID     string            `json:"id,omitempty"`
	Method Method            `json:"method,omitempty"`
	Args   []json.RawMessage `json:"args,omitempty"`
	Result json.RawMessage   `json:"result,omitempty"`
	Error  *ErrorPayload     `json:"error,omitempty"`
	Event  string            `json:"event,omitempty"`
	Data   json.RawMessage   `json:"data,omitempty"`
	Level  string            `json:"level,omitempty"`
	Text   string            `json:"text,omitempty"`
}

// Validate checks the structural rules the receiving side relies on.
func (m Message) Validate() error {
	switch m.Type {
	case TypeMethod:
		if m.ID == "" {
			return errors.New("method message requires id")
		}
		if m.Method == "" {
			return errors.New("method message requires method name")
		}
	case TypeResult, TypeError:
		if m.ID == "" {
			return fmt.Errorf("%s message requires id", m.Type)
		}
	case TypeEvent:
		if m.Event == "" {
			return errors.New("event message requires event name")
		}
	case TypeLog, TypeReady:
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}

// NewMethod builds a tagged call message from a typed request.
func NewMethod(id string, req Request) (Message, error) {
	args, err := marshalArgs(req)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s args: %w", req.Method(), err)
	}
	return Message{Type: TypeMethod, ID: id, Method: req.Method(), Args: args}, nil
}

// NewResult builds the success reply for the call identified by id.
func NewResult(id string, value any) (Message, error) {
	var raw json.RawMessage
	if value != nil {
		encoded, err := json.Marshal(value)
		if err != nil {
			return Message{}, fmt.Errorf("marshal result: %w", err)
		}
		raw = encoded
	}
	return Message{Type: TypeResult, ID: id, Result: raw}, nil
}

// NewError builds the failure reply for the call identified by id.
func NewError(id, message, stack string) Message {
	return Message{Type: TypeError, ID: id, Error: &ErrorPayload{Message: message, Stack: stack}}
}

// NewEvent builds an uncorrelated event push.
func NewEvent(name string, data any) (Message, error) {
	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return Message{}, fmt.Errorf("marshal event %s: %w", name, err)
		}
		raw = encoded
	}
	return Message{Type: TypeEvent, Event: name, Data: raw}, nil
}

// NewLog builds a diagnostic record routed to the host logging sink.
func NewLog(level, text string) Message {
	return Message{Type: TypeLog, Level: level, Text: text}
}

// NewReady builds the one-shot readiness signal.
func NewReady() Message {
	return Message{Type: TypeReady}
}
