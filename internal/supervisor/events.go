package supervisor

import (
	"encoding/json"
	"sync"
)

// EventProcessExited is published to subscribers when the worker dies
// unexpectedly. Its payload carries the exit code.
const EventProcessExited = "processExited"

// ExitPayload is the EventProcessExited data.
type ExitPayload struct {
	Code     int  `json:"code"`
	Restarts int  `json:"restarts"`
	Final    bool `json:"final"`
}

// hub fans worker events out to host subscribers keyed by event name. Events
// carry no call correlation; delivery order follows wire order per event.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[int]func(json.RawMessage)
	next int
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[int]func(json.RawMessage))}
}

func (h *hub) subscribe(event string, fn func(json.RawMessage)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[event] == nil {
		h.subs[event] = make(map[int]func(json.RawMessage))
	}
	id := h.next
	h.next++
	h.subs[event][id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[event], id)
	}
}

func (h *hub) publish(event string, data json.RawMessage) {
	h.mu.Lock()
	fns := make([]func(json.RawMessage), 0, len(h.subs[event]))
	for _, fn := range h.subs[event] {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(data)
	}
}
