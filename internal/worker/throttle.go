package worker

import (
	"sync"
	"time"

	"fermata/internal/protocol"
)

// DefaultThrottleInterval is the minimum spacing between emissions of a
// rapidly firing event. Intermediate updates are dropped; the next emission
// carries the latest value.
const DefaultThrottleInterval = 250 * time.Millisecond

// eventThrottle rate-limits the high-frequency event names. All other events
// pass through untouched.
type eventThrottle struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
	now      func() time.Time
}

func newEventThrottle(interval time.Duration) *eventThrottle {
	if interval <= 0 {
		interval = DefaultThrottleInterval
	}
	return &eventThrottle{
		interval: interval,
		last:     make(map[string]time.Time, 2),
		now:      time.Now,
	}
}

func throttledEvent(name string) bool {
	return name == protocol.EventTimeChanged || name == protocol.EventPositionChanged
}

// allow reports whether an event may be emitted now. State changes, errors,
// end-of-stream, and volume updates always pass.
func (t *eventThrottle) allow(name string) bool {
	if !throttledEvent(name) {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if last, ok := t.last[name]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.last[name] = now
	return true
}
