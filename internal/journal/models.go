package journal

import "time"

// Session is one run of the player from worker start to shutdown.
type Session struct {
	ID          int64
	MediaTarget string
	StartedAt   time.Time
	EndedAt     *time.Time
}

// LifecycleEvent is one worker lifecycle transition within a session, for
// example starting, ready, crashed, or stopped.
type LifecycleEvent struct {
	ID         int64
	SessionID  int64
	State      string
	Detail     string
	RecordedAt time.Time
}
