package engine

// Event is the closed set of notifications engines push outside the
// request/response flow. Each variant names the wire event it becomes.
type Event interface {
	EventName() string
}

// TimeEvent reports the current playback time. Fires rapidly; the dispatcher
// throttles it before it reaches the wire.
type TimeEvent struct {
	Millis int64 `json:"millis"`
}

// PositionEvent reports the playback position as a 0..1 fraction. Throttled
// like TimeEvent.
type PositionEvent struct {
	Position float64 `json:"position"`
}

// StateEvent reports a playback state transition.
type StateEvent struct {
	State State `json:"state"`
}

// DurationEvent reports the media duration once known.
type DurationEvent struct {
	Millis int64 `json:"millis"`
}

// EndReachedEvent signals the end of the current media.
type EndReachedEvent struct{}

// ErrorEvent reports an engine-level playback failure.
type ErrorEvent struct {
	Message string `json:"message"`
}

// VolumeEvent reports an audio volume change.
type VolumeEvent struct {
	Volume int `json:"volume"`
}

func (TimeEvent) EventName() string       { return "timeChanged" }
func (PositionEvent) EventName() string   { return "positionChanged" }
func (StateEvent) EventName() string      { return "stateChanged" }
func (DurationEvent) EventName() string   { return "durationChanged" }
func (EndReachedEvent) EventName() string { return "endReached" }
func (ErrorEvent) EventName() string      { return "error" }
func (VolumeEvent) EventName() string     { return "audioVolume" }
