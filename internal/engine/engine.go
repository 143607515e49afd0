package engine

import "time"

// State describes the engine playback lifecycle.
type State string

const (
	StateIdle    State = "idle"
	StateOpening State = "opening"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
	StateEnded   State = "ended"
	StateError   State = "error"
)

// Engine is the playback surface the worker dispatcher mediates. Methods are
// expected to return quickly; the dispatcher processes protocol lines in
// order and a blocking handler stalls the whole input loop.
//
// Subscribe registers an event callback and returns its unsubscribe handle.
// Engines may invoke the callback from internal threads; callers marshal
// events onto the transport themselves.
type Engine interface {
	Open(target string) error
	Play() error
	Pause() error
	Stop() error
	Seek(offset time.Duration) error
	SetPosition(position float64) error

	State() State
	Position() float64
	Duration() time.Duration
	Seekable() bool

	SetVolume(volume int) error
	Volume() int
	SetMute(muted bool) error
	SetRate(rate float64) error

	AudioTracks() []AudioTrack
	SetAudioTrack(trackID int) error
	SetAudioDelay(delay time.Duration) error
	SubtitleTracks() []SubtitleTrack
	SetSubtitleTrack(trackID int) error
	SetSubtitleDelay(delay time.Duration) error

	BindWindow(handle uint64) error
	SetFrameSink(sink FrameSink, width, height int) error

	Subscribe(fn func(Event)) (unsubscribe func())

	Close() error
}

// FrameSink receives decoded frames from the engine. The frame's pixel data
// is only valid for the duration of the call; sinks that keep frames must
// copy them out.
type FrameSink interface {
	WriteFrame(frame Frame) error
}

// FrameSinkFunc adapts a function to the FrameSink interface.
type FrameSinkFunc func(frame Frame) error

func (f FrameSinkFunc) WriteFrame(frame Frame) error { return f(frame) }
