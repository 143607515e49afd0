package player

import (
	"encoding/json"
	"time"

	"fermata/internal/engine"
	"fermata/internal/logging"
	"fermata/internal/protocol"
	"fermata/internal/supervisor"
)

// Frame is a decoded video frame delivered through the frame sink. Pix holds
// tightly packed pixel data in the named format.
type Frame struct {
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	Format          string `json:"format"`
	TimestampMillis int64  `json:"timestampMillis"`
	Pix             []byte `json:"pix"`
}

// Subscribe registers a raw handler for a worker event by name and returns
// the unsubscribe handle. The typed On* helpers below cover the usual cases.
func (p *Player) Subscribe(event string, fn func(data json.RawMessage)) func() {
	return p.sup.Subscribe(event, fn)
}

// OnTimeChanged delivers the current playback time. Throttled worker-side.
func (p *Player) OnTimeChanged(fn func(t time.Duration)) func() {
	return subscribeTyped(p, protocol.EventTimeChanged, func(payload engine.TimeEvent) {
		fn(time.Duration(payload.Millis) * time.Millisecond)
	})
}

// OnPositionChanged delivers the playback position as a 0..1 fraction.
func (p *Player) OnPositionChanged(fn func(position float64)) func() {
	return subscribeTyped(p, protocol.EventPositionChanged, func(payload engine.PositionEvent) {
		fn(payload.Position)
	})
}

func (p *Player) OnStateChanged(fn func(state engine.State)) func() {
	return subscribeTyped(p, protocol.EventStateChanged, func(payload engine.StateEvent) {
		fn(payload.State)
	})
}

func (p *Player) OnDurationChanged(fn func(d time.Duration)) func() {
	return subscribeTyped(p, protocol.EventDurationChanged, func(payload engine.DurationEvent) {
		fn(time.Duration(payload.Millis) * time.Millisecond)
	})
}

func (p *Player) OnEndReached(fn func()) func() {
	return p.sup.Subscribe(protocol.EventEndReached, func(json.RawMessage) { fn() })
}

// OnError delivers engine-level playback failures pushed outside any call.
func (p *Player) OnError(fn func(message string)) func() {
	return subscribeTyped(p, protocol.EventError, func(payload engine.ErrorEvent) {
		fn(payload.Message)
	})
}

func (p *Player) OnAudioVolume(fn func(volume int)) func() {
	return subscribeTyped(p, protocol.EventAudioVolume, func(payload engine.VolumeEvent) {
		fn(payload.Volume)
	})
}

// OnVideoFrame delivers decoded frames once SetupFrameSink is active.
func (p *Player) OnVideoFrame(fn func(frame Frame)) func() {
	return subscribeTyped(p, protocol.EventVideoFrame, fn)
}

// OnProcessExited reports unexpected worker deaths, including whether the
// supervisor gave up restarting.
func (p *Player) OnProcessExited(fn func(exit supervisor.ExitPayload)) func() {
	return subscribeTyped(p, supervisor.EventProcessExited, fn)
}

func subscribeTyped[T any](p *Player, event string, fn func(payload T)) func() {
	return p.sup.Subscribe(event, func(data json.RawMessage) {
		var payload T
		if err := json.Unmarshal(data, &payload); err != nil {
			p.logger.Warn("dropping undecodable event",
				logging.String("event", event),
				logging.Error(err))
			return
		}
		fn(payload)
	})
}
