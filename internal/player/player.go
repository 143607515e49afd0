// Package player is the host-side command surface over the supervised
// media-engine worker. It turns the supervisor's raw call channel into typed
// playback, audio, subtitle, and video operations, and exposes typed event
// subscriptions.
package player

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"fermata/internal/engine"
	"fermata/internal/logging"
	"fermata/internal/protocol"
	"fermata/internal/supervisor"
)

// Player drives one supervised worker. Construct with New, then Start before
// issuing commands; all methods are safe for concurrent use.
type Player struct {
	sup    *supervisor.Supervisor
	logger *slog.Logger
}

func New(sup *supervisor.Supervisor, logger *slog.Logger) *Player {
	return &Player{
		sup:    sup,
		logger: logging.NewComponentLogger(logger, "player"),
	}
}

// Supervisor exposes the underlying lifecycle for status surfaces.
func (p *Player) Supervisor() *supervisor.Supervisor { return p.sup }

// Start launches the worker, waits for readiness, and initializes the engine.
func (p *Player) Start(ctx context.Context) error {
	if err := p.sup.Start(ctx); err != nil {
		return err
	}
	if _, err := p.sup.Call(ctx, protocol.InitRequest{}); err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}
	p.logger.Info("engine initialized")
	return nil
}

// Shutdown stops the worker process gracefully.
func (p *Player) Shutdown(ctx context.Context) error {
	return p.sup.Stop(ctx)
}

// Open loads a media target (file path or URL) into the engine.
func (p *Player) Open(ctx context.Context, target string) error {
	_, err := p.sup.Call(ctx, protocol.OpenRequest{Target: target})
	return err
}

func (p *Player) Play(ctx context.Context) error {
	_, err := p.sup.Call(ctx, protocol.PlayRequest{})
	return err
}

func (p *Player) Pause(ctx context.Context) error {
	_, err := p.sup.Call(ctx, protocol.PauseRequest{})
	return err
}

// StopPlayback halts playback inside the engine. The worker process stays up;
// Shutdown is the process-level stop.
func (p *Player) StopPlayback(ctx context.Context) error {
	_, err := p.sup.Call(ctx, protocol.StopRequest{})
	return err
}

// Seek moves playback by a relative offset, negative for backward.
func (p *Player) Seek(ctx context.Context, offset time.Duration) error {
	_, err := p.sup.Call(ctx, protocol.SeekRequest{OffsetMillis: offset.Milliseconds()})
	return err
}

// SetPosition jumps to an absolute position expressed as a 0..1 fraction.
func (p *Player) SetPosition(ctx context.Context, position float64) error {
	_, err := p.sup.Call(ctx, protocol.SetPositionRequest{Position: position})
	return err
}

// Position reports the current playback position as a 0..1 fraction.
func (p *Player) Position(ctx context.Context) (float64, error) {
	return queryValue[float64](ctx, p, protocol.GetPositionRequest{})
}

// Duration reports the loaded media's duration.
func (p *Player) Duration(ctx context.Context) (time.Duration, error) {
	millis, err := queryValue[int64](ctx, p, protocol.GetDurationRequest{})
	if err != nil {
		return 0, err
	}
	return time.Duration(millis) * time.Millisecond, nil
}

// State reports the engine playback state.
func (p *Player) State(ctx context.Context) (engine.State, error) {
	return queryValue[engine.State](ctx, p, protocol.GetStateRequest{})
}

// Seekable reports whether the loaded media supports seeking.
func (p *Player) Seekable(ctx context.Context) (bool, error) {
	return queryValue[bool](ctx, p, protocol.IsSeekableRequest{})
}

// SetVolume sets the audio volume in the 0..100 range.
func (p *Player) SetVolume(ctx context.Context, volume int) error {
	_, err := p.sup.Call(ctx, protocol.SetVolumeRequest{Volume: volume})
	return err
}

func (p *Player) Volume(ctx context.Context) (int, error) {
	return queryValue[int](ctx, p, protocol.GetVolumeRequest{})
}

func (p *Player) SetMute(ctx context.Context, muted bool) error {
	_, err := p.sup.Call(ctx, protocol.SetMuteRequest{Muted: muted})
	return err
}

// SetRate changes the playback speed multiplier.
func (p *Player) SetRate(ctx context.Context, rate float64) error {
	_, err := p.sup.Call(ctx, protocol.SetRateRequest{Rate: rate})
	return err
}

func (p *Player) AudioTracks(ctx context.Context) ([]engine.AudioTrack, error) {
	return queryValue[[]engine.AudioTrack](ctx, p, protocol.GetAudioTracksRequest{})
}

func (p *Player) SetAudioTrack(ctx context.Context, trackID int) error {
	_, err := p.sup.Call(ctx, protocol.SetAudioTrackRequest{TrackID: trackID})
	return err
}

func (p *Player) SetAudioDelay(ctx context.Context, delay time.Duration) error {
	_, err := p.sup.Call(ctx, protocol.SetAudioDelayRequest{DelayMillis: delay.Milliseconds()})
	return err
}

func (p *Player) SubtitleTracks(ctx context.Context) ([]engine.SubtitleTrack, error) {
	return queryValue[[]engine.SubtitleTrack](ctx, p, protocol.GetSubtitleTracksRequest{})
}

func (p *Player) SetSubtitleTrack(ctx context.Context, trackID int) error {
	_, err := p.sup.Call(ctx, protocol.SetSubtitleTrackRequest{TrackID: trackID})
	return err
}

func (p *Player) SetSubtitleDelay(ctx context.Context, delay time.Duration) error {
	_, err := p.sup.Call(ctx, protocol.SetSubtitleDelayRequest{DelayMillis: delay.Milliseconds()})
	return err
}

// BindWindow attaches the engine's video output to a native surface handle.
// The handle is opaque here and interpreted by the engine bindings.
func (p *Player) BindWindow(ctx context.Context, handle uint64) error {
	_, err := p.sup.Call(ctx, protocol.WindowRequest{Handle: handle})
	return err
}

// SetupFrameSink switches the worker into buffered frame delivery; decoded
// frames then arrive as videoFrame events.
func (p *Player) SetupFrameSink(ctx context.Context, width, height int) error {
	_, err := p.sup.Call(ctx, protocol.SetupFrameSinkRequest{Width: width, Height: height})
	return err
}

// Shortcut triggers a named playback shortcut such as "toggle-pause" or
// "volume-up".
func (p *Player) Shortcut(ctx context.Context, name string) error {
	_, err := p.sup.Call(ctx, protocol.ShortcutRequest{Name: name})
	return err
}

func queryValue[T any](ctx context.Context, p *Player, req protocol.Request) (T, error) {
	var value T
	raw, err := p.sup.Call(ctx, req)
	if err != nil {
		return value, err
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, fmt.Errorf("decode %s result: %w", req.Method(), err)
	}
	return value, nil
}
