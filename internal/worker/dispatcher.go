package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"fermata/internal/engine"
	"fermata/internal/framepool"
	"fermata/internal/logging"
	"fermata/internal/protocol"
)

// framePayload is the videoFrame event body. Pix marshals as base64.
type framePayload struct {
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	Format          string `json:"format"`
	TimestampMillis int64  `json:"timestampMillis"`
	Pix             []byte `json:"pix"`
}

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithThrottleInterval overrides the minimum spacing of rapid events.
func WithThrottleInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		d.throttle = newEventThrottle(interval)
	}
}

// WithPoolCount overrides the frame pool slot count.
func WithPoolCount(count int) Option {
	return func(d *Dispatcher) {
		if count > 0 {
			d.poolCount = count
		}
	}
}

// WithoutFrameTransport disables buffered frame delivery; setupFrameSink
// calls then fail loudly instead of silently dropping frames.
func WithoutFrameTransport() Option {
	return func(d *Dispatcher) {
		d.framesEnabled = false
	}
}

// Dispatcher mediates all access to the media engine from the protocol
// stream. Construct with New, then Run until the input stream closes.
type Dispatcher struct {
	enc       *protocol.Encoder
	dec       *protocol.Decoder
	newEngine func() engine.Engine
	logger    *slog.Logger
	throttle  *eventThrottle

	poolCount     int
	framesEnabled bool

	mu          sync.Mutex
	eng         engine.Engine
	unsubscribe func()
	pool        *framepool.Pool
	closed      bool
}

// New wires a dispatcher over the worker's transport streams. newEngine is
// invoked lazily on the first init call.
func New(r io.Reader, w io.Writer, newEngine func() engine.Engine, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		enc:           protocol.NewEncoder(w),
		dec:           protocol.NewDecoder(r),
		newEngine:     newEngine,
		logger:        logging.NewComponentLogger(logger, "worker"),
		throttle:      newEventThrottle(DefaultThrottleInterval),
		poolCount:     framepool.DefaultCount,
		framesEnabled: true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run emits the ready signal and processes method messages until the input
// stream ends or ctx is canceled. The engine is disposed before Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.Close()

	// Readiness means "able to receive commands", not "engine initialized".
	if err := d.enc.Encode(protocol.NewReady()); err != nil {
		return fmt.Errorf("emit ready: %w", err)
	}
	d.logger.Info("dispatcher ready")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := d.dec.Next()
		if errors.Is(err, protocol.ErrMalformedLine) {
			d.logger.Warn("skipping malformed protocol line", logging.Error(err))
			d.emitLog("warn", "malformed protocol line dropped")
			continue
		}
		if errors.Is(err, io.EOF) {
			d.logger.Info("input stream closed, shutting down")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read protocol stream: %w", err)
		}
		if msg.Type != protocol.TypeMethod {
			d.logger.Warn("ignoring non-method message", logging.String("type", string(msg.Type)))
			continue
		}
		d.handle(msg)
	}
}

func (d *Dispatcher) handle(msg protocol.Message) {
	req, err := protocol.DecodeRequest(msg.Method, msg.Args)
	if err != nil {
		d.reply(protocol.NewError(msg.ID, err.Error(), ""))
		return
	}

	result, stack, err := d.dispatch(req)
	if err != nil {
		d.reply(protocol.NewError(msg.ID, err.Error(), stack))
		return
	}
	reply, err := protocol.NewResult(msg.ID, result)
	if err != nil {
		d.reply(protocol.NewError(msg.ID, err.Error(), ""))
		return
	}
	d.reply(reply)
}

// dispatch runs one handler, converting panics into tagged errors so the
// input loop survives any handler failure.
func (d *Dispatcher) dispatch(req protocol.Request) (result any, stack string, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack = string(debug.Stack())
			err = fmt.Errorf("handler %s panicked: %v", req.Method(), r)
			d.logger.Error("handler panic recovered",
				logging.String("method", string(req.Method())),
				logging.Any("panic", r))
		}
	}()

	if _, ok := req.(protocol.InitRequest); ok {
		return d.handleInit()
	}

	eng := d.currentEngine()
	if eng == nil {
		return nil, "", errors.New("engine not initialized, call init first")
	}

	switch r := req.(type) {
	case protocol.OpenRequest:
		return nil, "", eng.Open(r.Target)
	case protocol.PlayRequest:
		return nil, "", eng.Play()
	case protocol.PauseRequest:
		return nil, "", eng.Pause()
	case protocol.StopRequest:
		return nil, "", eng.Stop()
	case protocol.SeekRequest:
		return nil, "", eng.Seek(time.Duration(r.OffsetMillis) * time.Millisecond)
	case protocol.SetPositionRequest:
		return nil, "", eng.SetPosition(r.Position)
	case protocol.GetPositionRequest:
		return eng.Position(), "", nil
	case protocol.GetDurationRequest:
		return eng.Duration().Milliseconds(), "", nil
	case protocol.GetStateRequest:
		return eng.State(), "", nil
	case protocol.IsSeekableRequest:
		return eng.Seekable(), "", nil
	case protocol.SetVolumeRequest:
		return nil, "", eng.SetVolume(r.Volume)
	case protocol.GetVolumeRequest:
		return eng.Volume(), "", nil
	case protocol.SetMuteRequest:
		return nil, "", eng.SetMute(r.Muted)
	case protocol.SetRateRequest:
		return nil, "", eng.SetRate(r.Rate)
	case protocol.GetAudioTracksRequest:
		return eng.AudioTracks(), "", nil
	case protocol.SetAudioTrackRequest:
		return nil, "", eng.SetAudioTrack(r.TrackID)
	case protocol.SetAudioDelayRequest:
		return nil, "", eng.SetAudioDelay(time.Duration(r.DelayMillis) * time.Millisecond)
	case protocol.GetSubtitleTracksRequest:
		return eng.SubtitleTracks(), "", nil
	case protocol.SetSubtitleTrackRequest:
		return nil, "", eng.SetSubtitleTrack(r.TrackID)
	case protocol.SetSubtitleDelayRequest:
		return nil, "", eng.SetSubtitleDelay(time.Duration(r.DelayMillis) * time.Millisecond)
	case protocol.WindowRequest:
		return nil, "", eng.BindWindow(r.Handle)
	case protocol.SetupFrameSinkRequest:
		return nil, "", d.setupFrameSink(eng, r.Width, r.Height)
	case protocol.ShortcutRequest:
		return nil, "", d.runShortcut(eng, r.Name)
	default:
		return nil, "", fmt.Errorf("unhandled request %s", req.Method())
	}
}

// handleInit creates the engine on first use; repeat calls are idempotent.
func (d *Dispatcher) handleInit() (any, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, "", errors.New("dispatcher closed")
	}
	if d.eng != nil {
		return true, "", nil
	}
	eng := d.newEngine()
	if eng == nil {
		return nil, "", errors.New("engine factory returned nil")
	}
	d.eng = eng
	d.unsubscribe = eng.Subscribe(d.onEngineEvent)
	d.logger.Info("engine initialized")
	return true, "", nil
}

func (d *Dispatcher) currentEngine() engine.Engine {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.eng
}

func (d *Dispatcher) setupFrameSink(eng engine.Engine, width, height int) error {
	if !d.framesEnabled {
		return errors.New("frame transport not established")
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("frame sink dimensions %dx%d invalid", width, height)
	}
	size := engine.PixelFormatRGBA32.FrameSize(width, height)

	d.mu.Lock()
	var err error
	if d.pool == nil {
		d.pool, err = framepool.New(d.poolCount, size)
	} else {
		err = d.pool.Resize(size)
	}
	pool := d.pool
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("frame pool: %w", err)
	}

	sink := engine.FrameSinkFunc(func(frame engine.Frame) error {
		return d.deliverFrame(pool, frame)
	})
	return eng.SetFrameSink(sink, width, height)
}

// deliverFrame copies a decoded frame into a pool buffer and ships it as a
// videoFrame event. With every slot in flight the frame is dropped; the pool
// is the backpressure bound, never the allocator.
func (d *Dispatcher) deliverFrame(pool *framepool.Pool, frame engine.Frame) error {
	buf, err := pool.Acquire()
	if errors.Is(err, framepool.ErrExhausted) {
		d.logger.Debug("frame dropped, pool exhausted")
		return nil
	}
	if err != nil {
		return err
	}
	defer buf.Release()

	n := copy(buf.Pix, frame.Pix)
	msg, err := protocol.NewEvent(protocol.EventVideoFrame, framePayload{
		Width:           frame.Width,
		Height:          frame.Height,
		Format:          frame.Format.String(),
		TimestampMillis: frame.TimestampMillis,
		Pix:             buf.Pix[:n],
	})
	if err != nil {
		return err
	}
	return d.enc.Encode(msg)
}

func (d *Dispatcher) runShortcut(eng engine.Engine, name string) error {
	switch name {
	case "toggle-pause":
		if eng.State() == engine.StatePlaying {
			return eng.Pause()
		}
		return eng.Play()
	case "volume-up":
		return eng.SetVolume(eng.Volume() + 5)
	case "volume-down":
		return eng.SetVolume(eng.Volume() - 5)
	case "seek-forward":
		return eng.Seek(10 * time.Second)
	case "seek-back":
		return eng.Seek(-10 * time.Second)
	default:
		return fmt.Errorf("unknown shortcut %q", name)
	}
}

// onEngineEvent forwards engine events to the wire. It runs on engine
// callback goroutines; the encoder keeps lines atomic.
func (d *Dispatcher) onEngineEvent(event engine.Event) {
	name := event.EventName()
	if !d.throttle.allow(name) {
		return
	}
	msg, err := protocol.NewEvent(name, event)
	if err != nil {
		d.logger.Warn("failed to encode engine event", logging.String("event", name), logging.Error(err))
		return
	}
	if err := d.enc.Encode(msg); err != nil {
		d.logger.Warn("failed to emit engine event", logging.String("event", name), logging.Error(err))
	}
}

func (d *Dispatcher) reply(msg protocol.Message) {
	if err := d.enc.Encode(msg); err != nil {
		d.logger.Error("failed to write reply", logging.String("id", msg.ID), logging.Error(err))
	}
}

func (d *Dispatcher) emitLog(level, text string) {
	if err := d.enc.Encode(protocol.NewLog(level, text)); err != nil {
		d.logger.Warn("failed to emit log message", logging.Error(err))
	}
}

// Close disposes the engine synchronously, swallowing and logging disposal
// errors so the process can still exit cleanly.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	eng := d.eng
	unsubscribe := d.unsubscribe
	pool := d.pool
	d.eng = nil
	d.unsubscribe = nil
	d.pool = nil
	d.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if pool != nil {
		pool.Close()
	}
	if eng != nil {
		if err := eng.Close(); err != nil {
			d.logger.Warn("engine disposal failed", logging.Error(err))
		}
	}
	d.logger.Info("dispatcher closed")
}
