package engine

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	defaultSimDuration = 2 * time.Minute
	defaultSimTick     = 50 * time.Millisecond
	defaultSimVolume   = 80
)

// ErrNoMedia is returned for transport commands issued before Open.
var ErrNoMedia = errors.New("no media open")

// ErrEngineClosed is returned once the engine has been disposed.
var ErrEngineClosed = errors.New("engine closed")

// SimOption configures the simulated engine.
type SimOption func(*Sim)

// WithDuration overrides the simulated media duration.
func WithDuration(d time.Duration) SimOption {
	return func(s *Sim) {
		if d > 0 {
			s.duration = d
		}
	}
}

// WithTickInterval overrides the playback clock interval.
func WithTickInterval(d time.Duration) SimOption {
	return func(s *Sim) {
		if d > 0 {
			s.tick = d
		}
	}
}

// Sim is a deterministic in-process engine. It advances a playback clock on
// a ticker, pushes the same event stream a native engine would, and renders
// synthetic frames into the configured sink. Safe for concurrent use.
type Sim struct {
	mu sync.Mutex

	state    State
	target   string
	duration time.Duration
	elapsed  time.Duration
	seekable bool

	volume int
	muted  bool
	rate   float64

	audioTracks   []AudioTrack
	subTracks     []SubtitleTrack
	audioTrack    int
	subTrack      int
	audioDelay    time.Duration
	subtitleDelay time.Duration

	window   uint64
	sink     FrameSink
	sinkW    int
	sinkH    int
	frameSeq int64
	scratch  []byte

	subs    map[int]func(Event)
	nextSub int

	tick   time.Duration
	loopCh chan struct{}
	closed bool
}

// NewSim constructs a simulated engine with stereo English/French audio and
// an English subtitle track.
func NewSim(opts ...SimOption) *Sim {
	s := &Sim{
		state:    StateIdle,
		duration: defaultSimDuration,
		seekable: true,
		volume:   defaultSimVolume,
		rate:     1.0,
		tick:     defaultSimTick,
		subs:     map[int]func(Event){},
		audioTracks: []AudioTrack{
			{ID: 1, Language: "en", Title: "main audio", Channels: 2},
			{ID: 2, Language: "fr", Title: "commentary", Channels: 2},
		},
		subTracks: []SubtitleTrack{
			{ID: -1},
			{ID: 1, Language: "en", Title: "full subtitles"},
		},
		audioTrack: 1,
		subTrack:   -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sim) Open(target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return errors.New("open requires a target")
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrEngineClosed
	}
	s.stopLoopLocked()
	s.target = target
	s.elapsed = 0
	s.state = StatePaused
	duration := s.duration
	s.mu.Unlock()

	s.emit(StateEvent{State: StateOpening})
	s.emit(DurationEvent{Millis: duration.Milliseconds()})
	s.emit(StateEvent{State: StatePaused})
	return nil
}

func (s *Sim) Play() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrEngineClosed
	}
	if s.target == "" {
		s.mu.Unlock()
		return ErrNoMedia
	}
	if s.state == StatePlaying {
		s.mu.Unlock()
		return nil
	}
	if s.state == StateEnded {
		s.elapsed = 0
	}
	s.state = StatePlaying
	s.startLoopLocked()
	s.mu.Unlock()

	s.emit(StateEvent{State: StatePlaying})
	return nil
}

func (s *Sim) Pause() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrEngineClosed
	}
	if s.target == "" {
		s.mu.Unlock()
		return ErrNoMedia
	}
	if s.state != StatePlaying {
		s.mu.Unlock()
		return nil
	}
	s.state = StatePaused
	s.stopLoopLocked()
	s.mu.Unlock()

	s.emit(StateEvent{State: StatePaused})
	return nil
}

func (s *Sim) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrEngineClosed
	}
	if s.target == "" {
		s.mu.Unlock()
		return nil
	}
	s.stopLoopLocked()
	s.state = StateStopped
	s.elapsed = 0
	s.mu.Unlock()

	s.emit(StateEvent{State: StateStopped})
	return nil
}

func (s *Sim) Seek(offset time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrEngineClosed
	}
	if s.target == "" {
		return ErrNoMedia
	}
	s.elapsed = clampDuration(s.elapsed+offset, 0, s.duration)
	return nil
}

func (s *Sim) SetPosition(position float64) error {
	if position < 0 || position > 1 {
		return fmt.Errorf("position %f out of range", position)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrEngineClosed
	}
	if s.target == "" {
		return ErrNoMedia
	}
	s.elapsed = time.Duration(position * float64(s.duration))
	return nil
}

func (s *Sim) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sim) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.duration <= 0 {
		return 0
	}
	return float64(s.elapsed) / float64(s.duration)
}

func (s *Sim) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *Sim) Seekable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seekable && s.target != ""
}

func (s *Sim) SetVolume(volume int) error {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrEngineClosed
	}
	changed := s.volume != volume
	s.volume = volume
	s.mu.Unlock()

	if changed {
		s.emit(VolumeEvent{Volume: volume})
	}
	return nil
}

func (s *Sim) Volume() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *Sim) SetMute(muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrEngineClosed
	}
	s.muted = muted
	return nil
}

func (s *Sim) SetRate(rate float64) error {
	if rate <= 0 || rate > 8 {
		return fmt.Errorf("rate %f out of range", rate)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrEngineClosed
	}
	s.rate = rate
	return nil
}

func (s *Sim) AudioTracks() []AudioTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AudioTrack(nil), s.audioTracks...)
}

func (s *Sim) SetAudioTrack(trackID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, track := range s.audioTracks {
		if track.ID == trackID {
			s.audioTrack = trackID
			return nil
		}
	}
	return fmt.Errorf("unknown audio track %d", trackID)
}

func (s *Sim) SetAudioDelay(delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioDelay = delay
	return nil
}

func (s *Sim) SubtitleTracks() []SubtitleTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SubtitleTrack(nil), s.subTracks...)
}

func (s *Sim) SetSubtitleTrack(trackID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, track := range s.subTracks {
		if track.ID == trackID {
			s.subTrack = trackID
			return nil
		}
	}
	return fmt.Errorf("unknown subtitle track %d", trackID)
}

func (s *Sim) SetSubtitleDelay(delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subtitleDelay = delay
	return nil
}

func (s *Sim) BindWindow(handle uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrEngineClosed
	}
	s.window = handle
	return nil
}

func (s *Sim) SetFrameSink(sink FrameSink, width, height int) error {
	if sink != nil && (width <= 0 || height <= 0) {
		return fmt.Errorf("frame sink dimensions %dx%d invalid", width, height)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrEngineClosed
	}
	s.sink = sink
	s.sinkW = width
	s.sinkH = height
	s.scratch = nil
	return nil
}

func (s *Sim) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.stopLoopLocked()
	s.closed = true
	s.state = StateIdle
	s.subs = map[int]func(Event){}
	return nil
}

func (s *Sim) startLoopLocked() {
	if s.loopCh != nil {
		return
	}
	stop := make(chan struct{})
	s.loopCh = stop
	go s.run(stop)
}

func (s *Sim) stopLoopLocked() {
	if s.loopCh != nil {
		close(s.loopCh)
		s.loopCh = nil
	}
}

func (s *Sim) run(stop chan struct{}) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !s.advance() {
				return
			}
		}
	}
}

// advance moves the playback clock one tick and reports whether the loop
// should keep running.
func (s *Sim) advance() bool {
	s.mu.Lock()
	if s.closed || s.state != StatePlaying {
		s.mu.Unlock()
		return false
	}
	s.elapsed += time.Duration(float64(s.tick) * s.rate)
	ended := s.elapsed >= s.duration
	if ended {
		s.elapsed = s.duration
		s.state = StateEnded
		s.loopCh = nil
	}
	elapsed := s.elapsed
	position := float64(elapsed) / float64(s.duration)
	sink := s.sink
	width, height := s.sinkW, s.sinkH
	s.mu.Unlock()

	s.emit(TimeEvent{Millis: elapsed.Milliseconds()})
	s.emit(PositionEvent{Position: position})
	if sink != nil && !ended {
		s.renderFrame(sink, width, height, elapsed)
	}
	if ended {
		s.emit(EndReachedEvent{})
		s.emit(StateEvent{State: StateEnded})
		return false
	}
	return true
}

func (s *Sim) renderFrame(sink FrameSink, width, height int, elapsed time.Duration) {
	s.mu.Lock()
	size := PixelFormatRGBA32.FrameSize(width, height)
	if cap(s.scratch) < size {
		s.scratch = make([]byte, size)
	}
	pix := s.scratch[:size]
	s.frameSeq++
	seq := s.frameSeq
	s.mu.Unlock()

	shade := byte(seq % 256)
	for i := 0; i < size; i += 4 {
		pix[i] = shade
		pix[i+1] = shade
		pix[i+2] = shade
		pix[i+3] = 0xff
	}
	_ = sink.WriteFrame(Frame{
		Pix:             pix,
		Width:           width,
		Height:          height,
		Stride:          width * 4,
		Format:          PixelFormatRGBA32,
		TimestampMillis: elapsed.Milliseconds(),
	})
}

func (s *Sim) emit(event Event) {
	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(event)
	}
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var _ Engine = (*Sim)(nil)
