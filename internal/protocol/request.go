package protocol

import (
	"encoding/json"
	"fmt"
)

// Method names the worker operations. The set is closed; DecodeRequest is the
// single place a wire method string becomes a typed request.
type Method string

const (
	MethodInit              Method = "init"
	MethodOpen              Method = "open"
	MethodPlay              Method = "play"
	MethodPause             Method = "pause"
	MethodStop              Method = "stop"
	MethodSeek              Method = "seek"
	MethodSetPosition       Method = "setPosition"
	MethodGetPosition       Method = "getPosition"
	MethodGetDuration       Method = "getDuration"
	MethodGetState          Method = "getState"
	MethodIsSeekable        Method = "isSeekable"
	MethodSetVolume         Method = "setVolume"
	MethodGetVolume         Method = "getVolume"
	MethodSetMute           Method = "setMute"
	MethodSetRate           Method = "setRate"
	MethodGetAudioTracks    Method = "getAudioTracks"
	MethodSetAudioTrack     Method = "setAudioTrack"
	MethodSetAudioDelay     Method = "setAudioDelay"
	MethodGetSubtitleTracks Method = "getSubtitleTracks"
	MethodSetSubtitleTrack  Method = "setSubtitleTrack"
	MethodSetSubtitleDelay  Method = "setSubtitleDelay"
	MethodWindow            Method = "window"
	MethodSetupFrameSink    Method = "setupFrameSink"
	MethodShortcut          Method = "shortcut"
)

// Request is the closed union of worker method invocations. Each variant
// carries its own typed argument tuple; the dispatcher switches over the
// union exhaustively instead of on raw method strings.
type Request interface {
	Method() Method
}

type InitRequest struct{}

type OpenRequest struct {
	Target string
}

type PlayRequest struct{}

type PauseRequest struct{}

type StopRequest struct{}

// SeekRequest moves playback by a relative offset.
type SeekRequest struct {
	OffsetMillis int64
}

// SetPositionRequest sets the absolute playback position as a 0..1 fraction.
type SetPositionRequest struct {
	Position float64
}

type GetPositionRequest struct{}

type GetDurationRequest struct{}

type GetStateRequest struct{}

type IsSeekableRequest struct{}

type SetVolumeRequest struct {
	Volume int
}

type GetVolumeRequest struct{}

type SetMuteRequest struct {
	Muted bool
}

type SetRateRequest struct {
	Rate float64
}

type GetAudioTracksRequest struct{}

type SetAudioTrackRequest struct {
	TrackID int
}

type SetAudioDelayRequest struct {
	DelayMillis int64
}

type GetSubtitleTracksRequest struct{}

type SetSubtitleTrackRequest struct {
	TrackID int
}

type SetSubtitleDelayRequest struct {
	DelayMillis int64
}

// WindowRequest binds the native video surface. The handle is opaque to the
// protocol and forwarded to the engine untouched.
type WindowRequest struct {
	Handle uint64
}

// SetupFrameSinkRequest switches the worker into buffered frame delivery at
// the negotiated dimensions.
type SetupFrameSinkRequest struct {
	Width  int
	Height int
}

// ShortcutRequest triggers a named playback shortcut (e.g. "toggle-pause").
type ShortcutRequest struct {
	Name string
}

func (InitRequest) Method() Method              { return MethodInit }
func (OpenRequest) Method() Method              { return MethodOpen }
func (PlayRequest) Method() Method              { return MethodPlay }
func (PauseRequest) Method() Method             { return MethodPause }
func (StopRequest) Method() Method              { return MethodStop }
func (SeekRequest) Method() Method              { return MethodSeek }
func (SetPositionRequest) Method() Method       { return MethodSetPosition }
func (GetPositionRequest) Method() Method       { return MethodGetPosition }
func (GetDurationRequest) Method() Method       { return MethodGetDuration }
func (GetStateRequest) Method() Method          { return MethodGetState }
func (IsSeekableRequest) Method() Method        { return MethodIsSeekable }
func (SetVolumeRequest) Method() Method         { return MethodSetVolume }
func (GetVolumeRequest) Method() Method         { return MethodGetVolume }
func (SetMuteRequest) Method() Method           { return MethodSetMute }
func (SetRateRequest) Method() Method           { return MethodSetRate }
func (GetAudioTracksRequest) Method() Method    { return MethodGetAudioTracks }
func (SetAudioTrackRequest) Method() Method     { return MethodSetAudioTrack }
func (SetAudioDelayRequest) Method() Method     { return MethodSetAudioDelay }
func (GetSubtitleTracksRequest) Method() Method { return MethodGetSubtitleTracks }
func (SetSubtitleTrackRequest) Method() Method  { return MethodSetSubtitleTrack }
func (SetSubtitleDelayRequest) Method() Method  { return MethodSetSubtitleDelay }
func (WindowRequest) Method() Method            { return MethodWindow }
func (SetupFrameSinkRequest) Method() Method    { return MethodSetupFrameSink }
func (ShortcutRequest) Method() Method          { return MethodShortcut }

func marshalArgs(req Request) ([]json.RawMessage, error) {
	switch r := req.(type) {
	case InitRequest, PlayRequest, PauseRequest, StopRequest, GetPositionRequest,
		GetDurationRequest, GetStateRequest, IsSeekableRequest, GetVolumeRequest,
		GetAudioTracksRequest, GetSubtitleTracksRequest:
		return nil, nil
	case OpenRequest:
		return packArgs(r.Target)
	case SeekRequest:
		return packArgs(r.OffsetMillis)
	case SetPositionRequest:
		return packArgs(r.Position)
	case SetVolumeRequest:
		return packArgs(r.Volume)
	case SetMuteRequest:
		return packArgs(r.Muted)
	case SetRateRequest:
		return packArgs(r.Rate)
	case SetAudioTrackRequest:
		return packArgs(r.TrackID)
	case SetAudioDelayRequest:
		return packArgs(r.DelayMillis)
	case SetSubtitleTrackRequest:
		return packArgs(r.TrackID)
	case SetSubtitleDelayRequest:
		return packArgs(r.DelayMillis)
	case WindowRequest:
		return packArgs(r.Handle)
	case SetupFrameSinkRequest:
		return packArgs(r.Width, r.Height)
	case ShortcutRequest:
		return packArgs(r.Name)
	default:
		return nil, fmt.Errorf("unsupported request type %T", req)
	}
}

// DecodeRequest reconstructs the typed request for a method message. Unknown
// methods and malformed argument tuples are reported as errors so the
// dispatcher can answer with a tagged error message instead of dying.
func DecodeRequest(method Method, args []json.RawMessage) (Request, error) {
	switch method {
	case MethodInit:
		return InitRequest{}, nil
	case MethodOpen:
		var r OpenRequest
		if err := unpackArgs(method, args, &r.Target); err != nil {
			return nil, err
		}
		return r, nil
	case MethodPlay:
		return PlayRequest{}, nil
	case MethodPause:
		return PauseRequest{}, nil
	case MethodStop:
		return StopRequest{}, nil
	case MethodSeek:
		var r SeekRequest
		if err := unpackArgs(method, args, &r.OffsetMillis); err != nil {
			return nil, err
		}
		return r, nil
	case MethodSetPosition:
		var r SetPositionRequest
		if err := unpackArgs(method, args, &r.Position); err != nil {
			return nil, err
		}
		return r, nil
	case MethodGetPosition:
		return GetPositionRequest{}, nil
	case MethodGetDuration:
		return GetDurationRequest{}, nil
	case MethodGetState:
		return GetStateRequest{}, nil
	case MethodIsSeekable:
		return IsSeekableRequest{}, nil
	case MethodSetVolume:
		var r SetVolumeRequest
		if err := unpackArgs(method, args, &r.Volume); err != nil {
			return nil, err
		}
		return r, nil
	case MethodGetVolume:
		return GetVolumeRequest{}, nil
	case MethodSetMute:
		var r SetMuteRequest
		if err := unpackArgs(method, args, &r.Muted); err != nil {
			return nil, err
		}
		return r, nil
	case MethodSetRate:
		var r SetRateRequest
		if err := unpackArgs(method, args, &r.Rate); err != nil {
			return nil, err
		}
		return r, nil
	case MethodGetAudioTracks:
		return GetAudioTracksRequest{}, nil
	case MethodSetAudioTrack:
		var r SetAudioTrackRequest
		if err := unpackArgs(method, args, &r.TrackID); err != nil {
			return nil, err
		}
		return r, nil
	case MethodSetAudioDelay:
		var r SetAudioDelayRequest
		if err := unpackArgs(method, args, &r.DelayMillis); err != nil {
			return nil, err
		}
		return r, nil
	case MethodGetSubtitleTracks:
		return GetSubtitleTracksRequest{}, nil
	case MethodSetSubtitleTrack:
		var r SetSubtitleTrackRequest
		if err := unpackArgs(method, args, &r.TrackID); err != nil {
			return nil, err
		}
		return r, nil
	case MethodSetSubtitleDelay:
		var r SetSubtitleDelayRequest
		if err := unpackArgs(method, args, &r.DelayMillis); err != nil {
			return nil, err
		}
		return r, nil
	case MethodWindow:
		var r WindowRequest
		if err := unpackArgs(method, args, &r.Handle); err != nil {
			return nil, err
		}
		return r, nil
	case MethodSetupFrameSink:
		var r SetupFrameSinkRequest
		if err := unpackArgs(method, args, &r.Width, &r.Height); err != nil {
			return nil, err
		}
		return r, nil
	case MethodShortcut:
		var r ShortcutRequest
		if err := unpackArgs(method, args, &r.Name); err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown method %q", method)
	}
}

func packArgs(values ...any) ([]json.RawMessage, error) {
	args := make([]json.RawMessage, 0, len(values))
	for _, value := range values {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		args = append(args, raw)
	}
	return args, nil
}

func unpackArgs(method Method, args []json.RawMessage, dsts ...any) error {
	if len(args) != len(dsts) {
		return fmt.Errorf("method %s expects %d args, got %d", method, len(dsts), len(args))
	}
	for i, dst := range dsts {
		if err := json.Unmarshal(args[i], dst); err != nil {
			return fmt.Errorf("method %s arg %d: %w", method, i, err)
		}
	}
	return nil
}
