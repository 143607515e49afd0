package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrMalformedLine marks transport lines that are not valid protocol
// messages. Receivers log these and keep reading; one bad line must never
// take down the channel.
var ErrMalformedLine = errors.New("malformed protocol line")

// Frame events carry base64 pixel data, so lines can get large.
const maxLineBytes = 32 << 20

// Encoder writes one message per line. A single mutex guards the whole
// marshal-and-write so concurrent emitters (dispatch loop, engine callback
// threads) never interleave partial lines.
type Encoder struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriterSize(w, 64<<10)}
}

func (e *Encoder) Encode(msg Message) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(raw); err != nil {
		return err
	}
	if err := e.w.WriteByte('\n'); err != nil {
		return err
	}
	return e.w.Flush()
}

// Decoder reads one message per line. Malformed lines are reported as
// ErrMalformedLine so the caller can log and continue; io.EOF signals a
// clean end of stream.
type Decoder struct {
	scanner *bufio.Scanner
}

func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), maxLineBytes)
	return &Decoder{scanner: scanner}
}

func (d *Decoder) Next() (Message, error) {
	for d.scanner.Scan() {
		line := d.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
		}
		if err := msg.Validate(); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
		}
		return msg, nil
	}
	if err := d.scanner.Err(); err != nil {
		return Message{}, err
	}
	return Message{}, io.EOF
}
