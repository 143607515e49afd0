// Package framepool provides the fixed rotation of reusable buffers the
// worker uses to ferry decoded video frames to the host without per-frame
// allocation.
//
// Ownership transfer is explicit: Acquire hands a buffer to the producer,
// and the buffer stays out of rotation until its consumer calls Release.
// Once every slot is in flight the producer gets ErrExhausted and must drop
// the frame rather than allocate. Resizing starts a new generation; releases
// of buffers from an older generation are ignored.
package framepool

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultCount is the conventional pool size; it bounds the number of frames
// in flight between the two processes.
const DefaultCount = 3

var (
	ErrExhausted = errors.New("frame pool exhausted")
	ErrClosed    = errors.New("frame pool closed")
)

// Buffer is one pool slot. Pix is valid from Acquire until Release.
type Buffer struct {
	Pix   []byte
	Index int

	pool *Pool
	gen  uint64
}

// Release returns the buffer to rotation. Releasing twice, or releasing a
// buffer from a generation discarded by Resize, is a harmless no-op.
func (b *Buffer) Release() {
	if b == nil || b.pool == nil {
		return
	}
	b.pool.release(b)
}

// Pool is a fixed-count rotation of equally sized buffers.
type Pool struct {
	mu      sync.Mutex
	gen     uint64
	cursor  int
	inUse   []bool
	buffers []*Buffer
	bufSize int
	closed  bool
}

// New allocates count buffers of bufferSize bytes each.
func New(count, bufferSize int) (*Pool, error) {
	if count <= 0 {
		return nil, fmt.Errorf("frame pool count %d invalid", count)
	}
	if bufferSize <= 0 {
		return nil, fmt.Errorf("frame pool buffer size %d invalid", bufferSize)
	}
	p := &Pool{bufSize: bufferSize}
	p.allocateLocked(count)
	return p, nil
}

func (p *Pool) allocateLocked(count int) {
	p.gen++
	p.cursor = 0
	p.inUse = make([]bool, count)
	p.buffers = make([]*Buffer, count)
	for i := range p.buffers {
		p.buffers[i] = &Buffer{
			Pix:   make([]byte, p.bufSize),
			Index: i,
			pool:  p,
			gen:   p.gen,
		}
	}
}

// Acquire hands out the next free buffer in rotation.
func (p *Pool) Acquire() (*Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	count := len(p.buffers)
	for i := 0; i < count; i++ {
		idx := (p.cursor + i) % count
		if !p.inUse[idx] {
			p.inUse[idx] = true
			p.cursor = (idx + 1) % count
			return p.buffers[idx], nil
		}
	}
	return nil, ErrExhausted
}

func (p *Pool) release(b *Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || b.gen != p.gen {
		return
	}
	p.inUse[b.Index] = false
}

// Resize reallocates every buffer at the new size under a fresh generation.
// Buffers still in flight from the old generation are discarded; their
// Release becomes a no-op.
func (p *Pool) Resize(bufferSize int) error {
	if bufferSize <= 0 {
		return fmt.Errorf("frame pool buffer size %d invalid", bufferSize)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.bufSize = bufferSize
	p.allocateLocked(len(p.buffers))
	return nil
}

// InFlight reports how many buffers are currently acquired.
func (p *Pool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, used := range p.inUse {
		if used {
			n++
		}
	}
	return n
}

// BufferSize reports the per-buffer capacity of the current generation.
func (p *Pool) BufferSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bufSize
}

// Close discards all buffers; subsequent Acquire calls fail with ErrClosed.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.buffers = nil
	p.inUse = nil
}
