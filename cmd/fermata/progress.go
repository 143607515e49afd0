package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"fermata/internal/engine"
)

// progressLine rewrites one status line while playing. On a non-terminal
// output it stays silent so piped output is not flooded.
type progressLine struct {
	mu       sync.Mutex
	out      io.Writer
	enabled  bool
	active   bool
	duration time.Duration
	state    engine.State
}

func newProgressLine(out io.Writer) *progressLine {
	enabled := false
	if file, ok := out.(*os.File); ok {
		enabled = isTerminal(file)
	}
	return &progressLine{out: out, enabled: enabled}
}

func (p *progressLine) setDuration(d time.Duration) {
	p.mu.Lock()
	p.duration = d
	p.mu.Unlock()
}

func (p *progressLine) setState(state engine.State) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}

func (p *progressLine) update(elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	p.active = true
	if p.duration > 0 {
		fmt.Fprintf(p.out, "\r%s %s / %s   ", p.state, formatClock(elapsed), formatClock(p.duration))
	} else {
		fmt.Fprintf(p.out, "\r%s %s   ", p.state, formatClock(elapsed))
	}
}

// finish moves past the in-place line so later prints start clean.
func (p *progressLine) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active {
		fmt.Fprintln(p.out)
		p.active = false
	}
}

func formatClock(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
