package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// analysisPrinter streams explanation fragments to out. In a terminal it
// shows a spinner on err until the first fragment arrives.
type analysisPrinter struct {
	out         io.Writer
	err         io.Writer
	interactive bool
	mu          sync.Mutex

	spinning bool
	cancel   context.CancelFunc
	done     chan struct{}
	wrote    bool
	lastByte byte
}

func newAnalysisPrinter(out, err io.Writer, interactive bool) *analysisPrinter {
	return &analysisPrinter{out: out, err: err, interactive: interactive}
}

// Start begins the waiting spinner.
func (p *analysisPrinter) Start(label string) {
	if !p.interactive || p.spinning {
		return
	}
	p.spinning = true
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	start := time.Now()
	label = strings.TrimSpace(label)

	go func() {
		defer close(p.done)
		frames := []string{"|", "/", "-", "\\"}
		i := 0
		t := time.NewTicker(90 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				elapsed := time.Since(start).Truncate(100 * time.Millisecond)
				p.mu.Lock()
				_, _ = fmt.Fprintf(p.err, "\r\033[2K%s %s %s", label, frames[i%len(frames)], elapsed)
				p.mu.Unlock()
				i++
			}
		}
	}()
}

// Write prints one fragment, clearing the spinner first.
func (p *analysisPrinter) Write(fragment string) {
	p.stop()
	if fragment == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.out, fragment)
	p.wrote = true
	p.lastByte = fragment[len(fragment)-1]
}

// Close stops the spinner and reports whether anything was printed.
func (p *analysisPrinter) Close() bool {
	p.stop()
	return p.wrote
}

// EndsWithNewline reports whether the last fragment finished its line.
func (p *analysisPrinter) EndsWithNewline() bool {
	return !p.wrote || p.lastByte == '\n'
}

func (p *analysisPrinter) stop() {
	if !p.spinning {
		return
	}
	p.spinning = false
	p.cancel()
	<-p.done
	p.mu.Lock()
	_, _ = fmt.Fprint(p.err, "\r\033[2K")
	p.mu.Unlock()
}
