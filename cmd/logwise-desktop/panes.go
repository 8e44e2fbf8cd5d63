package main

import (
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/data/binding"
	"fyne.io/fyne/v2/widget"

	"github.com/antonkrylov/logwise/internal/classify"
)

// logPane is a scrolling, size-bounded text view. The binding makes it safe
// to append from worker goroutines.
type logPane struct {
	mu       sync.Mutex
	text     string
	data     binding.String
	label    *widget.Label
	scroll   *container.Scroll
	maxBytes int
}

func newLogPane(maxBytes int) *logPane {
	d := binding.NewString()
	l := widget.NewLabelWithData(d)
	l.Wrapping = fyne.TextWrapWord
	s := container.NewVScroll(l)
	return &logPane{data: d, label: l, scroll: s, maxBytes: maxBytes}
}

func (p *logPane) appendLine(s string) {
	p.mu.Lock()
	p.text += s
	if p.maxBytes > 0 && len(p.text) > p.maxBytes {
		p.text = p.text[len(p.text)-p.maxBytes:]
	}
	next := p.text
	p.mu.Unlock()
	_ = p.data.Set(next)
}

func (p *logPane) set(s string) {
	p.mu.Lock()
	p.text = ""
	p.mu.Unlock()
	p.appendLine(s)
}

func (p *logPane) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.text
}

// verdict labels an analysis the way the pane header shows it.
func verdict(analysis string) string {
	analysis = strings.TrimSpace(analysis)
	switch {
	case analysis == "":
		return "Analysis"
	case classify.NoError(analysis):
		return "Analysis: no error detected"
	case strings.HasPrefix(analysis, "[Warning detected]"), strings.HasPrefix(analysis, "[Info message detected]"):
		return "Analysis: note"
	default:
		return "Analysis: error explained"
	}
}

func promptLine(cwd string) string {
	return "(Runner Agent) " + cwd + " $"
}
