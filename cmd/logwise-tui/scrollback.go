package main

import (
	"fmt"
	"strings"
)

// scrollback keeps the transcript bounded by line count and size. Dropped
// lines are counted so the view can say how much was compacted away.
type scrollback struct {
	lines        []string
	bytes        int
	maxLines     int
	maxBytes     int
	droppedLines int
	droppedBytes int
}

func newScrollback(maxLines, maxBytes int) *scrollback {
	return &scrollback{maxLines: maxLines, maxBytes: maxBytes}
}

func (s *scrollback) Append(text string) {
	if text == "" {
		return
	}
	// Continue an unterminated last line instead of starting a new one.
	if n := len(s.lines); n > 0 && !strings.HasSuffix(s.lines[n-1], "\n") {
		head, rest, found := strings.Cut(text, "\n")
		if found {
			head += "\n"
		}
		s.lines[n-1] += head
		s.bytes += len(head)
		text = rest
	}
	for _, p := range strings.SplitAfter(text, "\n") {
		if p == "" {
			continue
		}
		s.lines = append(s.lines, p)
		s.bytes += len(p)
	}
	s.trim()
}

func (s *scrollback) trim() {
	for (s.maxLines > 0 && len(s.lines) > s.maxLines) || (s.maxBytes > 0 && s.bytes > s.maxBytes) {
		if len(s.lines) == 0 {
			s.bytes = 0
			return
		}
		d := s.lines[0]
		s.lines = s.lines[1:]
		s.bytes -= len(d)
		if s.bytes < 0 {
			s.bytes = 0
		}
		s.droppedLines++
		s.droppedBytes += len(d)
	}
}

// Compact drops everything but the newest keepLines lines.
func (s *scrollback) Compact(keepLines int) {
	if keepLines <= 0 || keepLines >= len(s.lines) {
		return
	}
	drop := len(s.lines) - keepLines
	for i := 0; i < drop; i++ {
		s.droppedLines++
		s.droppedBytes += len(s.lines[i])
	}
	s.lines = append([]string(nil), s.lines[drop:]...)
	s.bytes = 0
	for _, l := range s.lines {
		s.bytes += len(l)
	}
}

// Clear empties the transcript and forgets what was dropped.
func (s *scrollback) Clear() {
	*s = scrollback{maxLines: s.maxLines, maxBytes: s.maxBytes}
}

func (s *scrollback) Content() string {
	if len(s.lines) == 0 && s.droppedLines == 0 {
		return ""
	}
	var b strings.Builder
	if s.droppedLines > 0 {
		fmt.Fprintf(&b, "[compact] dropped %d lines (%d bytes)\n", s.droppedLines, s.droppedBytes)
	}
	for _, l := range s.lines {
		b.WriteString(l)
	}
	return b.String()
}

func (s *scrollback) Stats() (keptLines, keptBytes, droppedLines, droppedBytes int) {
	return len(s.lines), s.bytes, s.droppedLines, s.droppedBytes
}
