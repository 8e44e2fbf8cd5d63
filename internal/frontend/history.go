// Package frontend holds the pieces shared by the logwise front ends: the
// preset commands, the recent-command list and the run-then-explain flow.
package frontend

import (
	"slices"
	"strings"
	"sync"
)

// CustomCommand is the pinned first option of every command picker.
const CustomCommand = "Custom Command..."

// MaxHistory bounds the recent-command list.
const MaxHistory = 10

// Presets exercise the common result shapes: output, failure, traceback,
// unknown command and a silent directory change.
var Presets = []string{
	"echo 'This is a test'",
	"python3 -m logwise",
	"ls /no_such_dir",
	"pwd",
	"python3 -c 'print(1/0)'",
	"This is a string of nonsense",
	"cd logwise",
}

func IsPreset(command string) bool {
	return slices.Contains(Presets, command)
}

// History is the list of commands the user typed, oldest first. Presets and
// repeats are not recorded.
type History struct {
	mu    sync.Mutex
	max   int
	items []string
}

func NewHistory(max int) *History {
	if max <= 0 {
		max = MaxHistory
	}
	return &History{max: max}
}

// Add records command and reports whether the list changed.
func (h *History) Add(command string) bool {
	command = strings.TrimSpace(command)
	if command == "" || IsPreset(command) || command == CustomCommand {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if slices.Contains(h.items, command) {
		return false
	}
	h.items = append(h.items, command)
	if len(h.items) > h.max {
		h.items = slices.Clone(h.items[len(h.items)-h.max:])
	}
	return true
}

// Recent returns the recorded commands, newest first.
func (h *History) Recent() []string {
	h.mu.Lock()
	out := slices.Clone(h.items)
	h.mu.Unlock()
	slices.Reverse(out)
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items)
}

// Options lists what a command picker shows: the custom entry, then recent
// commands newest first, then the presets.
func (h *History) Options() []string {
	out := []string{CustomCommand}
	out = append(out, h.Recent()...)
	return append(out, Presets...)
}
