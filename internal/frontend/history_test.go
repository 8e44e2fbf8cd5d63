package frontend

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHistorySkipsPresetsAndRepeats(t *testing.T) {
	h := NewHistory(0)
	require.True(t, h.Add("ls -la"))
	require.False(t, h.Add("ls -la"))
	require.False(t, h.Add("pwd"))
	require.False(t, h.Add("  "))
	require.False(t, h.Add(CustomCommand))
	require.Equal(t, []string{"ls -la"}, h.Recent())
}

func TestHistoryKeepsNewest(t *testing.T) {
	h := NewHistory(MaxHistory)
	for i := 0; i < 12; i++ {
		h.Add(fmt.Sprintf("echo %d", i))
	}
	require.Equal(t, MaxHistory, h.Len())
	recent := h.Recent()
	require.Equal(t, "echo 11", recent[0])
	require.Equal(t, "echo 2", recent[len(recent)-1])
}

func TestHistoryOptionsOrder(t *testing.T) {
	h := NewHistory(3)
	h.Add("make test")
	h.Add("go vet ./...")

	opts := h.Options()
	require.Equal(t, CustomCommand, opts[0])
	require.Equal(t, []string{"go vet ./...", "make test"}, opts[1:3])
	require.Equal(t, Presets, opts[3:])
}
