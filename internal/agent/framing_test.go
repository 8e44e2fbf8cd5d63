package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	require.Equal(t, "ls -la; echo $?; pwd", Wrap("ls -la"))
	require.Equal(t, "cd /tmp; echo $?; pwd", Wrap("cd /tmp  "))
}

func TestStripControl(t *testing.T) {
	tests := map[string]string{
		"plain text":                  "plain text",
		"\x1b[31mred\x1b[0m":          "red",
		"\x1b[?2004lhello\x1b[?2004h": "hello",
		"a\x07b":                      "ab",
		"line1\r\nline2\ttab":         "line1\r\nline2\ttab",
		"\x1b]0;title\x07after":       "after",
	}
	for in, want := range tests {
		got := StripControl(in)
		assert.Equal(t, want, got, "input %q", in)
		assert.Equal(t, got, StripControl(got), "not idempotent for %q", in)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		prev   string
		want   Parsed
		failed bool
	}{
		{
			name: "output exit and cwd",
			raw:  "hi\r\n0\r\n/home/u\r\n",
			prev: "/",
			want: Parsed{Output: "hi", ExitCode: 0, Cwd: "/home/u"},
		},
		{
			name: "no output",
			raw:  "0\r\n/tmp\r\n",
			prev: "/",
			want: Parsed{Output: "", ExitCode: 0, Cwd: "/tmp"},
		},
		{
			name: "multi line output with escapes",
			raw:  "\x1b[?2004l\x1b[32ma\x1b[0m\r\nb\r\n2\r\n/srv\r\n",
			prev: "/",
			want: Parsed{Output: "a\nb", ExitCode: 2, Cwd: "/srv"},
		},
		{
			name: "negative exit",
			raw:  "oops\n-1\n/x\n",
			prev: "/",
			want: Parsed{Output: "oops", ExitCode: -1, Cwd: "/x"},
		},
		{
			name: "empty buffer",
			raw:  "  \r\n ",
			prev: "/keep",
			want: Parsed{ExitCode: 0, Cwd: "/keep"},
		},
		{
			// printf without a newline runs into the status line. The digits
			// are read as the exit code and the output is lost.
			name: "unterminated output merges with status",
			raw:  "v20\r\n/home/u\r\n",
			prev: "/",
			want: Parsed{Output: "", ExitCode: 20, Cwd: "/home/u"},
		},
		{
			name:   "single line",
			raw:    "something\r\n",
			prev:   "/keep",
			want:   Parsed{Cwd: "something"},
			failed: true,
		},
		{
			name:   "exit line without digits",
			raw:    "out\r\nnot a number\r\n/tmp\r\n",
			prev:   "/keep",
			want:   Parsed{Cwd: "/tmp"},
			failed: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.raw, tt.prev)
			if tt.failed {
				require.True(t, got.Failed)
				require.Equal(t, -1, got.ExitCode)
				require.Equal(t, tt.want.Cwd, got.Cwd)
				require.Equal(t, got.Cleaned, got.Output)
				require.NotEmpty(t, got.Output)
				return
			}
			require.False(t, got.Failed)
			require.Equal(t, tt.want.Output, got.Output)
			require.Equal(t, tt.want.ExitCode, got.ExitCode)
			require.Equal(t, tt.want.Cwd, got.Cwd)
		})
	}
}

func TestRoute(t *testing.T) {
	ok := Route(0, "out", "/a")
	require.Equal(t, Result{ExitCode: 0, Stdout: "out", Cwd: "/a"}, ok)

	bad := Route(3, "err", "/a")
	require.Equal(t, Result{ExitCode: 3, Stderr: "err", Cwd: "/a"}, bad)
	require.True(t, bad.Failed())
	require.Equal(t, "err", bad.Output())
}
