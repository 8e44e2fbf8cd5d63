package classify

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pyTrace = `starting job
Traceback (most recent call last):
  File "train.py", line 3, in <module>
    main()
ZeroDivisionError: division by zero`

func TestFromText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "  \n\n", NoOutput},
		{"traceback", pyTrace, strings.TrimSpace(pyTrace[strings.Index(pyTrace, "Traceback"):])},
		{"keyword line", "ok\nbuild step 2\nld: cannot find -lfoo: No such file or directory\nmore", "ld: cannot find -lfoo: No such file or directory"},
		{"chinese keyword", "開始\n錯誤：找不到檔案", "錯誤：找不到檔案"},
		{"usage", "Usage: tool [flags]\n  -h help", UsageDetected},
		{"clean", "total 4\n-rw-r--r-- a.txt", Success},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromText(tt.in))
		})
	}
}

func TestFromTextScansHeadAndTailOnly(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 1000; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	b.WriteString("segmentation fault (core dumped)\n")
	require.Equal(t, "segmentation fault (core dumped)", FromText(b.String()))
}

func TestWithCode(t *testing.T) {
	assert.Equal(t, SilentSuccess, WithCode(0, "", ""))
	assert.Equal(t, Success, WithCode(0, "hi", ""))
	assert.Equal(t, WarningDetected, WithCode(0, "DeprecationWarning: x", ""))
	assert.Equal(t, UsageDetected, WithCode(0, "usage: git [--version]", ""))

	assert.Equal(t, "[Error detected (exit code 2), but no output received]", WithCode(2, "", " "))
	assert.Equal(t, "ls: cannot access '/no_such_dir': No such file or directory",
		WithCode(2, "", "ls: cannot access '/no_such_dir': No such file or directory"))
	assert.Equal(t, "from stdout", WithCode(1, "from stdout", ""))

	tb := WithCode(1, "", pyTrace)
	require.True(t, strings.HasPrefix(tb, "Traceback"))
	require.True(t, strings.HasSuffix(tb, "division by zero"))

	var lines []string
	for i := 0; i < 15; i++ {
		lines = append(lines, fmt.Sprintf("err %d", i))
	}
	got := WithCode(1, "", strings.Join(lines, "\n"))
	require.Equal(t, strings.Join(lines[5:], "\n"), got)
}

func TestNoError(t *testing.T) {
	require.True(t, NoError(Success))
	require.True(t, NoError(SilentSuccess))
	require.False(t, NoError(WarningDetected))
	require.False(t, NoError("ls: boom"))
}
