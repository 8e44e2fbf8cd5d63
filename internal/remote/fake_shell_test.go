package remote

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/antonkrylov/logwise/internal/agent"
)

// scriptShell is a tiny stand-in for bash: it answers framed commands with
// CRLF output, the exit status, the cwd and the prompt token.
type scriptShell struct {
	mu     sync.Mutex
	token  string
	cwd    string
	closed bool

	out  chan []byte
	done chan struct{}
	once sync.Once
}

func spawnScriptShell(_ context.Context, opts agent.ShellOptions) (agent.Shell, error) {
	return &scriptShell{cwd: opts.Dir, out: make(chan []byte, 64), done: make(chan struct{})}, nil
}

func (s *scriptShell) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("shell closed")
	}
	line := strings.TrimRight(string(p), "\n")
	if i := strings.Index(line, "PS1='"); i >= 0 {
		s.token = strings.ReplaceAll(strings.TrimSuffix(line[i+len("PS1='"):], "'"), "''", "")
		s.out <- []byte(s.token)
		return len(p), nil
	}
	cmd := strings.TrimSuffix(line, "; echo $?; pwd")
	var output string
	exit := 0
	switch {
	case strings.HasPrefix(cmd, "echo "):
		output = strings.TrimPrefix(cmd, "echo ")
	case strings.HasPrefix(cmd, "cd "):
		s.cwd = strings.TrimPrefix(cmd, "cd ")
	case strings.HasPrefix(cmd, "ls /no_such"):
		output, exit = "ls: cannot access: No such file or directory", 2
	case strings.HasPrefix(cmd, "sleep"):
		return len(p), nil
	default:
		output, exit = "bash: command not found", 127
	}
	var b strings.Builder
	if output != "" {
		b.WriteString(output + "\r\n")
	}
	fmt.Fprintf(&b, "%d\r\n%s\r\n%s", exit, s.cwd, s.token)
	s.out <- []byte(b.String())
	return len(p), nil
}

func (s *scriptShell) Output() <-chan []byte { return s.out }
func (s *scriptShell) Done() <-chan struct{} { return s.done }
func (s *scriptShell) Pid() int              { return 777 }

func (s *scriptShell) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		close(s.out)
	})
	return nil
}
