package agent

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"
)

// fakeReply is what the fake shell prints for one command.
type fakeReply struct {
	output string
	exit   int
	// raw replaces the whole trailer-framed reply when non-empty.
	raw  string
	hang bool
}

type fakeHandler func(command, cwd string) (fakeReply, string)

// fakeShell answers wrapped commands the way bash would through a terminal:
// CRLF line endings, exit status and cwd lines, then the prompt token.
type fakeShell struct {
	handler  fakeHandler
	delay    time.Duration
	noPrompt bool

	mu       sync.Mutex
	token    string
	cwd      string
	lines    []string
	busy     bool
	overlaps int
	closed   bool

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeShell(dir string, handler fakeHandler) *fakeShell {
	return &fakeShell{
		handler: handler,
		cwd:     dir,
		out:     make(chan []byte, 1024),
		done:    make(chan struct{}),
	}
}

func (f *fakeShell) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, fmt.Errorf("write on closed fake shell")
	}
	line := strings.TrimRight(string(p), "\n")
	f.lines = append(f.lines, line)

	if i := strings.Index(line, "PS1='"); i >= 0 {
		f.token = strings.ReplaceAll(strings.TrimSuffix(line[i+len("PS1='"):], "'"), "''", "")
		if !f.noPrompt {
			f.out <- []byte("bash-5.2$ " + f.token)
		}
		return len(p), nil
	}

	command := strings.TrimSuffix(line, trailer)
	reply, cwd := f.handler(command, f.cwd)
	if reply.hang {
		return len(p), nil
	}
	f.cwd = cwd
	var data string
	if reply.raw != "" {
		data = reply.raw + f.token
	} else {
		var b strings.Builder
		if reply.output != "" {
			b.WriteString(strings.ReplaceAll(reply.output, "\n", "\r\n"))
			b.WriteString("\r\n")
		}
		fmt.Fprintf(&b, "%d\r\n%s\r\n%s", reply.exit, cwd, f.token)
		data = b.String()
	}

	if f.delay == 0 {
		f.out <- []byte(data)
		return len(p), nil
	}
	if f.busy {
		f.overlaps++
	}
	f.busy = true
	go func() {
		time.Sleep(f.delay)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.busy = false
		if !f.closed {
			// Split the token across chunks to exercise reassembly.
			half := len(data) - len(f.token)/2
			f.out <- []byte(data[:half])
			f.out <- []byte(data[half:])
		}
	}()
	return len(p), nil
}

func (f *fakeShell) withoutPrompt() *fakeShell {
	f.noPrompt = true
	return f
}

func (f *fakeShell) Output() <-chan []byte { return f.out }
func (f *fakeShell) Done() <-chan struct{} { return f.done }
func (f *fakeShell) Pid() int              { return 4242 }

func (f *fakeShell) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.done)
		close(f.out)
	})
	return nil
}

func (f *fakeShell) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, l := range f.lines {
		if !strings.Contains(l, "PS1='") {
			out = append(out, l)
		}
	}
	return out
}

type fakeSpawner struct {
	handler fakeHandler
	delay   time.Duration

	mu     sync.Mutex
	shells []*fakeShell
}

func (s *fakeSpawner) spawn(_ context.Context, opts ShellOptions) (Shell, error) {
	sh := newFakeShell(opts.Dir, s.handler)
	sh.delay = s.delay
	s.mu.Lock()
	s.shells = append(s.shells, sh)
	s.mu.Unlock()
	return sh, nil
}

func (s *fakeSpawner) last() *fakeShell {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shells[len(s.shells)-1]
}

func (s *fakeSpawner) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.shells)
}

// miniShell understands just enough commands for executor tests.
func miniShell(command, cwd string) (fakeReply, string) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return fakeReply{}, cwd
	}
	switch fields[0] {
	case "echo":
		return fakeReply{output: strings.Join(fields[1:], " ")}, cwd
	case "true", "mkdir":
		return fakeReply{}, cwd
	case "pwd":
		return fakeReply{output: cwd}, cwd
	case "cd":
		dir := "/root"
		if len(fields) > 1 {
			dir = fields[1]
			if !path.IsAbs(dir) {
				dir = path.Join(cwd, dir)
			}
		}
		return fakeReply{}, dir
	case "ls":
		if len(fields) > 1 && strings.HasPrefix(fields[1], "/no_such") {
			return fakeReply{output: "ls: cannot access '" + fields[1] + "': No such file or directory", exit: 2}, cwd
		}
		return fakeReply{output: "a.txt\nb.txt"}, cwd
	case "sleep":
		return fakeReply{hang: true}, cwd
	case "garbage":
		return fakeReply{raw: "garbage without trailer\r\nno status\r\n" + cwd + "\r\n"}, cwd
	case "cdmangled":
		// cd succeeds but the status line is rewritten.
		return fakeReply{raw: "z\r\n" + fields[1] + "\r\n"}, fields[1]
	case "color":
		return fakeReply{output: "\x1b[31mred\x1b[0m"}, cwd
	default:
		return fakeReply{output: "bash: " + fields[0] + ": command not found", exit: 127}, cwd
	}
}
