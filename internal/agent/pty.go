package agent

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

// Shell is an interactive process whose terminal output arrives as chunks.
type Shell interface {
	Write(p []byte) (int, error)
	// Output is closed once the terminal reaches EOF.
	Output() <-chan []byte
	// Done is closed when the process has exited.
	Done() <-chan struct{}
	Pid() int
	Close() error
}

type ShellOptions struct {
	Path string
	Args []string
	Dir  string
	Env  []string
}

// SpawnFunc starts a Shell. SpawnPTY is the production implementation.
type SpawnFunc func(ctx context.Context, opts ShellOptions) (Shell, error)

type ptyShell struct {
	cmd *exec.Cmd
	f   *os.File
	out chan []byte

	stop      chan struct{}
	closed    chan struct{}
	endOnce   sync.Once
	closeOnce sync.Once
}

// SpawnPTY starts opts.Path as a session leader attached to a new
// pseudo-terminal with local echo disabled.
func SpawnPTY(_ context.Context, opts ShellOptions) (Shell, error) {
	build := func() *exec.Cmd {
		cmd := exec.Command(opts.Path, opts.Args...)
		cmd.Dir = opts.Dir
		cmd.Env = append(os.Environ(), opts.Env...)
		if opts.Dir != "" {
			cmd.Env = append(cmd.Env, "PWD="+opts.Dir)
		}
		return cmd
	}
	ws := &pty.Winsize{Cols: 200, Rows: 50}

	cmd := build()
	f, err := startPTY(cmd, ws, true)
	if err != nil && strings.Contains(err.Error(), "Setctty set but Ctty not valid") {
		// Some platforms reject Setctty; a pty without a controlling terminal
		// still carries the shell's I/O.
		cmd = build()
		f, err = startPTY(cmd, ws, false)
	}
	if err != nil {
		return nil, err
	}

	s := &ptyShell{
		cmd:    cmd,
		f:      f,
		out:    make(chan []byte, 64),
		stop:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go s.readLoop()
	go func() {
		_ = cmd.Wait()
		s.endOnce.Do(func() { close(s.closed) })
	}()
	return s, nil
}

func startPTY(cmd *exec.Cmd, ws *pty.Winsize, setCTTY bool) (*os.File, error) {
	ptyFile, ttyFile, err := pty.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = ttyFile.Close() }()

	if ws != nil {
		_ = pty.Setsize(ptyFile, ws)
	}
	_ = disableEcho(ttyFile)

	cmd.Stdin = ttyFile
	cmd.Stdout = ttyFile
	cmd.Stderr = ttyFile

	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setsid = true
	cmd.SysProcAttr.Setctty = setCTTY
	// Ctty names a descriptor in the child; stdin is the tty.
	cmd.SysProcAttr.Ctty = 0

	if err := cmd.Start(); err != nil {
		_ = ptyFile.Close()
		return nil, err
	}
	return ptyFile, nil
}

func (s *ptyShell) readLoop() {
	defer close(s.out)
	buf := make([]byte, 32*1024)
	for {
		n, err := s.f.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case s.out <- chunk:
			case <-s.stop:
				return
			}
		}
		if err != nil {
			// EIO once the slave side has no more writers.
			return
		}
	}
}

func (s *ptyShell) Write(p []byte) (int, error) { return s.f.Write(p) }
func (s *ptyShell) Output() <-chan []byte       { return s.out }
func (s *ptyShell) Done() <-chan struct{}       { return s.closed }

func (s *ptyShell) Pid() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Close kills the shell's process group and releases the terminal.
func (s *ptyShell) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		if pid := s.Pid(); pid > 0 {
			_ = syscall.Kill(-pid, syscall.SIGKILL)
		}
		err = s.f.Close()
	})
	return err
}
