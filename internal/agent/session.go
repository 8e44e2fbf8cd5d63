package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type State int

const (
	StateStarting State = iota
	StateReady
	// StateDegraded: a command outlived its timeout and may still be running.
	StateDegraded
	// StateBroken: the shell exited or its terminal stopped accepting input.
	StateBroken
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateBroken:
		return "broken"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RecoveryPolicy decides what happens to a degraded or broken session.
type RecoveryPolicy string

const (
	// RecoveryRestart respawns the shell before the next command runs.
	RecoveryRestart RecoveryPolicy = "restart"
	// RecoveryRefuse fails every request until Reset is called.
	RecoveryRefuse RecoveryPolicy = "refuse"
)

func ParseRecoveryPolicy(s string) (RecoveryPolicy, error) {
	switch RecoveryPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", RecoveryRestart:
		return RecoveryRestart, nil
	case RecoveryRefuse:
		return RecoveryRefuse, nil
	default:
		return "", fmt.Errorf("unknown recovery policy %q (want restart or refuse)", s)
	}
}

var DefaultShellArgs = []string{"--noprofile", "--norc", "--noediting", "-i"}

type SessionConfig struct {
	Shell string
	Args  []string
	// Dir is the starting working directory. Defaults to the process cwd.
	Dir string
	Env []string
	// Token is installed as the prompt. Generated when empty.
	Token          string
	StartupTimeout time.Duration
	Recovery       RecoveryPolicy
	Spawn          SpawnFunc
	Logger         *slog.Logger
}

func (c *SessionConfig) setDefaults() error {
	if c.Shell == "" {
		c.Shell = "/bin/bash"
	}
	if c.Args == nil {
		c.Args = append([]string(nil), DefaultShellArgs...)
	}
	if c.Dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		c.Dir = wd
	}
	if c.Token == "" {
		c.Token = "__LOGWISE_" + strings.ReplaceAll(uuid.NewString(), "-", "") + "__"
	}
	if err := ValidateToken(c.Token); err != nil {
		return err
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = 10 * time.Second
	}
	if c.Recovery == "" {
		c.Recovery = RecoveryRestart
	}
	if c.Spawn == nil {
		c.Spawn = SpawnPTY
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return nil
}

// ValidateToken rejects sentinels that cannot be installed as a prompt or are
// short enough to occur in ordinary output.
func ValidateToken(token string) error {
	if len(token) < 8 {
		return errors.New("prompt token must be at least 8 characters")
	}
	if strings.ContainsAny(token, "'\\\n\r$`") {
		return errors.New("prompt token must not contain quotes, backslashes, dollar signs or line breaks")
	}
	return nil
}

// Status is a point-in-time view of the session.
type Status struct {
	State     State
	Cwd       string
	Pid       int
	Restarts  int
	StartedAt time.Time
}

// Session owns one interactive shell. Every exchange with the shell happens
// through a Turn, and at most one Turn exists at a time.
type Session struct {
	cfg SessionConfig
	log *slog.Logger
	sem chan struct{}

	// Guarded by sem.
	pending []byte

	mu        sync.Mutex
	shell     Shell
	state     State
	cwd       string
	restarts  int
	startedAt time.Time
}

func NewSession(cfg SessionConfig) (*Session, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	return &Session{
		cfg:   cfg,
		log:   cfg.Logger,
		sem:   make(chan struct{}, 1),
		state: StateStarting,
		cwd:   cfg.Dir,
	}, nil
}

// Start spawns the shell and waits for the first prompt.
func (s *Session) Start(ctx context.Context) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()
	if s.State() == StateClosed {
		return ErrSessionClosed
	}
	return s.spawnLocked(ctx, s.cfg.Dir)
}

// Acquire waits until the session is free. A degraded or broken shell is
// restarted first when the recovery policy allows it.
func (s *Session) Acquire(ctx context.Context) (*Turn, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	if err := s.ensureUsableLocked(ctx); err != nil {
		s.unlock()
		return nil, err
	}
	return &Turn{s: s}, nil
}

// Reset discards the current shell and starts a fresh one in the last known
// working directory.
func (s *Session) Reset(ctx context.Context) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()
	if s.State() == StateClosed {
		return ErrSessionClosed
	}
	prev := s.State()
	if err := s.restartLocked(ctx); err != nil {
		return err
	}
	s.log.Info("shell reset", "previous_state", prev.String(), "cwd", s.Cwd())
	return nil
}

// Close kills the shell. A command in progress observes ErrSessionBroken.
func (s *Session) Close() error {
	s.mu.Lock()
	sh := s.shell
	s.state = StateClosed
	s.shell = nil
	s.mu.Unlock()
	if sh == nil {
		return nil
	}
	return sh.Close()
}

// Cwd returns the working directory reported by the last completed command.
// It does not wait for a running command.
func (s *Session) Cwd() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{State: s.state, Cwd: s.cwd, Restarts: s.restarts, StartedAt: s.startedAt}
	if s.shell != nil {
		st.Pid = s.shell.Pid()
	}
	return st
}

func (s *Session) Token() string { return s.cfg.Token }

func (s *Session) lock(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) unlock() { <-s.sem }

func (s *Session) setState(st State) {
	s.mu.Lock()
	if s.state != StateClosed {
		s.state = st
	}
	s.mu.Unlock()
}

func (s *Session) setCwd(cwd string) {
	s.mu.Lock()
	s.cwd = cwd
	s.mu.Unlock()
}

func (s *Session) currentShell() Shell {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shell
}

func (s *Session) ensureUsableLocked(ctx context.Context) error {
	st := s.State()
	if st == StateReady {
		if sh := s.currentShell(); sh != nil {
			select {
			case <-sh.Done():
				s.setState(StateBroken)
				st = StateBroken
			default:
				return nil
			}
		}
	}

	var fault error
	switch st {
	case StateClosed:
		return ErrSessionClosed
	case StateDegraded:
		fault = ErrSessionDegraded
	case StateStarting, StateBroken:
		fault = ErrSessionBroken
	default:
		return nil
	}
	if s.cfg.Recovery == RecoveryRefuse {
		return fmt.Errorf("%w (reset required)", fault)
	}
	s.log.Warn("restarting shell", "previous_state", st.String(), "cwd", s.Cwd())
	if err := s.restartLocked(ctx); err != nil {
		return fmt.Errorf("%w: restart failed: %v", fault, err)
	}
	return nil
}

func (s *Session) restartLocked(ctx context.Context) error {
	if sh := s.currentShell(); sh != nil {
		_ = sh.Close()
	}
	dir := s.Cwd()
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		dir = s.cfg.Dir
	}
	if err := s.spawnLocked(ctx, dir); err != nil {
		return err
	}
	s.mu.Lock()
	s.restarts++
	s.mu.Unlock()
	return nil
}

func (s *Session) spawnLocked(ctx context.Context, dir string) error {
	s.setState(StateStarting)
	sh, err := s.cfg.Spawn(ctx, ShellOptions{Path: s.cfg.Shell, Args: s.cfg.Args, Dir: dir, Env: s.cfg.Env})
	if err != nil {
		s.setState(StateBroken)
		return fmt.Errorf("%w: spawn %s: %v", ErrStartup, s.cfg.Shell, err)
	}
	s.mu.Lock()
	s.shell = sh
	s.mu.Unlock()
	s.pending = nil

	if _, err := sh.Write([]byte(bootstrapLine(s.cfg.Token))); err != nil {
		_ = sh.Close()
		s.setState(StateBroken)
		return fmt.Errorf("%w: write prompt setup: %v", ErrStartup, err)
	}
	if _, err := s.awaitLocked(s.cfg.StartupTimeout); err != nil {
		_ = sh.Close()
		s.setState(StateBroken)
		return fmt.Errorf("%w: %v", ErrStartup, err)
	}

	s.mu.Lock()
	if s.state != StateClosed {
		s.state = StateReady
	}
	s.cwd = dir
	s.startedAt = time.Now()
	s.mu.Unlock()
	s.log.Debug("shell ready", "pid", sh.Pid(), "cwd", dir)
	return nil
}

// bootstrapLine installs the sentinel as PS1. The assignment is split into two
// quoted halves so an echoed copy of this line never contains the token.
func bootstrapLine(token string) string {
	half := len(token) / 2
	return "stty -echo 2>/dev/null; unset PROMPT_COMMAND; PS2=''; PS1='" + token[:half] + "''" + token[half:] + "'\n"
}

// awaitLocked reads terminal output until the token appears and returns the
// text preceding it. Anything after the token is kept for the next call.
func (s *Session) awaitLocked(timeout time.Duration) (string, error) {
	sh := s.currentShell()
	if sh == nil {
		return "", ErrSessionBroken
	}
	token := []byte(s.cfg.Token)
	buf := s.pending
	s.pending = nil
	if i := bytes.Index(buf, token); i >= 0 {
		s.pending = append([]byte(nil), buf[i+len(token):]...)
		return string(buf[:i]), nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case chunk, ok := <-sh.Output():
			if !ok {
				s.pending = nil
				return string(buf), ErrSessionBroken
			}
			from := len(buf) - len(token) + 1
			if from < 0 {
				from = 0
			}
			buf = append(buf, chunk...)
			if i := bytes.Index(buf[from:], token); i >= 0 {
				i += from
				s.pending = append([]byte(nil), buf[i+len(token):]...)
				return string(buf[:i]), nil
			}
		case <-timer.C:
			s.pending = nil
			return string(buf), ErrTimeout
		}
	}
}

// drainLocked discards output that arrived while no command was running.
func (s *Session) drainLocked() {
	s.pending = nil
	sh := s.currentShell()
	if sh == nil {
		return
	}
	for {
		select {
		case _, ok := <-sh.Output():
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Turn is exclusive access to the shell. It must be released exactly once.
type Turn struct {
	s    *Session
	once sync.Once
}

// Send writes one line to the shell after discarding stale output.
func (t *Turn) Send(line string) error {
	t.s.drainLocked()
	sh := t.s.currentShell()
	if sh == nil {
		return ErrSessionBroken
	}
	if _, err := sh.Write([]byte(line + "\n")); err != nil {
		t.s.setState(StateBroken)
		return fmt.Errorf("%w: write: %v", ErrSessionBroken, err)
	}
	return nil
}

// AwaitToken blocks until the prompt returns or timeout elapses. A timeout
// leaves the session degraded; a closed terminal leaves it broken.
func (t *Turn) AwaitToken(timeout time.Duration) (string, error) {
	out, err := t.s.awaitLocked(timeout)
	switch {
	case errors.Is(err, ErrTimeout):
		t.s.setState(StateDegraded)
	case errors.Is(err, ErrSessionBroken):
		t.s.setState(StateBroken)
	}
	return out, err
}

func (t *Turn) Cwd() string { return t.s.Cwd() }

func (t *Turn) SetCwd(cwd string) { t.s.setCwd(cwd) }

func (t *Turn) Release() { t.once.Do(t.s.unlock) }
