package agent

import (
	"errors"
	"time"
)

var (
	// ErrStartup is returned when the shell never printed the sentinel prompt.
	ErrStartup = errors.New("agent: shell did not become ready")
	// ErrTimeout is returned by Turn.AwaitToken when the prompt did not return in time.
	ErrTimeout = errors.New("agent: timed out waiting for prompt")
	// ErrSessionBroken means the shell process is gone or its terminal failed.
	ErrSessionBroken = errors.New("agent: shell session is broken")
	// ErrSessionDegraded means a previous command timed out and the shell is still busy.
	ErrSessionDegraded = errors.New("agent: shell session is degraded")
	ErrSessionClosed   = errors.New("agent: shell session is closed")
	ErrEmptyCommand    = errors.New("agent: no command provided")
)

// Result is the wire-visible outcome of one command.
type Result struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	Cwd      string `json:"cwd"`
}

// Failed reports whether the result should be treated as a failure by callers.
func (r Result) Failed() bool { return r.ExitCode != 0 }

// Output returns whichever stream carries the captured text.
func (r Result) Output() string {
	if r.Stdout != "" {
		return r.Stdout
	}
	return r.Stderr
}

type Outcome string

const (
	OutcomeOK           Outcome = "ok"
	OutcomeFailed       Outcome = "failed"
	OutcomeRejected     Outcome = "rejected"
	OutcomeTimeout      Outcome = "timeout"
	OutcomeParseFailure Outcome = "parse_failure"
	// OutcomeFault is recorded when the session could not run the command.
	OutcomeFault Outcome = "fault"
)

// Execution records a single request handled by the Executor.
type Execution struct {
	ID          string
	Command     string
	Result      Result
	Outcome     Outcome
	Rule        *Rule
	StartedAt   time.Time
	CompletedAt time.Time
}

func (e *Execution) Duration() time.Duration {
	if e == nil || e.CompletedAt.IsZero() {
		return 0
	}
	return e.CompletedAt.Sub(e.StartedAt)
}

// Route places captured output on stdout for exit code 0 and on stderr otherwise.
func Route(exitCode int, output, cwd string) Result {
	if exitCode == 0 {
		return Result{ExitCode: 0, Stdout: output, Cwd: cwd}
	}
	return Result{ExitCode: exitCode, Stderr: output, Cwd: cwd}
}
