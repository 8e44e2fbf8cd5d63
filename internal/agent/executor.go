package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/antonkrylov/logwise/internal/tracing"
)

// ErrInvalidCommand is returned for commands spanning several lines. Each
// line would be read as a separate command and the prompt would come back
// before the trailer.
var ErrInvalidCommand = errors.New("agent: command must be a single line")

const DefaultCommandTimeout = 1800 * time.Second

// Recorder receives every completed or rejected execution.
type Recorder interface {
	Record(ctx context.Context, exec *Execution) error
}

type ExecutorConfig struct {
	Session  *Session
	Filter   *Filter
	Timeout  time.Duration
	Recorder Recorder
	Logger   *slog.Logger
}

// Executor runs commands on a Session: filter, frame, wait, parse, route.
type Executor struct {
	session  *Session
	filter   *Filter
	timeout  time.Duration
	recorder Recorder
	log      *slog.Logger
}

func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.Session == nil {
		return nil, errors.New("executor requires a session")
	}
	if cfg.Filter == nil {
		cfg.Filter = NewFilter(DefaultRules())
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCommandTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Executor{
		session:  cfg.Session,
		filter:   cfg.Filter,
		timeout:  cfg.Timeout,
		recorder: cfg.Recorder,
		log:      cfg.Logger,
	}, nil
}

func (e *Executor) Session() *Session { return e.session }

func (e *Executor) Timeout() time.Duration { return e.timeout }

// Execute runs one command. Rejections, timeouts, parse failures and nonzero
// exits are reported in the returned Execution; a non-nil error means the
// session itself could not serve the request.
func (e *Executor) Execute(ctx context.Context, command string) (*Execution, error) {
	if strings.TrimSpace(command) == "" {
		return nil, ErrEmptyCommand
	}
	if strings.ContainsAny(command, "\r\n") {
		return nil, ErrInvalidCommand
	}

	ctx, span := tracing.StartSpan(ctx, "agent.execute",
		trace.WithAttributes(tracing.StringAttr("command", command)))
	defer span.End()

	exec := &Execution{
		ID:        uuid.NewString(),
		Command:   command,
		StartedAt: time.Now(),
	}

	if rule, blocked := e.filter.Check(command); blocked {
		e.log.Warn("command rejected", "cmd", command, "rule", rule.String())
		r := rule
		exec.Rule = &r
		exec.Outcome = OutcomeRejected
		exec.Result = Result{ExitCode: -1, Stderr: RejectionMessage(command, rule), Cwd: e.session.Cwd()}
		e.finish(ctx, span, exec)
		return exec, nil
	}

	turn, err := e.session.Acquire(ctx)
	if err != nil {
		return nil, e.fault(ctx, span, exec, err)
	}
	defer turn.Release()

	e.log.Info("command received", "cmd", command)
	if err := turn.Send(Wrap(command)); err != nil {
		return nil, e.fault(ctx, span, exec, err)
	}

	raw, err := turn.AwaitToken(e.timeout)
	switch {
	case errors.Is(err, ErrTimeout):
		e.log.Warn("command timed out", "cmd", command, "timeout", e.timeout)
		exec.Outcome = OutcomeTimeout
		exec.Result = Result{
			ExitCode: -1,
			Stderr:   fmt.Sprintf("[Runner ERROR] Command '%s' timed out after %s.", command, formatTimeout(e.timeout)),
			Cwd:      turn.Cwd(),
		}
		e.finish(ctx, span, exec)
		return exec, nil
	case err != nil:
		return nil, e.fault(ctx, span, exec, err)
	}

	parsed := Parse(raw, turn.Cwd())
	turn.SetCwd(parsed.Cwd)
	if parsed.Failed {
		e.log.Error("failed to parse command trailer", "cmd", command, "raw", raw, "cleaned", parsed.Cleaned)
		exec.Outcome = OutcomeParseFailure
	} else {
		exec.Outcome = OutcomeOK
		if parsed.ExitCode != 0 {
			exec.Outcome = OutcomeFailed
		}
	}
	exec.Result = Route(parsed.ExitCode, parsed.Output, parsed.Cwd)
	e.log.Info("command executed", "cmd", command, "exit", parsed.ExitCode, "cwd", parsed.Cwd)
	e.finish(ctx, span, exec)
	return exec, nil
}

func (e *Executor) finish(ctx context.Context, span trace.Span, exec *Execution) {
	exec.CompletedAt = time.Now()
	span.SetAttributes(
		tracing.IntAttr("exit_code", exec.Result.ExitCode),
		tracing.StringAttr("outcome", string(exec.Outcome)),
	)
	if exec.Outcome == OutcomeOK {
		tracing.SetOK(span)
	}
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Record(context.WithoutCancel(ctx), exec); err != nil {
		e.log.Warn("record execution failed", "id", exec.ID, "err", err)
	}
}

// fault records a command the session could not run and returns err. A
// caller that gave up while queueing is not recorded.
func (e *Executor) fault(ctx context.Context, span trace.Span, exec *Execution, err error) error {
	tracing.RecordError(span, err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	e.log.Error("session fault", "cmd", exec.Command, "err", err, "state", e.session.State().String())
	exec.Outcome = OutcomeFault
	exec.Result = Result{ExitCode: -1, Stderr: err.Error(), Cwd: e.session.Cwd()}
	e.finish(ctx, span, exec)
	return err
}

func formatTimeout(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%d seconds", int64(d/time.Second))
	}
	return d.String()
}
