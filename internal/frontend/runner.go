package frontend

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/antonkrylov/logwise/internal/agent"
	"github.com/antonkrylov/logwise/internal/classify"
	"github.com/antonkrylov/logwise/internal/client"
	"github.com/antonkrylov/logwise/internal/llm"
)

// InitialCwd is shown until the agent reports a directory.
const InitialCwd = "~"

var ErrEmptyCommand = errors.New("command is empty, please enter a command")

// Run is one command sent through a Runner.
type Run struct {
	Command string
	Result  agent.Result
	// Snippet is the part of the output worth explaining.
	Snippet string
}

// Runner sends commands to an agent, remembers them and explains the results.
// It is safe for concurrent use.
type Runner struct {
	agent     client.Agent
	explainer llm.Explainer
	history   *History

	mu  sync.Mutex
	cwd string
}

// NewRunner wires a runner. explainer may be nil, in which case explanations
// are replaced by the classifier snippet.
func NewRunner(a client.Agent, explainer llm.Explainer, history *History) *Runner {
	if history == nil {
		history = NewHistory(MaxHistory)
	}
	return &Runner{agent: a, explainer: explainer, history: history, cwd: InitialCwd}
}

func (r *Runner) History() *History { return r.history }

// Cwd is the directory reported by the most recent command.
func (r *Runner) Cwd() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cwd
}

// Run executes command on the agent. Only an empty command is an error;
// agent and transport failures come back inside the result.
func (r *Runner) Run(ctx context.Context, command string) (Run, error) {
	command = strings.TrimSpace(command)
	if command == "" || command == CustomCommand {
		return Run{}, ErrEmptyCommand
	}
	r.history.Add(command)

	res := r.agent.Run(ctx, command)
	if res.Cwd != "" {
		r.mu.Lock()
		r.cwd = res.Cwd
		r.mu.Unlock()
	}
	return Run{
		Command: command,
		Result:  res,
		Snippet: classify.WithCode(res.ExitCode, res.Stdout, res.Stderr),
	}, nil
}

// Explain streams the explanation of snippet to emit.
func (r *Runner) Explain(ctx context.Context, snippet string, emit func(string)) error {
	return llm.Analyze(ctx, r.explainer, snippet, emit)
}

// ExplainText classifies free text such as a pasted log. When it finds an
// error and a model is configured, the snippet is emitted ahead of its
// explanation. The snippet is also returned.
func (r *Runner) ExplainText(ctx context.Context, text string, emit func(string)) (string, error) {
	snippet := classify.FromText(text)
	if !classify.NoError(snippet) && r.explainer != nil {
		emit(snippet + "\n\n")
	}
	return snippet, r.Explain(ctx, snippet, emit)
}

// NewExplainer builds the explainer described by cfg, wrapped in a circuit
// breaker. It returns nil without error when the explainer is disabled.
func NewExplainer(cfg llm.Config, logger *slog.Logger) (llm.Explainer, error) {
	c, err := llm.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, nil
	}
	return llm.NewExplainer(llm.NewBreakerClient(c, cfg, logger), cfg), nil
}
