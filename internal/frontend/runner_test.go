package frontend

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antonkrylov/logwise/internal/agent"
	"github.com/antonkrylov/logwise/internal/classify"
	"github.com/antonkrylov/logwise/internal/history"
	"github.com/antonkrylov/logwise/internal/wire"
)

type fakeAgent struct {
	results  map[string]agent.Result
	commands []string
}

func (f *fakeAgent) Run(_ context.Context, command string) agent.Result {
	f.commands = append(f.commands, command)
	if r, ok := f.results[command]; ok {
		return r
	}
	return agent.Result{ExitCode: 127, Stderr: "bash: " + command + ": command not found", Cwd: "/work"}
}

func (f *fakeAgent) Status(context.Context) (wire.Status, error) { return wire.Status{}, nil }
func (f *fakeAgent) Reset(context.Context) (wire.Status, error)  { return wire.Status{}, nil }
func (f *fakeAgent) History(context.Context, int) ([]history.Entry, error) {
	return nil, nil
}
func (f *fakeAgent) Close() error { return nil }

type fakeExplainer struct {
	snippets []string
	err      error
}

func (f *fakeExplainer) Explain(_ context.Context, snippet string) iter.Seq2[string, error] {
	f.snippets = append(f.snippets, snippet)
	return func(yield func(string, error) bool) {
		if f.err != nil {
			yield("", f.err)
			return
		}
		for _, part := range []string{"it ", "failed"} {
			if !yield(part, nil) {
				return
			}
		}
	}
}

func TestRunnerTracksCwdAndHistory(t *testing.T) {
	fa := &fakeAgent{results: map[string]agent.Result{
		"cd /tmp": {ExitCode: 0, Cwd: "/tmp"},
	}}
	r := NewRunner(fa, nil, nil)
	require.Equal(t, InitialCwd, r.Cwd())

	run, err := r.Run(context.Background(), "  cd /tmp ")
	require.NoError(t, err)
	require.Equal(t, "cd /tmp", run.Command)
	require.Equal(t, "/tmp", r.Cwd())
	require.Equal(t, classify.SilentSuccess, run.Snippet)
	require.Equal(t, []string{"cd /tmp"}, r.History().Recent())

	_, err = r.Run(context.Background(), "")
	require.ErrorIs(t, err, ErrEmptyCommand)
	_, err = r.Run(context.Background(), CustomCommand)
	require.ErrorIs(t, err, ErrEmptyCommand)
	require.Equal(t, []string{"cd /tmp"}, fa.commands)
}

func TestRunnerExplainsFailures(t *testing.T) {
	ex := &fakeExplainer{}
	r := NewRunner(&fakeAgent{}, ex, nil)

	run, err := r.Run(context.Background(), "frobnicate")
	require.NoError(t, err)
	require.Equal(t, 127, run.Result.ExitCode)
	require.Contains(t, run.Snippet, "command not found")

	var sb strings.Builder
	require.NoError(t, r.Explain(context.Background(), run.Snippet, func(s string) { sb.WriteString(s) }))
	require.Equal(t, "it failed", sb.String())
	require.Equal(t, []string{run.Snippet}, ex.snippets)
}

func TestRunnerSkipsModelOnSuccess(t *testing.T) {
	ex := &fakeExplainer{}
	r := NewRunner(&fakeAgent{results: map[string]agent.Result{
		"echo hi": {ExitCode: 0, Stdout: "hi", Cwd: "/work"},
	}}, ex, nil)

	run, err := r.Run(context.Background(), "echo hi")
	require.NoError(t, err)

	var got []string
	require.NoError(t, r.Explain(context.Background(), run.Snippet, func(s string) { got = append(got, s) }))
	require.Equal(t, []string{classify.Success}, got)
	require.Empty(t, ex.snippets)
}

func TestRunnerExplainTextSurfacesProviderError(t *testing.T) {
	boom := errors.New("ollama down")
	r := NewRunner(&fakeAgent{}, &fakeExplainer{err: boom}, nil)

	var got []string
	snippet, err := r.ExplainText(context.Background(), "starting\nError: disk full\n", func(s string) { got = append(got, s) })
	require.ErrorIs(t, err, boom)
	require.Equal(t, "Error: disk full", snippet)
	require.Equal(t, []string{"Error: disk full\n\n"}, got)
}

func TestRunnerExplainTextCleanLog(t *testing.T) {
	ex := &fakeExplainer{}
	r := NewRunner(&fakeAgent{}, ex, nil)

	var got []string
	snippet, err := r.ExplainText(context.Background(), "all good\n", func(s string) { got = append(got, s) })
	require.NoError(t, err)
	require.Equal(t, classify.Success, snippet)
	require.Equal(t, []string{classify.Success}, got)
	require.Empty(t, ex.snippets)
}
