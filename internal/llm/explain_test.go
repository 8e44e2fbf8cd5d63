package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antonkrylov/logwise/internal/classify"
)

func TestPromptWrapsSnippet(t *testing.T) {
	p := Prompt("ZeroDivisionError: division by zero", "")
	assert.True(t, strings.HasPrefix(p, "You are a Linux and Python debugging assistant.\n"))
	assert.Contains(t, p, "Please reply only in English.")
	assert.Contains(t, p, "which row it is")
	assert.True(t, strings.HasSuffix(p, "\n----\nZeroDivisionError: division by zero\n----"))

	assert.Contains(t, Prompt("x", "Traditional Chinese"), "reply only in Traditional Chinese.")
}

func TestExplainStreamsDeltas(t *testing.T) {
	fc := &fakeClient{stream: true, deltas: []string{"a", "b", "c"}, text: "abc"}
	ex := NewExplainer(fc, Config{})

	var got []string
	for text, err := range ex.Explain(context.Background(), "Traceback ...") {
		require.NoError(t, err)
		got = append(got, text)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestExplainFallsBackToFullText(t *testing.T) {
	fc := &fakeClient{text: "whole answer"}
	var got []string
	for text, err := range NewExplainer(fc, Config{}).Explain(context.Background(), "err") {
		require.NoError(t, err)
		got = append(got, text)
	}
	assert.Equal(t, []string{"whole answer"}, got)
}

func TestExplainStopsEarly(t *testing.T) {
	fc := &fakeClient{stream: true, deltas: []string{"a", "b", "c"}}
	for text := range NewExplainer(fc, Config{}).Explain(context.Background(), "err") {
		assert.Equal(t, "a", text)
		break
	}
	assert.ErrorIs(t, fc.ctxErr, context.Canceled)
}

func TestExplainYieldsProviderError(t *testing.T) {
	fc := &fakeClient{err: errors.New("llm circuit open")}
	var errs []error
	for _, err := range NewExplainer(fc, Config{}).Explain(context.Background(), "err") {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "llm circuit open")
}

func TestAnalyzeSkipsModelWithoutError(t *testing.T) {
	fc := &fakeClient{text: "should not be called"}
	var out strings.Builder
	err := Analyze(context.Background(), NewExplainer(fc, Config{}), classify.Success, func(s string) { out.WriteString(s) })
	require.NoError(t, err)
	assert.Equal(t, classify.Success, out.String())
	assert.Zero(t, fc.calls)

	fc = &fakeClient{stream: true, deltas: []string{"fix ", "it"}}
	out.Reset()
	require.NoError(t, Analyze(context.Background(), NewExplainer(fc, Config{}), "NameError: x", func(s string) { out.WriteString(s) }))
	assert.Equal(t, "fix it", out.String())
}
