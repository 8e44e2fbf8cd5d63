package llm

import (
	"context"
	"iter"
	"strings"

	"github.com/antonkrylov/logwise/internal/classify"
)

// Explainer turns an error snippet into a short, streamed explanation.
type Explainer interface {
	// Explain yields text fragments as they arrive. The sequence is finite and
	// can only be ranged over once. A provider failure is yielded as the last
	// item's error.
	Explain(ctx context.Context, snippet string) iter.Seq2[string, error]
}

type explainer struct {
	client    Client
	language  string
	maxTokens int
}

func NewExplainer(client Client, cfg Config) Explainer {
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}
	return &explainer{client: client, language: cfg.Language, maxTokens: maxTokens}
}

// Prompt wraps snippet in the debugging-assistant instructions.
func Prompt(snippet, language string) string {
	language = strings.TrimSpace(language)
	if language == "" {
		language = "English"
	}
	var sb strings.Builder
	sb.WriteString("You are a Linux and Python debugging assistant.\n")
	sb.WriteString("Please reply only in " + language + ". ")
	sb.WriteString("If the error is within the file itself, please tell me which row it is. ")
	sb.WriteString("Explain briefly and give concise suggestions:\n----\n")
	sb.WriteString(snippet)
	sb.WriteString("\n----")
	return sb.String()
}

func (e *explainer) Explain(ctx context.Context, snippet string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stopped := false
		streamed := false
		res, err := e.client.Generate(ctx, Request{
			Messages:  []Message{{Role: "user", Content: Prompt(snippet, e.language)}},
			MaxTokens: e.maxTokens,
			OnTextDelta: func(delta string) {
				if stopped || delta == "" {
					return
				}
				streamed = true
				if !yield(delta, nil) {
					stopped = true
					cancel()
				}
			},
		})
		if stopped {
			return
		}
		if err != nil {
			yield("", err)
			return
		}
		// Providers that ignore OnTextDelta still return the full text.
		if !streamed && res.Text != "" {
			yield(res.Text, nil)
		}
	}
}

// Analyze emits the explanation for snippet piece by piece. Snippets that
// report no error are emitted as-is without contacting the model.
func Analyze(ctx context.Context, ex Explainer, snippet string, emit func(string)) error {
	if classify.NoError(snippet) || ex == nil {
		emit(snippet)
		return nil
	}
	for text, err := range ex.Explain(ctx, snippet) {
		if err != nil {
			return err
		}
		emit(text)
	}
	return nil
}
