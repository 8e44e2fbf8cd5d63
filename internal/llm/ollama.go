package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ollamaClient talks to the native /api/generate endpoint, which streams
// newline-delimited JSON objects.
type ollamaClient struct {
	http *http.Client
	cfg  Config
	u    *url.URL
}

func newOllamaClient(httpClient *http.Client, cfg Config) (Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultOllamaURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("LOGWISE_LLM_BASE_URL: %w", err)
	}
	return &ollamaClient{http: httpClient, cfg: cfg, u: u}, nil
}

type ollamaReq struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type ollamaChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (c *ollamaClient) Generate(ctx context.Context, req Request) (Result, error) {
	reqURL := c.u.ResolveReference(&url.URL{Path: "/api/generate"})

	payload := ollamaReq{
		Model:   c.cfg.Model,
		Prompt:  flattenPrompt(req.Messages),
		Stream:  true,
		Options: ollamaOptions{NumPredict: req.MaxTokens},
	}
	body, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
		return Result{}, fmt.Errorf("llm http %d %s: %s", resp.StatusCode, reqURL.String(), strings.TrimSpace(string(b)))
	}
	return readOllamaStream(resp.Body, req.OnTextDelta)
}

func readOllamaStream(r io.Reader, onDelta func(string)) (Result, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var text strings.Builder
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return Result{}, fmt.Errorf("llm decode: %w", err)
		}
		if chunk.Error != "" {
			return Result{}, fmt.Errorf("llm error: %s", chunk.Error)
		}
		if chunk.Response != "" {
			if onDelta != nil {
				onDelta(chunk.Response)
			}
			text.WriteString(chunk.Response)
		}
		if chunk.Done {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return Result{}, err
	}
	return Result{Text: text.String()}, nil
}

// flattenPrompt joins the conversation into the single prompt string
// /api/generate expects. A lone user message is passed through verbatim.
func flattenPrompt(msgs []Message) string {
	if len(msgs) == 1 {
		return msgs[0].Content
	}
	var sb strings.Builder
	for i, m := range msgs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		if role := strings.TrimSpace(m.Role); role != "" && role != "user" {
			sb.WriteString(role)
			sb.WriteString(": ")
		}
		sb.WriteString(m.Content)
	}
	return sb.String()
}
