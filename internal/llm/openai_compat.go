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

type openAICompatClient struct {
	http *http.Client
	cfg  Config
	u    *url.URL
}

func newOpenAICompatClient(httpClient *http.Client, cfg Config) (Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("LOGWISE_LLM_BASE_URL: %w", err)
	}
	return &openAICompatClient{http: httpClient, cfg: cfg, u: base}, nil
}

type oaiChatReq struct {
	Model     string       `json:"model"`
	Messages  []oaiChatMsg `json:"messages"`
	Stream    bool         `json:"stream,omitempty"`
	MaxTokens int          `json:"max_tokens,omitempty"`
}

type oaiChatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

type oaiChatResp struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *oaiError `json:"error,omitempty"`
}

type oaiStreamResp struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Error *oaiError `json:"error,omitempty"`
}

func (c *openAICompatClient) Generate(ctx context.Context, req Request) (Result, error) {
	reqURL := c.u.ResolveReference(&url.URL{Path: strings.TrimSpace(c.cfg.ChatPath)})

	msgs := make([]oaiChatMsg, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := strings.TrimSpace(m.Role)
		if role == "" {
			role = "user"
		}
		msgs = append(msgs, oaiChatMsg{Role: role, Content: m.Content})
	}

	payload := oaiChatReq{
		Model:     c.cfg.Model,
		Messages:  msgs,
		Stream:    req.OnTextDelta != nil,
		MaxTokens: req.MaxTokens,
	}

	body, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
		return Result{}, fmt.Errorf("llm http %d %s: %s", resp.StatusCode, reqURL.String(), strings.TrimSpace(string(b)))
	}

	if req.OnTextDelta != nil {
		return c.readStream(resp.Body, req.OnTextDelta)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return Result{}, err
	}
	var out oaiChatResp
	if err := json.Unmarshal(b, &out); err != nil {
		return Result{}, fmt.Errorf("llm decode: %w", err)
	}
	if out.Error != nil && strings.TrimSpace(out.Error.Message) != "" {
		return Result{}, fmt.Errorf("llm error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return Result{}, fmt.Errorf("llm: empty choices")
	}
	return Result{Text: out.Choices[0].Message.Content}, nil
}

func (c *openAICompatClient) readStream(r io.Reader, onDelta func(string)) (Result, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	var text strings.Builder

	// Minimal SSE parser: collect "data:" lines until a blank line, then emit one event.
	var dataLines []string
	flushEvent := func() (bool, error) {
		if len(dataLines) == 0 {
			return false, nil
		}
		data := strings.TrimSpace(strings.Join(dataLines, "\n"))
		dataLines = dataLines[:0]
		if data == "" {
			return false, nil
		}
		if data == "[DONE]" {
			return true, nil
		}
		var chunk oaiStreamResp
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Some gateways send keepalive garbage.
			return false, nil
		}
		if chunk.Error != nil && strings.TrimSpace(chunk.Error.Message) != "" {
			return false, fmt.Errorf("llm error: %s", chunk.Error.Message)
		}
		for _, choice := range chunk.Choices {
			if d := choice.Delta.Content; d != "" {
				onDelta(d)
				text.WriteString(d)
			}
		}
		return false, nil
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return Result{}, err
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			done, ferr := flushEvent()
			if ferr != nil {
				return Result{}, ferr
			}
			if done {
				break
			}
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if _, err := flushEvent(); err != nil {
		return Result{}, err
	}
	return Result{Text: text.String()}, nil
}
