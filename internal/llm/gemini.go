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

const geminiKeyHeader = "x-goog-api-key"

// geminiClient calls generateContent, or streamGenerateContent with SSE when
// the caller wants deltas.
type geminiClient struct {
	http *http.Client
	cfg  Config
	u    *url.URL
}

func newGeminiClient(httpClient *http.Client, cfg Config) (Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("LOGWISE_LLM_BASE_URL: %w", err)
	}
	if strings.TrimSpace(cfg.GeminiKeyHeader) == "" {
		cfg.GeminiKeyHeader = geminiKeyHeader
	}
	return &geminiClient{http: httpClient, cfg: cfg, u: u}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiReq struct {
	Contents          []geminiContent  `json:"contents"`
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiGenConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type geminiResp struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// text returns the first candidate's text or the error the reply carries.
func (r geminiResp) text() (string, error) {
	if r.Error != nil {
		return "", fmt.Errorf("llm error %d: %s", r.Error.Code, r.Error.Message)
	}
	if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("llm: prompt blocked (%s)", r.PromptFeedback.BlockReason)
	}
	if len(r.Candidates) == 0 {
		return "", nil
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

func (c *geminiClient) endpoint(stream bool) *url.URL {
	method, query := "generateContent", ""
	if stream {
		method, query = "streamGenerateContent", "alt=sse"
	}
	return c.u.ResolveReference(&url.URL{
		Path:     "/v1beta/models/" + url.PathEscape(c.cfg.Model) + ":" + method,
		RawQuery: query,
	})
}

// geminiPayload maps chat roles onto Gemini's user/model turns. System
// messages become the system instruction.
func geminiPayload(req Request) geminiReq {
	var payload geminiReq
	var system []geminiPart
	for _, m := range req.Messages {
		switch strings.ToLower(strings.TrimSpace(m.Role)) {
		case "system":
			system = append(system, geminiPart{Text: m.Content})
		case "assistant", "model":
			payload.Contents = append(payload.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			payload.Contents = append(payload.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		payload.SystemInstruction = &geminiContent{Parts: system}
	}
	if req.MaxTokens > 0 {
		payload.GenerationConfig = &geminiGenConfig{MaxOutputTokens: req.MaxTokens}
	}
	return payload
}

func (c *geminiClient) Generate(ctx context.Context, req Request) (Result, error) {
	stream := req.OnTextDelta != nil
	reqURL := c.endpoint(stream)

	body, _ := json.Marshal(geminiPayload(req))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(c.cfg.GeminiKeyHeader, c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
		return Result{}, fmt.Errorf("llm http %d %s: %s", resp.StatusCode, reqURL.Path, strings.TrimSpace(string(b)))
	}
	if stream {
		return readGeminiSSE(resp.Body, req.OnTextDelta)
	}

	var out geminiResp
	if err := json.NewDecoder(io.LimitReader(resp.Body, 16<<20)).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("llm decode: %w", err)
	}
	text, err := out.text()
	if err != nil {
		return Result{}, err
	}
	if text == "" {
		return Result{}, fmt.Errorf("llm: empty candidates")
	}
	return Result{Text: text}, nil
}

// readGeminiSSE forwards each event's text as a delta. Gemini streams
// increments, not the accumulated reply.
func readGeminiSSE(r io.Reader, onDelta func(string)) (Result, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var text strings.Builder
	for sc.Scan() {
		data, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}
		var out geminiResp
		if err := json.Unmarshal([]byte(data), &out); err != nil {
			return Result{}, fmt.Errorf("llm decode: %w", err)
		}
		delta, err := out.text()
		if err != nil {
			return Result{}, err
		}
		if delta != "" {
			onDelta(delta)
			text.WriteString(delta)
		}
	}
	if err := sc.Err(); err != nil {
		return Result{}, err
	}
	return Result{Text: text.String()}, nil
}
