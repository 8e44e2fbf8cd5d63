package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geminiChunk(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": text}}},
		}},
	})
	return "data: " + string(b) + "\r\n\r\n"
}

func TestGeminiGenerateStreamsDeltas(t *testing.T) {
	var got geminiReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash:streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		assert.Equal(t, "k-test", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		// The second chunk is shorter than the first; it must still arrive.
		for _, part := range []string{"Division by zero ", "on ", "line 1."} {
			fmt.Fprint(w, geminiChunk(part))
		}
	}))
	defer srv.Close()

	c, err := newGeminiClient(srv.Client(), Config{BaseURL: srv.URL, APIKey: "k-test", Model: "gemini-2.0-flash"})
	require.NoError(t, err)

	var deltas []string
	res, err := c.Generate(context.Background(), Request{
		Messages: []Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "explain"},
		},
		MaxTokens:   256,
		OnTextDelta: func(d string) { deltas = append(deltas, d) },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Division by zero ", "on ", "line 1."}, deltas)
	assert.Equal(t, "Division by zero on line 1.", res.Text)

	require.Len(t, got.Contents, 1)
	assert.Equal(t, "user", got.Contents[0].Role)
	assert.Equal(t, "explain", got.Contents[0].Parts[0].Text)
	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "be brief", got.SystemInstruction.Parts[0].Text)
	require.NotNil(t, got.GenerationConfig)
	assert.Equal(t, 256, got.GenerationConfig.MaxOutputTokens)
}

func TestGeminiGenerateUnary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/m:generateContent", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-Api-Key"))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"use "},{"text":"sudo-free paths"}]}}]}`))
	}))
	defer srv.Close()

	c, err := newGeminiClient(srv.Client(), Config{BaseURL: srv.URL, APIKey: "k", Model: "m", GeminiKeyHeader: "X-Api-Key"})
	require.NoError(t, err)
	res, err := c.Generate(context.Background(), Request{Messages: []Message{{Content: "x"}}})
	require.NoError(t, err)
	assert.Equal(t, "use sudo-free paths", res.Text)
}

func TestGeminiGenerateErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		stream bool
		want   string
	}{
		{name: "http status", status: http.StatusTooManyRequests, body: `{"error":{"message":"quota"}}`, want: "llm http 429"},
		{name: "blocked prompt", status: http.StatusOK, body: `{"promptFeedback":{"blockReason":"SAFETY"}}`, want: "SAFETY"},
		{name: "empty reply", status: http.StatusOK, body: `{"candidates":[]}`, want: "empty candidates"},
		{name: "error event", status: http.StatusOK, body: "data: {\"error\":{\"code\":500,\"message\":\"backend\"}}\n\n", stream: true, want: "backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := newGeminiClient(srv.Client(), Config{BaseURL: srv.URL, APIKey: "k", Model: "m"})
			require.NoError(t, err)
			req := Request{Messages: []Message{{Content: "x"}}}
			if tt.stream {
				req.OnTextDelta = func(string) {}
			}
			_, err = c.Generate(context.Background(), req)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), err.Error())
		})
	}
}
