package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAICompat_ReadStream_SSEMultiLineData(t *testing.T) {
	c := &openAICompatClient{}

	// One SSE event split across multiple data lines (newline is legal JSON whitespace).
	sse := strings.Join([]string{
		"data: {\"choices\":",
		"data: [{\"delta\":{\"content\":\"hi\"},\"index\":0}]}",
		"",
		"data: [DONE]",
		"",
	}, "\n")

	var got strings.Builder
	res, err := c.readStream(strings.NewReader(sse), func(d string) { got.WriteString(d) })
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != "hi" {
		t.Fatalf("delta=%q", got.String())
	}
	if res.Text != "hi" {
		t.Fatalf("text=%q", res.Text)
	}
}

func TestOpenAICompat_GenerateSendsMaxTokens(t *testing.T) {
	var got oaiChatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path=%s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("auth=%q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"check line 3"}}]}`))
	}))
	defer srv.Close()

	c, err := newOpenAICompatClient(srv.Client(), Config{BaseURL: srv.URL, APIKey: "sk-test", Model: "m", ChatPath: "/v1/chat/completions"})
	if err != nil {
		t.Fatal(err)
	}
	res, err := c.Generate(context.Background(), Request{Messages: []Message{{Content: "why"}}, MaxTokens: 256})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "check line 3" {
		t.Fatalf("text=%q", res.Text)
	}
	if got.MaxTokens != 256 || got.Stream || len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Fatalf("req=%+v", got)
	}
}

func TestOpenAICompat_ReadStream_ErrorEvent(t *testing.T) {
	c := &openAICompatClient{}
	sse := "data: {\"error\":{\"message\":\"quota\"}}\n\n"
	if _, err := c.readStream(strings.NewReader(sse), func(string) {}); err == nil || !strings.Contains(err.Error(), "quota") {
		t.Fatalf("err=%v", err)
	}
}
