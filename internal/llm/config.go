package llm

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultOllamaURL   = "http://127.0.0.1:11434"
	DefaultOllamaModel = "qwen2.5:7b"
	DefaultMaxTokens   = 256
)

type Config struct {
	Enabled bool

	Provider string

	BaseURL string
	APIKey  string
	Model   string

	// Language the explanation should be written in.
	Language string

	Timeout   time.Duration
	MaxTokens int

	// OpenAI-compatible
	ChatPath string

	// Gemini API key header; x-goog-api-key when empty.
	GeminiKeyHeader string

	// Circuit breaker around the provider.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func (c Config) ChatURL() (string, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(c.BaseURL), "/"))
	if err != nil {
		return "", err
	}
	p := strings.TrimSpace(c.ChatPath)
	if p == "" {
		p = "/v1/chat/completions"
	}
	u := base.ResolveReference(&url.URL{Path: p})
	return u.String(), nil
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	provider := strings.ToLower(strings.TrimSpace(c.Provider))
	if provider == "" {
		return fmt.Errorf("LOGWISE_LLM_PROVIDER is required when the explainer is enabled")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("LOGWISE_LLM_BASE_URL is required when the explainer is enabled")
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("LOGWISE_LLM_MODEL is required when the explainer is enabled")
	}
	if provider != "ollama" && strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("LOGWISE_LLM_API_KEY is required for provider %q", c.Provider)
	}
	if err := ValidateOpenAICompatBaseURL(c.BaseURL, c.Provider, c.ChatPath); err != nil {
		return err
	}
	return nil
}

func ValidateOpenAICompatBaseURL(baseURL string, provider string, chatPath string) error {
	bu := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if bu == "" {
		return nil
	}
	p := strings.ToLower(strings.TrimSpace(provider))
	switch p {
	case "openai_compat", "openai", "deepseek":
	default:
		return nil
	}
	cp := strings.TrimSpace(chatPath)
	if cp == "" {
		cp = "/v1/chat/completions"
	}
	if strings.HasSuffix(bu, "/v1") && strings.HasPrefix(cp, "/v1/") {
		return fmt.Errorf("LOGWISE_LLM_BASE_URL ends with /v1 while LOGWISE_LLM_CHAT_PATH is %q; this would call /v1/v1/... (drop /v1 from the base URL or set LOGWISE_LLM_CHAT_PATH=/chat/completions)", cp)
	}
	return nil
}

// FromEnv reads LOGWISE_LLM_* variables. The explainer is on by default and
// talks to a local Ollama.
func FromEnv() Config {
	provider := defaultEnv("LOGWISE_LLM_PROVIDER", "ollama")

	// LOGWISE_LLM_* wins; fall back to OPENAI_* when unset.
	baseURL := strings.TrimSpace(os.Getenv("LOGWISE_LLM_BASE_URL"))
	apiKey := strings.TrimSpace(os.Getenv("LOGWISE_LLM_API_KEY"))
	model := strings.TrimSpace(os.Getenv("LOGWISE_LLM_MODEL"))
	if provider != "ollama" {
		if baseURL == "" {
			baseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
		}
		if apiKey == "" {
			apiKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		}
		if model == "" {
			model = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
		}
	} else {
		if baseURL == "" {
			baseURL = DefaultOllamaURL
		}
		if model == "" {
			model = DefaultOllamaModel
		}
	}

	return Config{
		Enabled:   parseBoolEnv("LOGWISE_LLM_ENABLED", true),
		Provider:  provider,
		BaseURL:   baseURL,
		APIKey:    apiKey,
		Model:     model,
		Language:  defaultEnv("LOGWISE_LLM_LANGUAGE", "English"),
		Timeout:   parseDurationMillisEnv("LOGWISE_LLM_TIMEOUT_MS", 600_000),
		MaxTokens: parseIntEnv("LOGWISE_LLM_MAX_TOKENS", DefaultMaxTokens),

		ChatPath: defaultEnv("LOGWISE_LLM_CHAT_PATH", "/v1/chat/completions"),

		GeminiKeyHeader: defaultEnv("LOGWISE_LLM_GEMINI_KEY_HEADER", geminiKeyHeader),

		BreakerFailures: uint32(parseIntEnv("LOGWISE_LLM_BREAKER_FAILURES", 3)),
		BreakerTimeout:  parseDurationMillisEnv("LOGWISE_LLM_BREAKER_TIMEOUT_MS", 30_000),
	}
}

func defaultEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseBoolEnv(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func parseIntEnv(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func parseDurationMillisEnv(key string, fallbackMillis int) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return time.Duration(fallbackMillis) * time.Millisecond
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return time.Duration(fallbackMillis) * time.Millisecond
	}
	return time.Duration(n) * time.Millisecond
}
