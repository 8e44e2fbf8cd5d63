package llm

import "testing"

func TestValidateOpenAICompatBaseURL_DuplicateV1(t *testing.T) {
	err := ValidateOpenAICompatBaseURL("https://api.example.com/v1", "openai_compat", "/v1/chat/completions")
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestValidateOpenAICompatBaseURL_OkWithoutV1(t *testing.T) {
	if err := ValidateOpenAICompatBaseURL("https://api.example.com", "openai_compat", "/v1/chat/completions"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateOpenAICompatBaseURL_OkWithNonV1Path(t *testing.T) {
	if err := ValidateOpenAICompatBaseURL("https://api.example.com/v1", "openai_compat", "/chat/completions"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFromEnvDefaultsToLocalOllama(t *testing.T) {
	for _, k := range []string{"LOGWISE_LLM_PROVIDER", "LOGWISE_LLM_BASE_URL", "LOGWISE_LLM_MODEL", "LOGWISE_LLM_API_KEY", "LOGWISE_LLM_ENABLED", "LOGWISE_LLM_MAX_TOKENS", "LOGWISE_LLM_LANGUAGE"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	if !cfg.Enabled || cfg.Provider != "ollama" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.BaseURL != DefaultOllamaURL || cfg.Model != DefaultOllamaModel {
		t.Fatalf("base=%q model=%q", cfg.BaseURL, cfg.Model)
	}
	if cfg.MaxTokens != 256 || cfg.Language != "English" {
		t.Fatalf("max=%d lang=%q", cfg.MaxTokens, cfg.Language)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("ollama needs no key: %v", err)
	}
}

func TestFromEnvOpenAIFallback(t *testing.T) {
	t.Setenv("LOGWISE_LLM_PROVIDER", "openai_compat")
	t.Setenv("LOGWISE_LLM_BASE_URL", "")
	t.Setenv("LOGWISE_LLM_API_KEY", "")
	t.Setenv("LOGWISE_LLM_MODEL", "")
	t.Setenv("OPENAI_BASE_URL", "https://api.example.com")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "gpt-test")
	cfg := FromEnv()
	if cfg.BaseURL != "https://api.example.com" || cfg.APIKey != "sk-test" || cfg.Model != "gpt-test" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRequiresKeyForHostedProviders(t *testing.T) {
	cfg := Config{Enabled: true, Provider: "gemini", BaseURL: "https://g.example.com", Model: "m"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error")
	}
	cfg.Enabled = false
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled config should validate: %v", err)
	}
}
