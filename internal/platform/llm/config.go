package llm

import (
	"os"
	"strconv"
	"strings"

	"github.com/lumenreach/transcriptgraph/internal/pkg/perr"
)

// Config holds the LLM endpoint's connection settings.
type Config struct {
	BaseURL       string
	APIKey        string
	Model         string
	EmbedModel    string
	TimeoutSecs   int
	MaxRetries    int
	EmbeddingDims int
}

// ResolveConfigFromEnv reads LLM_BASE_URL / LLM_API_KEY / LLM_MODEL /
// LLM_EMBED_MODEL / LLM_TIMEOUT_SECONDS / LLM_MAX_RETRIES and the
// embedding-dimension override, filling in defaults for unset values.
func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		BaseURL:       strings.TrimRight(strings.TrimSpace(os.Getenv("LLM_BASE_URL")), "/"),
		APIKey:        strings.TrimSpace(os.Getenv("LLM_API_KEY")),
		Model:         strings.TrimSpace(os.Getenv("LLM_MODEL")),
		EmbedModel:    strings.TrimSpace(os.Getenv("LLM_EMBED_MODEL")),
		TimeoutSecs:   180,
		MaxRetries:    4,
		EmbeddingDims: 1536,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "text-embedding-3-small"
	}
	if v := strings.TrimSpace(os.Getenv("LLM_TIMEOUT_SECONDS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.TimeoutSecs = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("LLM_MAX_RETRIES")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			cfg.MaxRetries = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("LLM_EMBEDDING_DIMS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.EmbeddingDims = parsed
		}
	}
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidateConfig validates an LLM client config.
func ValidateConfig(cfg Config) error {
	if cfg.APIKey == "" {
		return perr.New("llm.ValidateConfig", perr.ConfigMissing, "LLM_API_KEY is required")
	}
	if cfg.BaseURL == "" {
		return perr.New("llm.ValidateConfig", perr.ConfigMissing, "LLM_BASE_URL resolved empty")
	}
	return nil
}
