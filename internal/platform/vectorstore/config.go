package vectorstore

import (
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/lumenreach/transcriptgraph/internal/pkg/perr"
)

// Config holds the vector store's connection settings. The store speaks a
// Qdrant-shaped HTTP API: a collection of points, each with a payload and a
// dense vector, queried by cosine distance.
type Config struct {
	URL             string
	Collection      string
	NamespacePrefix string
	VectorDim       int
}

// ResolveConfigFromEnv reads VECTORSTORE_URL / VECTORSTORE_COLLECTION /
// VECTORSTORE_NAMESPACE_PREFIX / VECTORSTORE_VECTOR_DIM.
func ResolveConfigFromEnv() (Config, error) {
	rawDim := strings.TrimSpace(os.Getenv("VECTORSTORE_VECTOR_DIM"))
	dim := 0
	if rawDim != "" {
		parsed, err := strconv.Atoi(rawDim)
		if err != nil {
			return Config{}, perr.Wrap("vectorstore.ResolveConfigFromEnv", perr.ConfigMissing, "invalid VECTORSTORE_VECTOR_DIM", err)
		}
		dim = parsed
	}

	cfg := Config{
		URL:             strings.TrimSpace(os.Getenv("VECTORSTORE_URL")),
		Collection:      strings.TrimSpace(os.Getenv("VECTORSTORE_COLLECTION")),
		NamespacePrefix: strings.TrimSpace(os.Getenv("VECTORSTORE_NAMESPACE_PREFIX")),
		VectorDim:       dim,
	}
	if cfg.NamespacePrefix == "" {
		cfg.NamespacePrefix = "tg"
	}
	if cfg.Collection == "" {
		cfg.Collection = "segments"
	}
	if err := ValidateConfig(cfg, rawDim != ""); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidateConfig validates a vector store config. Pass hasRawVectorDim=false
// when the dimension env var is unset so "missing" and "invalid" can be
// reported distinctly.
func ValidateConfig(cfg Config, hasRawVectorDim bool) error {
	if cfg.URL == "" {
		return perr.New("vectorstore.ValidateConfig", perr.ConfigMissing, "VECTORSTORE_URL is required")
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return perr.Wrap("vectorstore.ValidateConfig", perr.ConfigMissing, "invalid VECTORSTORE_URL", err)
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return perr.New("vectorstore.ValidateConfig", perr.ConfigMissing, "VECTORSTORE_COLLECTION is required")
	}
	if !hasRawVectorDim && cfg.VectorDim == 0 {
		return perr.New("vectorstore.ValidateConfig", perr.ConfigMissing, "VECTORSTORE_VECTOR_DIM is required")
	}
	if cfg.VectorDim <= 0 {
		return perr.New("vectorstore.ValidateConfig", perr.Validation, "VECTORSTORE_VECTOR_DIM must be a positive integer")
	}
	return nil
}
