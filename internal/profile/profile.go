package profile

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the guidesearch service.
type Profile struct {
	// Embedding provider configuration.
	// "openai" speaks the OpenAI-compatible embeddings protocol (openai,
	// siliconflow, ollama, dashscope, ...); "http" speaks the plain
	// POST /embed {text} -> {vector, dimensions} protocol.
	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingAPIKey     string
	EmbeddingBaseURL    string
	EmbeddingDimensions int // must match the store's vector column width
	EmbeddingTimeout    int // request timeout in seconds
	EmbeddingRetries    int // bounded retries on transient failures
	EmbeddingRPS        int // rate limit for embedding calls, 0 disables

	// Indexing configuration.
	IndexWorkers int // concurrent embedding calls during an indexing run

	// Tool dispatch configuration.
	SearchAPIURL string // downstream search API the search_guides tool forwards to
	SourceRowCap int    // max rows returned by the query_source tool

	Mode      string // "prod", "dev" or "demo"
	Addr      string
	Port      int
	Driver    string // relational source driver: "postgres" or "sqlite"
	SourceDSN string // relational source holding guide rows
	StoreDSN  string // postgres document store (pgvector)
	Version   string
}

// Provider default configurations for embeddings.
// Used when GUIDESEARCH_EMBEDDING_BASE_URL is not explicitly set.
var embeddingProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "text-embedding-3-small",
	},
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "BAAI/bge-m3",
	},
	"ollama": {
		BaseURL: "http://localhost:11434/v1",
		Model:   "nomic-embed-text",
	},
	"http": {
		BaseURL: "http://localhost:5001",
		Model:   "jhgan/ko-sroberta-multitask",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	// Embedding configuration
	p.EmbeddingProvider = getEnvOrDefault("GUIDESEARCH_EMBEDDING_PROVIDER", "http")
	p.EmbeddingModel = getEnvOrDefault("GUIDESEARCH_EMBEDDING_MODEL", "")
	p.EmbeddingAPIKey = getEnvOrDefault("GUIDESEARCH_EMBEDDING_API_KEY", "")
	p.EmbeddingBaseURL = getEnvOrDefault("GUIDESEARCH_EMBEDDING_BASE_URL", "")
	p.EmbeddingDimensions = getEnvOrDefaultInt("GUIDESEARCH_EMBEDDING_DIMENSIONS", 768)
	p.EmbeddingTimeout = getEnvOrDefaultInt("GUIDESEARCH_EMBEDDING_TIMEOUT_SECONDS", 30)
	p.EmbeddingRetries = getEnvOrDefaultInt("GUIDESEARCH_EMBEDDING_RETRIES", 3)
	p.EmbeddingRPS = getEnvOrDefaultInt("GUIDESEARCH_EMBEDDING_RPS", 0)

	if _, ok := embeddingProviderDefaults[p.EmbeddingProvider]; !ok {
		slog.Warn("unknown embedding provider, using default: http", "provider", p.EmbeddingProvider)
		p.EmbeddingProvider = "http"
	}
	if defaults, ok := embeddingProviderDefaults[p.EmbeddingProvider]; ok {
		if p.EmbeddingBaseURL == "" {
			p.EmbeddingBaseURL = defaults.BaseURL
		}
		if p.EmbeddingModel == "" {
			p.EmbeddingModel = defaults.Model
		}
	}

	// Indexing configuration
	p.IndexWorkers = getEnvOrDefaultInt("GUIDESEARCH_INDEX_WORKERS", 4)

	// Tool dispatch configuration
	p.SearchAPIURL = getEnvOrDefault("GUIDESEARCH_SEARCH_API_URL", "")
	p.SourceRowCap = getEnvOrDefaultInt("GUIDESEARCH_SOURCE_ROW_CAP", 100)
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}

	if p.Driver != "postgres" && p.Driver != "sqlite" {
		return errors.Errorf("unsupported source driver %q, expected postgres or sqlite", p.Driver)
	}

	if p.StoreDSN == "" {
		return errors.New("store DSN required")
	}

	if p.EmbeddingDimensions <= 0 {
		return errors.Errorf("invalid embedding dimensions %d", p.EmbeddingDimensions)
	}
	if p.IndexWorkers <= 0 {
		p.IndexWorkers = 1
	}
	if p.SourceRowCap <= 0 {
		p.SourceRowCap = 100
	}

	return nil
}

func (p *Profile) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "mode=%s", p.Mode)
	fmt.Fprintf(&sb, " driver=%s", p.Driver)
	fmt.Fprintf(&sb, " embedding=%s/%s(%dd)", p.EmbeddingProvider, p.EmbeddingModel, p.EmbeddingDimensions)
	fmt.Fprintf(&sb, " port=%d", p.Port)
	return sb.String()
}
