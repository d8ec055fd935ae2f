// Package embedding converts text into fixed-dimension dense vectors.
//
// Two providers are supported: any OpenAI-compatible embeddings endpoint
// (openai, siliconflow, ollama, dashscope, ...) and a plain HTTP service
// speaking POST /embed {text} -> {vector, dimensions}. Both enforce the
// configured vector dimension; a mismatch is reported as an error, never
// silently truncated or padded.
package embedding

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/hrygo/guidesearch/internal/profile"
)

// Service is the vector embedding service interface.
type Service interface {
	// Embed generates a vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension.
	Dimensions() int
}

// Config configures an embedding provider.
type Config struct {
	Provider   string // "openai" or "http"
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
	RPS        int // requests per second, 0 disables rate limiting
}

// DefaultConfig returns the default embedding configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:   "http",
		BaseURL:    "http://localhost:5001",
		Dimensions: 768,
		Timeout:    30 * time.Second,
	}
}

// NewService creates an embedding Service for the configured provider.
func NewService(cfg *Config) (Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	switch cfg.Provider {
	case "http":
		return newHTTPService(cfg), nil
	default:
		// The OpenAI-compatible protocol covers every other provider.
		return newOpenAIService(cfg), nil
	}
}

// NewServiceFromProfile creates an embedding Service from the instance profile.
func NewServiceFromProfile(p *profile.Profile) (Service, error) {
	return NewService(&Config{
		Provider:   p.EmbeddingProvider,
		BaseURL:    p.EmbeddingBaseURL,
		APIKey:     p.EmbeddingAPIKey,
		Model:      p.EmbeddingModel,
		Dimensions: p.EmbeddingDimensions,
		Timeout:    time.Duration(p.EmbeddingTimeout) * time.Second,
		RPS:        p.EmbeddingRPS,
	})
}

func newRateLimiter(rps int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), rps)
}

func waitRateLimiter(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}

// checkDimensions verifies a returned vector against the configured width.
func checkDimensions(vector []float32, want int) error {
	if len(vector) != want {
		return &Error{
			Kind: FailureService,
			Op:   "embed",
			Err:  fmt.Errorf("provider returned %d dimensions, store expects %d", len(vector), want),
		}
	}
	return nil
}
