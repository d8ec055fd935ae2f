package embedding

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// openaiService embeds text through any OpenAI-compatible embeddings endpoint.
type openaiService struct {
	client     *openai.Client
	model      string
	dimensions int
	limiter    *rate.Limiter
}

func newOpenAIService(cfg *Config) *openaiService {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &openaiService{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		limiter:    newRateLimiter(cfg.RPS),
	}
}

func (s *openaiService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *openaiService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errInvalidInput("batch")
	}
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, errInvalidInput("batch")
		}
	}

	if err := waitRateLimiter(ctx, s.limiter); err != nil {
		return nil, classifyTransportErr("batch", err)
	}

	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(s.model),
		Dimensions: s.dimensions,
	}

	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, classifyOpenAIErr("batch", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, &Error{
			Kind: FailureService,
			Op:   "batch",
			Err:  errors.New("provider returned wrong number of embeddings"),
		}
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		if err := checkDimensions(data.Embedding, s.dimensions); err != nil {
			return nil, err
		}
		vectors[i] = data.Embedding
	}

	return vectors, nil
}

func (s *openaiService) Dimensions() int {
	return s.dimensions
}

// classifyOpenAIErr maps go-openai errors onto the embedding failure taxonomy.
func classifyOpenAIErr(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(op, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(op, reqErr.HTTPStatusCode, err)
	}
	return classifyTransportErr(op, err)
}
