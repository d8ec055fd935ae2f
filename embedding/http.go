package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// httpService embeds text through a plain HTTP embedding service speaking
// POST {base}/embed with {"text": ...} and answering
// {"text": ..., "vector": [...], "dimensions": N}.
type httpService struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
	limiter    *rate.Limiter
}

func newHTTPService(cfg *Config) *httpService {
	return &httpService{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: cfg.Timeout},
		limiter:    newRateLimiter(cfg.RPS),
	}
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Text       string    `json:"text"`
	Vector     []float32 `json:"vector"`
	Dimensions int       `json:"dimensions"`
}

func (s *httpService) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errInvalidInput("embed")
	}

	if err := waitRateLimiter(ctx, s.limiter); err != nil {
		return nil, classifyTransportErr("embed", err)
	}

	body, err := json.Marshal(embedRequest{Text: text})
	if err != nil {
		return nil, &Error{Kind: FailureService, Op: "embed", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: FailureService, Op: "embed", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyTransportErr("embed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, classifyStatus("embed", resp.StatusCode,
			fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &Error{Kind: FailureService, Op: "embed", Err: err}
	}

	if err := checkDimensions(parsed.Vector, s.dimensions); err != nil {
		return nil, err
	}

	return parsed.Vector, nil
}

func (s *httpService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errInvalidInput("batch")
	}

	// The /embed protocol is single-text, so a batch is sequential calls.
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vector, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vector
	}
	return vectors, nil
}

func (s *httpService) Dimensions() int {
	return s.dimensions
}
