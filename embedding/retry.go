package embedding

import (
	"context"
	"log/slog"
	"time"
)

// RetryConfig bounds the retry behavior for transient provider failures.
type RetryConfig struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // delay before the first retry, doubled each attempt
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
	}
}

// retryService decorates a Service with bounded exponential backoff on
// transient failures. Invalid input and service failures pass through
// unchanged; after the attempt budget is exhausted the last transient
// error is returned and the caller treats it as permanent for that item.
type retryService struct {
	inner   Service
	cfg     RetryConfig
	onRetry func() // retry counter hook, may be nil
}

// WithRetry wraps svc with bounded retries on transient failures.
// onRetry is invoked once per retry attempt and may be nil.
func WithRetry(svc Service, cfg RetryConfig, onRetry func()) Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultRetryConfig().MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultRetryConfig().BaseDelay
	}
	return &retryService{inner: svc, cfg: cfg, onRetry: onRetry}
}

func (s *retryService) Embed(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := s.do(ctx, func() error {
		var embedErr error
		vector, embedErr = s.inner.Embed(ctx, text)
		return embedErr
	})
	if err != nil {
		return nil, err
	}
	return vector, nil
}

func (s *retryService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := s.do(ctx, func() error {
		var embedErr error
		vectors, embedErr = s.inner.EmbedBatch(ctx, texts)
		return embedErr
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

func (s *retryService) Dimensions() int {
	return s.inner.Dimensions()
}

func (s *retryService) do(ctx context.Context, call func() error) error {
	delay := s.cfg.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		lastErr = call()
		if lastErr == nil || !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == s.cfg.MaxAttempts {
			break
		}

		slog.Warn("transient embedding failure, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", lastErr)
		if s.onRetry != nil {
			s.onRetry()
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return classifyTransportErr("retry", ctx.Err())
		case <-timer.C:
		}
		delay *= 2
	}

	return lastErr
}
