package generate

import (
	"context"
	"fmt"
	"time"

	"github.com/complai/complai/internal/prompt"
)

// RetryConfig configures retry behavior for model calls.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns defaults tuned for LLM API latency.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// generateWithRetry executes one buffered generation with exponential
// backoff. Each attempt is paced by the limiter; only transient failures
// (ErrModelUnavailable) are retried.
func (g *Generator) generateWithRetry(ctx context.Context, p prompt.Prompt, params Params) (string, error) {
	var lastErr error
	delay := g.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= g.retry.MaxRetries; attempt++ {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("pacing wait: %w", err)
			}
		}

		text, err := g.model.Generate(ctx, p, params)
		if err == nil {
			if text == "" {
				g.breaker.Failure()
				return "", ErrEmptyResponse
			}
			g.breaker.Success()
			g.logger.Debug("generation succeeded",
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return text, nil
		}

		lastErr = err
		g.breaker.Failure()

		if !retryable(err) {
			return "", fmt.Errorf("generating response: %w", err)
		}
		if attempt == g.retry.MaxRetries {
			break
		}

		g.logger.Debug("retrying generation",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, g.retry.MaxInterval)
		}
	}

	return "", fmt.Errorf("generating response after %d retries (elapsed %v): %w",
		g.retry.MaxRetries, time.Since(start), lastErr)
}
