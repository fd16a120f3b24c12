// Package generate produces model responses for assembled prompts. It wraps
// the model client with request pacing, retry with exponential backoff, a
// circuit breaker, and an output safety filter.
package generate

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/complai/complai/internal/prompt"
)

var (
	// ErrInvalidParameter indicates generation parameters outside their
	// allowed ranges.
	ErrInvalidParameter = errors.New("invalid generation parameter")

	// ErrModelUnavailable indicates a transient model failure (rate limit,
	// server error, timeout). Retryable.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrModelRejected indicates the model refused the request itself
	// (bad request, policy refusal at the API layer). Not retryable.
	ErrModelRejected = errors.New("model rejected request")

	// ErrEmptyResponse indicates the model returned no text.
	ErrEmptyResponse = errors.New("model returned empty response")
)

// Parameter bounds.
const (
	MaxTemperature   = 1.0
	MaxAllowedTokens = 8192
)

// Params are the per-request generation knobs.
type Params struct {
	Temperature float32 `json:"temperature"`
	MaxTokens   int32   `json:"max_tokens"`
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	if p.Temperature < 0 || p.Temperature > MaxTemperature {
		return fmt.Errorf("%w: temperature %.2f outside [0, %.1f]", ErrInvalidParameter, p.Temperature, MaxTemperature)
	}
	if p.MaxTokens <= 0 || p.MaxTokens > MaxAllowedTokens {
		return fmt.Errorf("%w: max_tokens %d outside [1, %d]", ErrInvalidParameter, p.MaxTokens, MaxAllowedTokens)
	}
	return nil
}

// ModelClient is the raw model transport. Implementations map provider
// errors onto ErrModelUnavailable and ErrModelRejected.
type ModelClient interface {
	// Generate returns the complete response text.
	Generate(ctx context.Context, p prompt.Prompt, params Params) (string, error)

	// GenerateStream returns response text incrementally. The sequence is
	// lazy: nothing is sent to the model until iteration begins. A non-nil
	// error ends the sequence.
	GenerateStream(ctx context.Context, p prompt.Prompt, params Params) iter.Seq2[string, error]
}

// Result is a finished generation after filtering.
type Result struct {
	// Text is the response to deliver. When Blocked, it is the fixed
	// replacement, not model output.
	Text    string
	Blocked bool
}

// Config assembles a Generator. Zero values use defaults.
type Config struct {
	Retry   RetryConfig
	Breaker BreakerConfig

	// RequestsPerSecond paces outbound model calls. Zero disables pacing.
	RequestsPerSecond float64
	Burst             int

	Filter SafetyFilter
	Logger *slog.Logger
}

// Generator is the resilient generation layer over a ModelClient.
//
// Generator is safe for concurrent use.
type Generator struct {
	model   ModelClient
	retry   RetryConfig
	breaker *CircuitBreaker
	limiter *rate.Limiter
	filter  SafetyFilter
	logger  *slog.Logger
}

// New creates a Generator.
func New(model ModelClient, cfg Config) *Generator {
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.Filter == nil {
		cfg.Filter = DefaultFilter()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Generator{
		model:   model,
		retry:   cfg.Retry,
		breaker: NewCircuitBreaker(cfg.Breaker),
		limiter: limiter,
		filter:  cfg.Filter,
		logger:  cfg.Logger,
	}
}

// Generate produces a complete, filtered response.
func (g *Generator) Generate(ctx context.Context, p prompt.Prompt, params Params) (Result, error) {
	if err := params.Validate(); err != nil {
		return Result{}, err
	}
	if err := g.breaker.Allow(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	text, err := g.generateWithRetry(ctx, p, params)
	if err != nil {
		return Result{}, err
	}
	return g.finish(text), nil
}

// Stream starts a streaming generation. The model is not contacted until
// the returned stream's Chunks sequence is iterated.
func (g *Generator) Stream(ctx context.Context, p prompt.Prompt, params Params) (*Stream, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := g.breaker.Allow(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	return &Stream{gen: g, prompt: p, params: params, ctx: ctx}, nil
}

// finish applies the safety filter to complete model output.
func (g *Generator) finish(text string) Result {
	verdict := g.filter.Check(text)
	if verdict.Blocked {
		g.logger.Warn("response blocked by safety filter", "reason", verdict.Reason)
		return Result{Text: BlockedResponse, Blocked: true}
	}
	return Result{Text: text}
}

// Stream is one in-flight streaming generation. Iterate Chunks fully, then
// read Final for the filtered result.
type Stream struct {
	gen    *Generator
	prompt prompt.Prompt
	params Params
	ctx    context.Context

	result Result
	err    error
	done   bool
}

// Chunks yields response text incrementally. Streaming is a single attempt:
// a mid-stream failure is surfaced to the consumer rather than retried,
// since earlier chunks may already have been delivered.
func (s *Stream) Chunks() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		defer func() { s.done = true }()

		if s.gen.limiter != nil {
			if err := s.gen.limiter.Wait(s.ctx); err != nil {
				s.err = fmt.Errorf("pacing wait: %w", err)
				yield("", s.err)
				return
			}
		}

		var b strings.Builder
		for chunk, err := range s.gen.model.GenerateStream(s.ctx, s.prompt, s.params) {
			if err != nil {
				s.gen.breaker.Failure()
				s.err = err
				yield("", err)
				return
			}
			b.WriteString(chunk)
			if !yield(chunk, nil) {
				s.err = context.Canceled
				return
			}
		}

		if b.Len() == 0 {
			s.gen.breaker.Failure()
			s.err = ErrEmptyResponse
			yield("", s.err)
			return
		}

		s.gen.breaker.Success()
		s.result = s.gen.finish(b.String())
	}
}

// Final returns the filtered result once Chunks has been fully consumed.
func (s *Stream) Final() (Result, error) {
	if !s.done {
		return Result{}, fmt.Errorf("stream not fully consumed")
	}
	if s.err != nil {
		return Result{}, s.err
	}
	return s.result, nil
}
