package generate

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"google.golang.org/genai"

	"github.com/complai/complai/internal/prompt"
	"github.com/complai/complai/internal/session"
)

// GenaiClient is the production ModelClient backed by the Gemini API.
type GenaiClient struct {
	client *genai.Client
	model  string
}

// NewGenaiClient creates a client for the given model, for example
// "gemini-2.0-flash".
func NewGenaiClient(client *genai.Client, model string) *GenaiClient {
	return &GenaiClient{client: client, model: model}
}

// Generate returns the complete response text.
func (c *GenaiClient) Generate(ctx context.Context, p prompt.Prompt, params Params) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, toContents(p.Messages), c.config(p, params))
	if err != nil {
		return "", classify(err)
	}
	return resp.Text(), nil
}

// GenerateStream yields response text incrementally. The request is not
// sent until the sequence is iterated.
func (c *GenaiClient) GenerateStream(ctx context.Context, p prompt.Prompt, params Params) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for resp, err := range c.client.Models.GenerateContentStream(ctx, c.model, toContents(p.Messages), c.config(p, params)) {
			if err != nil {
				yield("", classify(err))
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

func (c *GenaiClient) config(p prompt.Prompt, params Params) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(params.Temperature),
		MaxOutputTokens: params.MaxTokens,
	}
	if p.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(p.System, genai.RoleUser)
	}
	return cfg
}

// toContents maps conversation messages onto the provider's content types.
func toContents(messages []session.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := genai.Role(genai.RoleUser)
		if msg.Role == session.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	return contents
}

// classify maps provider errors onto the package sentinels so callers can
// distinguish transient failures from rejections.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429 || apiErr.Code >= 500:
			return fmt.Errorf("%w: %s (code %d)", ErrModelUnavailable, apiErr.Message, apiErr.Code)
		case apiErr.Code >= 400:
			return fmt.Errorf("%w: %s (code %d)", ErrModelRejected, apiErr.Message, apiErr.Code)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return err
}
