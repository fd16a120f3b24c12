package generate

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"testing"
	"time"

	"github.com/complai/complai/internal/log"
	"github.com/complai/complai/internal/prompt"
)

// fakeModel scripts a sequence of Generate outcomes and a fixed stream.
type fakeModel struct {
	outcomes []outcome
	calls    int

	chunks    []string
	streamErr error // yielded after chunks when non-nil
}

type outcome struct {
	text string
	err  error
}

func (f *fakeModel) Generate(context.Context, prompt.Prompt, Params) (string, error) {
	i := f.calls
	f.calls++
	if i >= len(f.outcomes) {
		return "", errors.New("unexpected call")
	}
	return f.outcomes[i].text, f.outcomes[i].err
}

func (f *fakeModel) GenerateStream(context.Context, prompt.Prompt, Params) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, c := range f.chunks {
			if !yield(c, nil) {
				return
			}
		}
		if f.streamErr != nil {
			yield("", f.streamErr)
		}
	}
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func newTestGenerator(model ModelClient) *Generator {
	return New(model, Config{Retry: fastRetry(), Logger: log.NewNop()})
}

func validParams() Params {
	return Params{Temperature: 0.3, MaxTokens: 1000}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{"valid", Params{Temperature: 0.3, MaxTokens: 1000}, false},
		{"zero temperature", Params{Temperature: 0, MaxTokens: 1}, false},
		{"max bounds", Params{Temperature: 1.0, MaxTokens: MaxAllowedTokens}, false},
		{"negative temperature", Params{Temperature: -0.1, MaxTokens: 100}, true},
		{"temperature too high", Params{Temperature: 1.1, MaxTokens: 100}, true},
		{"zero tokens", Params{Temperature: 0.3, MaxTokens: 0}, true},
		{"tokens too high", Params{Temperature: 0.3, MaxTokens: MaxAllowedTokens + 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("err = %v, want ErrInvalidParameter", err)
			}
		})
	}
}

func TestGenerateSuccess(t *testing.T) {
	g := newTestGenerator(&fakeModel{outcomes: []outcome{{text: "Article 5 covers processing principles."}}})

	res, err := g.Generate(context.Background(), prompt.Prompt{}, validParams())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Blocked || res.Text != "Article 5 covers processing principles." {
		t.Errorf("result = %+v", res)
	}
}

func TestGenerateRetriesTransientFailure(t *testing.T) {
	model := &fakeModel{outcomes: []outcome{
		{err: fmt.Errorf("%w: 429", ErrModelUnavailable)},
		{err: fmt.Errorf("%w: 503", ErrModelUnavailable)},
		{text: "recovered"},
	}}
	g := newTestGenerator(model)

	res, err := g.Generate(context.Background(), prompt.Prompt{}, validParams())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Text != "recovered" {
		t.Errorf("text = %q", res.Text)
	}
	if model.calls != 3 {
		t.Errorf("calls = %d, want 3", model.calls)
	}
}

func TestGenerateRejectionNotRetried(t *testing.T) {
	model := &fakeModel{outcomes: []outcome{
		{err: fmt.Errorf("%w: bad request", ErrModelRejected)},
	}}
	g := newTestGenerator(model)

	_, err := g.Generate(context.Background(), prompt.Prompt{}, validParams())
	if !errors.Is(err, ErrModelRejected) {
		t.Errorf("err = %v, want ErrModelRejected", err)
	}
	if model.calls != 1 {
		t.Errorf("calls = %d, want 1", model.calls)
	}
}

func TestGenerateExhaustsRetries(t *testing.T) {
	transient := fmt.Errorf("%w: 503", ErrModelUnavailable)
	model := &fakeModel{outcomes: []outcome{{err: transient}, {err: transient}, {err: transient}}}
	g := newTestGenerator(model)

	_, err := g.Generate(context.Background(), prompt.Prompt{}, validParams())
	if !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("err = %v, want ErrModelUnavailable", err)
	}
	if model.calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", model.calls)
	}
}

func TestGenerateEmptyResponse(t *testing.T) {
	g := newTestGenerator(&fakeModel{outcomes: []outcome{{text: ""}}})

	_, err := g.Generate(context.Background(), prompt.Prompt{}, validParams())
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestGenerateInvalidParams(t *testing.T) {
	model := &fakeModel{}
	g := newTestGenerator(model)

	_, err := g.Generate(context.Background(), prompt.Prompt{}, Params{Temperature: 9, MaxTokens: 10})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("err = %v, want ErrInvalidParameter", err)
	}
	if model.calls != 0 {
		t.Error("model called despite invalid params")
	}
}

func TestGenerateBlockedByFilter(t *testing.T) {
	g := New(&fakeModel{outcomes: []outcome{
		{text: "Here is how to evade regulations step by step."},
	}}, Config{Retry: fastRetry(), Logger: log.NewNop()})

	res, err := g.Generate(context.Background(), prompt.Prompt{}, validParams())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !res.Blocked {
		t.Fatal("expected blocked result")
	}
	if res.Text != BlockedResponse {
		t.Errorf("text = %q, want fixed replacement", res.Text)
	}
}

func TestGenerateCircuitOpenShedsLoad(t *testing.T) {
	transient := fmt.Errorf("%w: 503", ErrModelUnavailable)
	model := &fakeModel{outcomes: []outcome{
		{err: transient}, {err: transient}, {err: transient},
		{err: transient}, {err: transient}, {err: transient},
	}}
	g := New(model, Config{
		Retry:   RetryConfig{MaxRetries: 0, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
		Breaker: BreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, Cooldown: time.Hour},
		Logger:  log.NewNop(),
	})

	for range 3 {
		if _, err := g.Generate(context.Background(), prompt.Prompt{}, validParams()); err == nil {
			t.Fatal("expected failure")
		}
	}

	calls := model.calls
	_, err := g.Generate(context.Background(), prompt.Prompt{}, validParams())
	if !errors.Is(err, ErrModelUnavailable) || !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want unavailable via open circuit", err)
	}
	if model.calls != calls {
		t.Error("model called while circuit open")
	}
}

func TestStreamMatchesBuffered(t *testing.T) {
	full := "Article 5 of the GDPR sets out the principles."
	buffered := newTestGenerator(&fakeModel{outcomes: []outcome{{text: full}}})
	streaming := newTestGenerator(&fakeModel{chunks: []string{"Article 5 of the GDPR ", "sets out the principles."}})

	bufRes, err := buffered.Generate(context.Background(), prompt.Prompt{}, validParams())
	if err != nil {
		t.Fatal(err)
	}

	stream, err := streaming.Stream(context.Background(), prompt.Prompt{}, validParams())
	if err != nil {
		t.Fatal(err)
	}
	var got string
	for chunk, err := range stream.Chunks() {
		if err != nil {
			t.Fatalf("chunk error: %v", err)
		}
		got += chunk
	}
	final, err := stream.Final()
	if err != nil {
		t.Fatalf("Final: %v", err)
	}

	if got != full || final.Text != bufRes.Text {
		t.Errorf("streamed %q, final %q, buffered %q", got, final.Text, bufRes.Text)
	}
}

func TestStreamMidFailure(t *testing.T) {
	failure := fmt.Errorf("%w: connection reset", ErrModelUnavailable)
	g := newTestGenerator(&fakeModel{chunks: []string{"partial "}, streamErr: failure})

	stream, err := g.Stream(context.Background(), prompt.Prompt{}, validParams())
	if err != nil {
		t.Fatal(err)
	}
	var sawErr error
	for _, err := range stream.Chunks() {
		if err != nil {
			sawErr = err
		}
	}
	if !errors.Is(sawErr, ErrModelUnavailable) {
		t.Errorf("chunk err = %v", sawErr)
	}
	if _, err := stream.Final(); err == nil {
		t.Error("Final should surface the stream failure")
	}
}

func TestStreamFinalBeforeConsumption(t *testing.T) {
	g := newTestGenerator(&fakeModel{chunks: []string{"x"}})
	stream, err := g.Stream(context.Background(), prompt.Prompt{}, validParams())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := stream.Final(); err == nil {
		t.Error("Final before consuming chunks should error")
	}
}

func TestRetryableClassification(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{fmt.Errorf("%w: x", ErrModelUnavailable), true},
		{fmt.Errorf("%w: x", ErrModelRejected), false},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("HTTP 503 Service Unavailable"), true},
		{errors.New("connection reset by peer"), true},
		{errors.New("invalid argument"), false},
	}
	for _, tt := range tests {
		if got := retryable(tt.err); got != tt.want {
			t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestPatternFilter(t *testing.T) {
	f := DefaultFilter()

	if v := f.Check("Article 5 requires lawful processing."); v.Blocked {
		t.Errorf("benign text blocked: %+v", v)
	}
	if v := f.Check("You could falsify records to pass the audit."); !v.Blocked {
		t.Error("deny pattern not caught")
	}
	if v := f.Check(""); v.Blocked {
		t.Error("empty text blocked")
	}
}
