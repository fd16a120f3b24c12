// Package chat orchestrates one conversational turn: resolve the session,
// optionally retrieve knowledge context, assemble the prompt, generate,
// filter, and persist. Each phase emits a trace event.
package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/complai/complai/internal/config"
	"github.com/complai/complai/internal/generate"
	"github.com/complai/complai/internal/prompt"
	"github.com/complai/complai/internal/retrieval"
	"github.com/complai/complai/internal/session"
	"github.com/complai/complai/internal/trace"
)

// ErrEmptyQuery indicates a chat request without a query.
var ErrEmptyQuery = errors.New("query is empty")

// Request is one conversational turn.
type Request struct {
	Query string
	// SessionID continues an existing conversation; uuid.Nil starts a new
	// one. Unknown ids transparently start a fresh session.
	SessionID uuid.UUID
	Owner     string
}

// Response is the completed turn.
type Response struct {
	SessionID      uuid.UUID             `json:"session_id"`
	Answer         string                `json:"answer"`
	Citations      []retrieval.Citation  `json:"citations"`
	SessionCreated bool                  `json:"session_created"`
	Blocked        bool                  `json:"blocked"`
	// Degraded is set when the knowledge base was unreachable and the
	// answer was generated without retrieved context.
	Degraded  bool      `json:"degraded"`
	Timestamp time.Time `json:"timestamp"`
}

// Event is one element of a streamed turn.
type Event struct {
	// Chunk carries incremental answer text when Done is nil.
	Chunk string
	// Done carries the final response after the last chunk.
	Done *Response
}

// Config assembles an Orchestrator.
type Config struct {
	Sessions  *session.Store
	Gate      *retrieval.Gate
	Assembler *prompt.Assembler
	Generator *generate.Generator

	Params     generate.Params
	RetrievalK int
	// Timeout bounds one whole turn. Zero uses the package default.
	Timeout time.Duration
	// StrictPersist turns persistence failures into request failures.
	// Default false: the answer is still delivered and the failure logged.
	StrictPersist bool

	Emitter trace.Emitter
	Logger  *slog.Logger
}

// Orchestrator runs the chat pipeline.
//
// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	sessions  *session.Store
	gate      *retrieval.Gate
	assembler *prompt.Assembler
	generator *generate.Generator

	params        generate.Params
	retrievalK    int
	timeout       time.Duration
	strictPersist bool

	emitter trace.Emitter
	logger  *slog.Logger
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Params == (generate.Params{}) {
		cfg.Params = generate.Params{
			Temperature: config.DefaultTemperature,
			MaxTokens:   config.DefaultMaxTokens,
		}
	}
	if cfg.RetrievalK <= 0 {
		cfg.RetrievalK = config.DefaultRetrievalK
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultRequestTimeout
	}
	if cfg.Emitter == nil {
		cfg.Emitter = trace.NopEmitter{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		sessions:      cfg.Sessions,
		gate:          cfg.Gate,
		assembler:     cfg.Assembler,
		generator:     cfg.Generator,
		params:        cfg.Params,
		retrievalK:    cfg.RetrievalK,
		timeout:       cfg.Timeout,
		strictPersist: cfg.StrictPersist,
		emitter:       cfg.Emitter,
		logger:        cfg.Logger,
	}
}

// turn is the per-request state threaded through the phases.
type turn struct {
	req     Request
	sess    session.Session
	created bool
	history []session.Message
	ret     retrieval.Result
	prompt  prompt.Prompt
}

// Handle runs one buffered turn.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	t, err := o.prepare(ctx, req)
	if err != nil {
		return Response{}, err
	}

	o.emitter.Emit(ctx, trace.EventGenerationStarted,
		slog.String("session_id", t.sess.ID.String()))
	start := time.Now()

	result, err := o.generator.Generate(ctx, t.prompt, o.params)
	if err != nil {
		return Response{}, err
	}

	o.emitter.Emit(ctx, trace.EventGenerationCompleted,
		slog.String("session_id", t.sess.ID.String()),
		slog.Duration("elapsed", time.Since(start)))

	return o.complete(ctx, t, result)
}

// Stream runs one streaming turn. The pipeline executes lazily when the
// sequence is iterated; the final element carries Done.
func (o *Orchestrator) Stream(ctx context.Context, req Request) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		ctx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()

		t, err := o.prepare(ctx, req)
		if err != nil {
			yield(Event{}, err)
			return
		}

		o.emitter.Emit(ctx, trace.EventGenerationStarted,
			slog.String("session_id", t.sess.ID.String()),
			slog.Bool("stream", true))
		start := time.Now()

		stream, err := o.generator.Stream(ctx, t.prompt, o.params)
		if err != nil {
			yield(Event{}, err)
			return
		}
		for chunk, err := range stream.Chunks() {
			if err != nil {
				yield(Event{}, err)
				return
			}
			if !yield(Event{Chunk: chunk}, nil) {
				return
			}
		}
		result, err := stream.Final()
		if err != nil {
			yield(Event{}, err)
			return
		}

		o.emitter.Emit(ctx, trace.EventGenerationCompleted,
			slog.String("session_id", t.sess.ID.String()),
			slog.Duration("elapsed", time.Since(start)))

		resp, err := o.complete(ctx, t, result)
		if err != nil {
			yield(Event{}, err)
			return
		}
		yield(Event{Done: &resp}, nil)
	}
}

// prepare covers the phases shared by buffered and streaming turns:
// session resolution, retrieval, and prompt assembly.
func (o *Orchestrator) prepare(ctx context.Context, req Request) (*turn, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}

	t := &turn{req: req}

	var err error
	t.sess, t.created, err = o.sessions.GetOrCreate(req.SessionID, req.Owner)
	if err != nil {
		return nil, fmt.Errorf("resolving session: %w", err)
	}
	o.emitter.Emit(ctx, trace.EventSessionResolved,
		slog.String("session_id", t.sess.ID.String()),
		slog.Bool("created", t.created))

	t.history, _, err = o.sessions.History(t.sess.ID, req.Owner)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	if o.gate != nil && o.gate.ShouldRetrieve(req.Query) {
		t.ret = o.gate.Retrieve(ctx, req.Query, o.retrievalK)
		o.emitter.Emit(ctx, trace.EventRetrievalPerformed,
			slog.String("session_id", t.sess.ID.String()),
			slog.Int("citations", len(t.ret.Citations)),
			slog.Bool("degraded", t.ret.Degraded))
	}

	t.prompt, err = o.assembler.Build(ctx, req.Query, t.history, t.ret.Context)
	if err != nil {
		return nil, fmt.Errorf("assembling prompt: %w", err)
	}
	return t, nil
}

// complete covers filtering bookkeeping and persistence, then builds the
// response.
func (o *Orchestrator) complete(ctx context.Context, t *turn, result generate.Result) (Response, error) {
	if result.Blocked {
		o.emitter.Emit(ctx, trace.EventFilterApplied,
			slog.String("session_id", t.sess.ID.String()))
	}

	if err := o.persist(t, result.Text); err != nil {
		if o.strictPersist {
			return Response{}, fmt.Errorf("persisting turn: %w", err)
		}
		o.logger.Warn("turn not persisted, delivering answer anyway",
			"session_id", t.sess.ID,
			"error", err,
		)
	} else {
		o.emitter.Emit(ctx, trace.EventPersisted,
			slog.String("session_id", t.sess.ID.String()))
	}

	resp := Response{
		SessionID:      t.sess.ID,
		Answer:         result.Text,
		Citations:      t.ret.Citations,
		SessionCreated: t.created,
		Blocked:        result.Blocked,
		Degraded:       t.ret.Degraded,
		Timestamp:      time.Now().UTC(),
	}
	if resp.Citations == nil {
		resp.Citations = []retrieval.Citation{}
	}
	return resp, nil
}

// persist appends the human turn and the assistant answer. The two appends
// are not atomic; a failure between them loses at most this turn.
func (o *Orchestrator) persist(t *turn, answer string) error {
	if err := o.sessions.Append(t.sess.ID, session.RoleHuman, t.req.Query); err != nil {
		return err
	}
	return o.sessions.Append(t.sess.ID, session.RoleAssistant, answer)
}
