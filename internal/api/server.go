// Package api is the HTTP surface of the compliance assistant.
//
// Routes (all under the middleware stack except the health probe):
//
//	POST   /api/v1/auth/token             credential exchange for a bearer token
//	POST   /api/v1/chat                   one buffered conversational turn
//	POST   /api/v1/chat/stream            one streamed turn via SSE
//	GET    /api/v1/sessions               list the caller's sessions
//	GET    /api/v1/sessions/{id}/messages session transcript
//	DELETE /api/v1/sessions/{id}          drop a session
//	GET    /api/v1/search                 direct knowledge lookup
//	GET    /api/v1/stats                  session store occupancy
//	GET    /api/v1/kb/health              knowledge base reachability
//	GET    /health                        liveness probe
//
// Middleware order (outermost first):
// recovery, request id, logging, CORS, rate limit, auth.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/complai/complai/internal/auth"
	"github.com/complai/complai/internal/chat"
	"github.com/complai/complai/internal/knowledge"
	"github.com/complai/complai/internal/retrieval"
	"github.com/complai/complai/internal/session"
)

// Server timeouts.
const (
	DefaultAddr       = ":8080"
	ShutdownTimeout   = 10 * time.Second
	ReadHeaderTimeout = 10 * time.Second
	ReadTimeout       = 30 * time.Second
	// WriteTimeout must exceed the chat request timeout so streaming turns
	// are not cut off by the server.
	WriteTimeout = 120 * time.Second
	IdleTimeout  = 120 * time.Second
)

// ServerConfig assembles the API server.
type ServerConfig struct {
	Orchestrator *chat.Orchestrator // required
	Sessions     *session.Store     // required
	Signer       *auth.Signer       // required
	Gate         *retrieval.Gate    // optional: nil disables /kb/health
	Knowledge    *knowledge.Store   // optional: nil disables /search

	AdminUsername string
	AdminPassword string

	CORSOrigins []string
	TrustProxy  bool
	RateBurst   int // 0 = default 60

	Logger *slog.Logger
}

// Server is the HTTP server.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
}

// NewServer creates the server with all routes and middleware configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.Signer == nil {
		return nil, errors.New("token signer is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	th := &tokenHandler{
		signer:   cfg.Signer,
		username: cfg.AdminUsername,
		password: cfg.AdminPassword,
		logger:   logger,
	}
	mux.HandleFunc("POST /api/v1/auth/token", th.issue)

	ch := &chatHandler{orch: cfg.Orchestrator, logger: logger}
	mux.HandleFunc("POST /api/v1/chat", ch.send)
	mux.HandleFunc("POST /api/v1/chat/stream", ch.stream)

	sh := &sessionHandler{store: cfg.Sessions, logger: logger}
	mux.HandleFunc("GET /api/v1/sessions", sh.list)
	mux.HandleFunc("GET /api/v1/sessions/{id}/messages", sh.messages)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", sh.remove)

	st := &statsHandler{sessions: cfg.Sessions}
	mux.HandleFunc("GET /api/v1/stats", st.stats)

	if cfg.Knowledge != nil {
		kh := &searchHandler{store: cfg.Knowledge, logger: logger}
		mux.HandleFunc("GET /api/v1/search", kh.search)
	}
	if cfg.Gate != nil {
		hh := &kbHealthHandler{gate: cfg.Gate}
		mux.HandleFunc("GET /api/v1/kb/health", hh.health)
	}

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	var handler http.Handler = mux
	handler = authMiddleware(cfg.Signer, logger)(handler)
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probe stays outside the middleware stack so load balancers
	// need no credentials.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	topMux.Handle("/", handler)

	return &Server{mux: topMux, logger: logger}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run starts the server and blocks until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
