package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/genai"

	"github.com/complai/complai/db"
	"github.com/complai/complai/internal/api"
	"github.com/complai/complai/internal/auth"
	"github.com/complai/complai/internal/chat"
	"github.com/complai/complai/internal/config"
	"github.com/complai/complai/internal/database"
	"github.com/complai/complai/internal/generate"
	"github.com/complai/complai/internal/knowledge"
	"github.com/complai/complai/internal/log"
	"github.com/complai/complai/internal/prompt"
	"github.com/complai/complai/internal/retrieval"
	"github.com/complai/complai/internal/session"
	"github.com/complai/complai/internal/trace"
)

// sessionSweepInterval is how often expired sessions are evicted.
const sessionSweepInterval = time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("starting complai server", "version", Version, "environment", cfg.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTraces, err := trace.SetupOtel(ctx, trace.OtelConfig{
		Endpoint:    cfg.OTLPEndpoint,
		Environment: cfg.Environment,
	}, logger)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTraces(flushCtx); err != nil {
			logger.Warn("trace shutdown failed", "error", err)
		}
	}()

	if err := db.Migrate(cfg.DatabaseURL(), logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("creating genai client: %w", err)
	}

	kb, err := knowledge.NewStore(pool, knowledge.NewGenaiEmbedder(client, cfg.EmbedderModel), logger)
	if err != nil {
		return fmt.Errorf("creating knowledge store: %w", err)
	}

	sessions := session.NewStore(session.Config{
		WindowSize:  cfg.WindowSize,
		Timeout:     cfg.SessionTimeout,
		MaxSessions: cfg.MaxSessions,
		Logger:      logger,
	})
	go sweepSessions(ctx, sessions, logger)

	gate := retrieval.New(kb, retrieval.Config{
		ContextCharBudget: cfg.ContextCharBudget,
		Logger:            logger,
	})

	orch := chat.New(chat.Config{
		Sessions:  sessions,
		Gate:      gate,
		Assembler: prompt.NewAssembler(prompt.NewFileProvider(cfg.PromptDir), cfg.PromptName),
		Generator: generate.New(generate.NewGenaiClient(client, cfg.ModelName), generate.Config{
			Logger: logger,
		}),
		Params: generate.Params{
			Temperature: cfg.Temperature,
			MaxTokens:   int32(cfg.MaxTokens),
		},
		RetrievalK:    cfg.RetrievalK,
		Timeout:       cfg.RequestTimeout,
		StrictPersist: cfg.StrictPersist,
		Emitter:       trace.NewOtelEmitter(logger),
		Logger:        logger,
	})

	srv, err := api.NewServer(api.ServerConfig{
		Orchestrator:  orch,
		Sessions:      sessions,
		Signer:        auth.NewSigner([]byte(cfg.HMACSecret), auth.DefaultTTL),
		Gate:          gate,
		Knowledge:     kb,
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
		TrustProxy:    cfg.TrustProxy,
		RateBurst:     cfg.RateBurst,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	return srv.Run(ctx, cfg.Addr)
}

// sweepSessions evicts expired sessions until ctx is cancelled.
func sweepSessions(ctx context.Context, sessions *session.Store, logger *slog.Logger) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.SweepExpired(); n > 0 {
				logger.Debug("swept expired sessions", "count", n)
			}
		}
	}
}

// newLogger builds the process logger from config.
func newLogger(cfg *config.Config) log.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return log.New(log.Config{Level: level, JSON: cfg.LogJSON})
}
