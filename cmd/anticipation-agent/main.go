package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saaga0h/jeeves-anticipation/internal/anticipation"
	"github.com/saaga0h/jeeves-anticipation/internal/knowledge"
	"github.com/saaga0h/jeeves-anticipation/internal/storage"
	"github.com/saaga0h/jeeves-anticipation/pkg/config"
	"github.com/saaga0h/jeeves-anticipation/pkg/health"
	"github.com/saaga0h/jeeves-anticipation/pkg/llm"
	"github.com/saaga0h/jeeves-anticipation/pkg/mqtt"
	"github.com/saaga0h/jeeves-anticipation/pkg/postgres"
	"github.com/saaga0h/jeeves-anticipation/pkg/redis"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// Load configuration with hierarchy: defaults → env (.env fills gaps) → flags
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, using environment variables only\n", err)
	}
	cfg := config.NewConfig()
	cfg.LoadFromEnv()
	if err := cfg.LoadFromFlags(); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		os.Exit(2)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("Starting J.E.E.V.E.S. Anticipation Agent",
		"service_name", cfg.ServiceName,
		"user_id", cfg.UserID,
		"mqtt_broker", cfg.MQTTAddress(),
		"redis_host", cfg.RedisAddress(),
		"journal", cfg.JournalEnabled,
		"knowledge", cfg.KnowledgeEnabled,
		"log_level", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Agent failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Anticipation agent shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	mqttClient := mqtt.NewClient(cfg, logger)
	redisClient := redis.NewClient(cfg, logger)
	defer redisClient.Close()

	timeManager := anticipation.NewTimeManager(logger)
	deps := anticipation.Dependencies{
		Now:      timeManager.Now,
		Notifier: anticipation.NewMQTTNotifier(mqttClient, logger),
	}

	var (
		pgClient postgres.Client
		journal  *storage.Journal
	)
	if cfg.JournalEnabled || cfg.KnowledgeEnabled {
		pgClient = connectPostgres(ctx, cfg, logger)
	}

	if pgClient != nil && cfg.JournalEnabled {
		journal = storage.NewJournal(pgClient, cfg.UserID, storage.DefaultJournalBuffer, logger)
		if err := journal.EnsureSchema(ctx); err != nil {
			logger.Warn("Journal disabled", "error", err)
			journal = nil
		} else {
			deps.Journal = journal
		}
	}

	if pgClient != nil && cfg.KnowledgeEnabled {
		if err := knowledge.EnsureSchema(ctx, pgClient); err != nil {
			logger.Warn("Knowledge lookup disabled", "error", err)
		} else {
			embedder := llm.NewOllamaClient(cfg.LLMEndpoint, cfg.EmbeddingModel, logger)
			// lookups are bounded per tick, so an unreachable model only means knowledge templates stay quiet
			if err := embedder.Health(ctx); err != nil {
				logger.Warn("Embedding service not reachable yet", "endpoint", cfg.LLMEndpoint, "error", err)
			}
			store := knowledge.NewVectorStore(pgClient, embedder, cfg.KnowledgeMinScore, logger)
			deps.Searcher = store
			deps.Indexer = store
		}
	}

	service, err := anticipation.NewService(cfg, deps, logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	stateStore := storage.NewStateStore(redisClient, cfg.UserID, storage.DefaultCheckpoints, logger)
	agent := anticipation.NewAgent(mqttClient, stateStore, service, timeManager, cfg, logger)

	var pgHealth health.PostgresChecker
	if pgClient != nil {
		pgHealth = pgClient
	}
	orchestratorState := func() string { return service.Orchestrator().State().String() }
	checker := health.NewChecker(mqttClient, redisClient, pgHealth, orchestratorState, logger)

	healthMux := http.NewServeMux()
	checker.Register(healthMux)

	apiMux := http.NewServeMux()
	anticipation.NewAPI(service, logger).Register(apiMux)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return agent.Start(gctx)
	})
	if journal != nil {
		g.Go(func() error {
			return journal.Run(gctx)
		})
	}
	g.Go(func() error {
		// a broken watch only loses hot reload
		if err := service.WatchTemplates(gctx); err != nil {
			logger.Warn("Template hot reload disabled", "error", err)
		}
		return nil
	})
	serve(gctx, g, "health", cfg.HealthPort, healthMux, logger)
	serve(gctx, g, "api", cfg.APIPort, apiMux, logger)

	err = g.Wait()

	logger.Info("Initiating graceful shutdown")
	agent.Stop()
	if pgClient != nil {
		if derr := pgClient.Disconnect(); derr != nil {
			logger.Error("Error disconnecting from postgres", "error", derr)
		}
	}
	if journal != nil {
		stats := journal.Stats()
		logger.Info("Journal totals", "written", stats.Written, "dropped", stats.Dropped, "failed", stats.Failed)
	}

	return err
}

// connectPostgres returns nil when the database is unreachable; the journal
// and knowledge lookup are optional
func connectPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) postgres.Client {
	client := postgres.NewClient(cfg, logger)
	if err := client.Connect(ctx); err != nil {
		logger.Warn("Postgres unavailable, continuing without journal and knowledge lookup", "error", err)
		return nil
	}
	return client
}

// serve runs an HTTP server in g until ctx is done
func serve(ctx context.Context, g *errgroup.Group, name string, port int, handler http.Handler, logger *slog.Logger) {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", "server", name, "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s server: %w", name, err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down HTTP server", "server", name, "error", err)
		}
		return nil
	})
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
