// Command server starts the voice interview orchestration HTTP server.
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

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-voice-interviewer/internal/adapter/ai"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/adapter/ai/stub"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/adapter/speech"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/app"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/config"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/service/cooldown"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		slog.Error("invalid interview policy", slog.Any("error", err))
		os.Exit(1)
	}

	ctx := context.Background()

	// Snapshot persistence
	var repo domain.SessionRepository
	var dbCheck func(context.Context) error
	if cfg.DBURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DBURL)
		if err != nil {
			slog.Error("db connect failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			slog.Error("db schema setup failed", slog.Any("error", err))
			os.Exit(1)
		}
		repo = postgres.NewSessionRepo(pool)
		dbCheck = pool.Ping
	}

	// Snapshot stream
	var publisher domain.SnapshotPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := redpanda.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			slog.Error("redpanda producer connect failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer producer.Close()
		publisher = producer
	}

	// Model gateway: real when credentials exist, deterministic stub for
	// local development without keys.
	pool := domain.NewCredentialPool(cfg.LLMAPIKeys)
	var gateway domain.ModelGateway
	var transcriber domain.Transcriber
	if pool.Size() > 0 {
		var cooldowns ai.CooldownStore
		if cfg.RedisURL != "" {
			opts, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid redis url", slog.Any("error", err))
				os.Exit(1)
			}
			cooldowns = cooldown.NewRedisStore(redis.NewClient(opts))
		}
		gateway = ai.New(cfg, pool, cooldowns)
		transcriber = speech.NewWhisperTranscriber(cfg, pool)
	} else {
		if cfg.IsProd() {
			slog.Error("no model credentials configured")
			os.Exit(1)
		}
		slog.Warn("no model credentials configured, using deterministic stub gateway")
		gateway = stub.New()
	}
	synthesizer := speech.NewHTTPSynthesizer(cfg)

	store := usecase.NewSessionStore()
	orchestrator := usecase.NewOrchestrator(store, gateway, repo, publisher, policy)

	srv := httpserver.NewServer(cfg, orchestrator, transcriber, synthesizer, dbCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
