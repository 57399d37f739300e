package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/votegate/internal/api"
	"github.com/your-org/votegate/internal/api/handlers"
	"github.com/your-org/votegate/internal/api/ws"
	"github.com/your-org/votegate/internal/biometric"
	"github.com/your-org/votegate/internal/config"
	"github.com/your-org/votegate/internal/ledger"
	"github.com/your-org/votegate/internal/lockout"
	"github.com/your-org/votegate/internal/observability"
	"github.com/your-org/votegate/internal/queue"
	"github.com/your-org/votegate/internal/storage"
	"github.com/your-org/votegate/internal/verify"
	"github.com/your-org/votegate/internal/vision"
	"github.com/your-org/votegate/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	gin.SetMode(gin.ReleaseMode)

	slog.Info("starting votegate API service", "port", cfg.Server.Port)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.Migrate {
		if err := db.Migrate(); err != nil {
			slog.Error("migrate database", "error", err)
			os.Exit(1)
		}
		slog.Info("database migrations applied")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var observers []verify.Observer
	var evidenceLister handlers.EvidenceLister
	checks := map[string]handlers.Check{"postgres": db.Ping}

	// Evidence store for rejected captures
	if cfg.Evidence.Enabled {
		evidence, err := storage.NewEvidenceStore(cfg.MinIO, cfg.Evidence.Prefix)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := evidence.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		observers = append(observers, verify.EvidenceObserver(evidence))
		evidenceLister = evidence
		checks["minio"] = evidence.Ping
	}

	// WebSocket hub for the live attempt feed
	hub := ws.NewHub()
	go hub.Run()

	// NATS: publish attempt outcomes, consume them back for the hub
	if cfg.NATS.URL != "" {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}
		observers = append(observers, producer)
		checks["nats"] = func(context.Context) error { return producer.Ping() }

		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create attempt consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		hostname, _ := os.Hostname()
		err = consumer.ConsumeAttempts(ctx, "api-monitor-"+hostname, func(_ context.Context, evt *dto.AttemptEvent) error {
			hub.BroadcastAttempt(evt)
			return nil
		})
		if err != nil {
			slog.Warn("start attempt consumer", "error", err)
		}
	}

	// Face models load lazily; warm them up in the background
	extractor := vision.NewExtractor(cfg.Vision)
	defer extractor.Close()
	go func() {
		if err := extractor.Warmup(); err != nil {
			slog.Warn("face models unavailable, votes will fail until fixed", "error", err)
		}
	}()

	var spoof biometric.SpoofClassifier = biometric.DisabledClassifier{}
	if cfg.Spoof.URL != "" {
		spoof = biometric.NewRemoteClassifier(cfg.Spoof.URL, cfg.Spoof.APIKey, cfg.Spoof.Timeout)
		slog.Info("remote spoof classifier enabled", "url", cfg.Spoof.URL)
	}

	v := cfg.Verification
	policy := lockout.NewPolicy(db, v.FailureLimit, v.Cooldown)
	orchestrator := verify.New(verify.Deps{
		Voters:    db,
		Lockout:   policy,
		Ledger:    ledger.New(db),
		Liveness:  biometric.NewLivenessScreen(v.LivenessThreshold),
		Spoof:     spoof,
		Extractor: extractor,
	}, verify.Config{
		MatchThreshold: v.MatchThreshold,
		AttemptTimeout: v.AttemptTimeout,
		ExtractWorkers: v.ExtractWorkers,
	}, observers...)

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKeys:        cfg.Server.APIKeys,
		DB:             db,
		Verifier:       orchestrator,
		Lockout:        policy,
		Hub:            hub,
		Evidence:       evidenceLister,
		Checks:         checks,
		VotesPerSecond: cfg.RateLimit.PerSecond(),
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: v.AttemptTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	orchestrator.Wait()

	slog.Info("API server stopped")
}
