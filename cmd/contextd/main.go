package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/contextd/contextd/internal/budget"
	"github.com/contextd/contextd/internal/config"
	"github.com/contextd/contextd/internal/httpapi"
	"github.com/contextd/contextd/internal/memory"
	"github.com/contextd/contextd/internal/observability"
	"github.com/contextd/contextd/internal/persistence"
	"github.com/contextd/contextd/internal/policy"
	"github.com/contextd/contextd/internal/reliability"
	"github.com/contextd/contextd/internal/tokenizer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := persistence.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("message store init failed: %v", err)
	}
	defer store.Close()
	if cfg.DatabaseURL == "" {
		log.Printf("no DATABASE_URL set, using in-memory message store")
	}

	var tok tokenizer.Tokenizer
	if tk, err := tokenizer.NewTiktoken(); err != nil {
		log.Printf("tiktoken unavailable, precise counts degrade to estimates: %v", err)
		tok = tokenizer.EstimatorTokenizer{}
	} else {
		tok = tk
	}

	maxBudget := budget.MaxTokenBudget(cfg.InferenceProvider, cfg.ProviderParams)
	log.Printf("provider %s: max token budget %d", cfg.InferenceProvider, maxBudget)

	svc := memory.New(memory.Options{
		Store:              store,
		Tokenizer:          tok,
		MaxTokenBudget:     maxBudget,
		RetentionDays:      cfg.RetentionDays,
		QueueSize:          cfg.TokenizeQueueSize,
		TrackerMaxSessions: cfg.TrackerMaxSessions,
		TrackerInactivity:  cfg.TrackerInactivity,
		Retry: reliability.RetryPolicy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		},
		Keys:    policy.NewStaticKeyValidator(cfg.APIKeys),
		Metrics: metrics,
	})

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	svc.StartTokenizationWorker(runCtx)
	svc.StartJanitor(runCtx, cfg.JanitorInterval)
	svc.StartRetentionSweeper(runCtx, 24*time.Hour)
	svc.StartBackfillSweeper(runCtx, cfg.BackfillDelay, cfg.BackfillPageSize)

	api := httpapi.New(cfg, svc)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
