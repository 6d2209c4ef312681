package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"repogator/internal/agents"
	"repogator/internal/audit"
	"repogator/internal/event"
	"repogator/internal/github"
	"repogator/internal/knowledge"
	"repogator/internal/orchestrator"
	"repogator/internal/platform/config"
	"repogator/internal/platform/httpserver"
	"repogator/internal/platform/logger"
	"repogator/internal/platform/metrics"
	"repogator/internal/platform/postgres"
	platformredis "repogator/internal/platform/redis"
	"repogator/internal/queue"
	"repogator/internal/repos"
	"repogator/internal/settings"
	"repogator/internal/webhook"
)

// main wires the pipeline: verify -> persist -> enqueue at the ingress, and
// recover -> consume -> orchestrate -> publish -> finalize in the background.
// Startup order matters: recovery must finish before the worker starts so it
// only re-enqueues genuinely stuck events.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		log.Error("postgres connection failed", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	if err := event.Migrate(ctx, db); err != nil {
		log.Error("migration failed", "error", err.Error())
		os.Exit(1)
	}
	if err := repos.Migrate(ctx, db); err != nil {
		log.Error("migration failed", "error", err.Error())
		os.Exit(1)
	}
	if err := settings.Migrate(ctx, db); err != nil {
		log.Error("migration failed", "error", err.Error())
		os.Exit(1)
	}
	if err := audit.Migrate(ctx, db); err != nil {
		log.Error("migration failed", "error", err.Error())
		os.Exit(1)
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err.Error())
		os.Exit(1)
	}
	defer redisClient.Close()

	eventStore := event.NewPostgresStore(db)
	repoStore := repos.NewPostgresStore(db)
	settingsStore := settings.NewPostgresStore(db)
	auditPub := audit.NewPublisher(audit.NewPostgresStore(db))

	q := queue.NewRedisQueue(redisClient.Client, cfg.Redis.QueueName, m, log)

	embedder := knowledge.NewHTTPEmbedder(cfg.Knowledge.EmbeddingURL, cfg.Knowledge.EmbeddingKey, cfg.Knowledge.EmbeddingModel)
	kb := knowledge.New(cfg.Knowledge.BaseURL, embedder, log)

	gh := github.New(cfg.GitHub.BaseURL, cfg.GitHub.Token, m, log)

	orch := orchestrator.New(
		agents.NewRequirements(kb),
		agents.NewCodeReview(gh),
		agents.NewDocs(kb),
		gh,
		eventStore,
		auditPub,
		m,
		log,
	)

	recovery := queue.NewRecovery(eventStore, q, m, log)
	if err := recovery.Run(ctx); err != nil {
		// Events left behind stay recoverable on the next boot.
		log.Error("startup recovery incomplete", "error", err.Error())
	}

	worker := queue.NewWorker(q, orch.Dispatch, log, cfg.Worker.PopTimeout)

	ingress := webhook.New(
		cfg.Server.WebhookSecret,
		eventStore,
		q,
		repoStore,
		settingsStore,
		auditPub,
		m,
		log,
		map[string]webhook.HealthChecker{
			"db":        eventStore.Health,
			"redis":     q.Ping,
			"knowledge": kb.Health,
		},
	)

	router := chi.NewRouter()
	ingress.Register(router)
	router.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Server.Addr, router)

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		worker.Run(workerCtx)
		return nil
	})

	if cfg.Worker.SweepInterval > 0 {
		g.Go(func() error {
			recovery.RunSweeper(workerCtx, cfg.Worker.SweepInterval, cfg.Worker.SweepAge)
			return nil
		})
	}

	g.Go(func() error {
		log.Info("starting repogator", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", "error", err.Error())
		}

		worker.Stop()
		if !worker.Wait(cfg.Worker.StopGrace) {
			log.Warn("worker did not stop within grace period, cancelling")
		}
		cancelWorker()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err.Error())
		os.Exit(1)
	}
	log.Info("repogator shut down cleanly")
}
