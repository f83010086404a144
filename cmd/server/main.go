// Server entrypoint. main wires configuration, storage, and the HTTP router;
// business logic lives in the internal service packages.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"policydesk/internal/audit"
	"policydesk/internal/document"
	"policydesk/internal/draft"
	draftHandler "policydesk/internal/draft/handler"
	"policydesk/internal/extraction"
	extractionHandler "policydesk/internal/extraction/handler"
	"policydesk/internal/platform/config"
	"policydesk/internal/platform/httpserver"
	"policydesk/internal/platform/httputil"
	"policydesk/internal/platform/logger"
	"policydesk/internal/platform/middleware"
	"policydesk/internal/platform/postgres"
	redisplatform "policydesk/internal/platform/redis"
	policyHandler "policydesk/internal/policy/handler"
	"policydesk/internal/policy/service"
	"policydesk/internal/policy/store"
	"policydesk/internal/renewal"
	renewalHandler "policydesk/internal/renewal/handler"
	"policydesk/internal/token"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := redisplatform.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	pool, err := postgres.New(ctx, cfg.PostgresURL)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	var records store.RecordStore = store.NewInMemoryStore()
	if pool != nil {
		records = store.NewPostgresStore(pool.Pool)
		log.Info("using postgres record store")
	}

	var drafts draft.Store = draft.NewInMemoryStore()
	var queues renewal.QueueStore = renewal.NewInMemoryQueueStore()
	if redisClient != nil {
		drafts = draft.NewRedisStore(redisClient.Client, cfg.SessionTTL)
		queues = renewal.NewRedisQueueStore(redisClient.Client, cfg.SessionTTL)
		log.Info("using redis draft and renewal stores", "session_ttl", cfg.SessionTTL)
	}

	var documents document.Store
	if cfg.MinioEndpoint != "" {
		minioStore, err := document.NewMinioStore(cfg)
		if err != nil {
			return err
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			return err
		}
		documents = minioStore
		log.Info("using minio document store", "bucket", cfg.MinioBucket)
	} else {
		log.Warn("document storage not configured, submissions will save without documents")
	}

	var sink audit.Sink = audit.NewInMemorySink()
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			return err
		}
		defer kafkaSink.Close()
		sink = kafkaSink
		log.Info("publishing audit events to kafka", "topic", cfg.AuditTopic)
	}
	worker := audit.NewWorker(log, sink, 256)

	policyService := service.NewService(log, records, drafts, documents, worker)
	coordinator := renewal.NewCoordinator(log, queues, drafts, records)
	pipeline := extraction.NewPipeline(log, extraction.NewHTTPClient(cfg.ExtractionURL, cfg.ExtractionToken), records)
	validator := token.NewValidator(cfg.JWTSigningKey)

	router := newRouter(cfg, log, validator, redisClient, pool,
		policyHandler.New(policyService, log),
		extractionHandler.New(pipeline, log, worker),
		draftHandler.New(drafts, log),
		renewalHandler.New(coordinator, log, worker),
	)
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		log.Info("starting policydesk", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

type registrar interface {
	Register(r chi.Router)
}

func newRouter(cfg config.Config, log *slog.Logger, validator middleware.TokenValidator,
	redisClient *redisplatform.Client, pool *postgres.Pool, handlers ...registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Device)

	r.Get("/healthz", healthHandler(redisClient, pool))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, log))
		for _, h := range handlers {
			h.Register(r)
		}
	})

	return r
}

func healthHandler(redisClient *redisplatform.Client, pool *postgres.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				status["redis"] = "unreachable"
				code = http.StatusServiceUnavailable
			}
		}
		if pool != nil {
			if err := pool.Health(r.Context()); err != nil {
				status["postgres"] = "unreachable"
				code = http.StatusServiceUnavailable
			}
		}
		if code != http.StatusOK {
			status["status"] = "degraded"
		}
		httputil.WriteJSON(w, code, status)
	}
}
