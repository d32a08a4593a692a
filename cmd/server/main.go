package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"attestia/internal/aggregator"
	"attestia/internal/aggregator/tracer"
	"attestia/internal/audit"
	"attestia/internal/credential/builder"
	"attestia/internal/credential/normalize"
	"attestia/internal/credential/proof"
	"attestia/internal/credential/rules"
	"attestia/internal/credential/service"
	"attestia/internal/credential/store"
	"attestia/internal/credential/template"
	"attestia/internal/platform/config"
	"attestia/internal/platform/httpserver"
	"attestia/internal/platform/kafka"
	"attestia/internal/platform/logger"
	"attestia/internal/provider"
	"attestia/internal/provider/cache"
	"attestia/internal/provider/ratelimit"
	"attestia/internal/provider/retry"
	httptransport "attestia/internal/transport/http"
)

// main wires dependencies and owns the server lifecycle. Pipeline logic
// lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing attestia",
		"addr", cfg.Addr,
		"issuer_did", cfg.IssuerDID,
	)

	if cfg.SigningKeyPEM == "" {
		log.Error("SIGNING_KEY_PEM is required")
		os.Exit(1)
	}
	signer, err := proof.NewJWSSigner([]byte(cfg.SigningKeyPEM))
	if err != nil {
		log.Error("failed to load signing key", "error", err)
		os.Exit(1)
	}

	// Response cache: Redis when configured, process-local otherwise.
	var responseCache cache.Store = cache.NewInMemoryStore(cfg.RefreshThreshold)
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		responseCache = cache.NewRedisStore(redis.NewClient(redisOpts), cfg.RefreshThreshold)
		log.Info("using redis response cache")
	}

	// Credential store: PostgreSQL when configured.
	var credentialStore store.Store = store.NewMemory()
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		credentialStore = store.NewPostgres(db)
		log.Info("using postgres credential store")
	}

	// Audit trail: Kafka when configured, discarded otherwise.
	var publisher audit.Publisher = audit.NopPublisher{}
	if cfg.KafkaBrokers != "" {
		producer, err := kafka.NewProducer(kafka.DefaultConfig(cfg.KafkaBrokers))
		if err != nil {
			log.Error("failed to create kafka producer", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		publisher = audit.NewKafkaPublisher(producer, log)
		log.Info("publishing lifecycle events to kafka")
	}

	providers := provider.NewRegistry()
	limiter := ratelimit.New(ratelimit.Limit{RequestsPerSecond: 10})
	caller := aggregator.NewHTTPCaller(&http.Client{Timeout: cfg.ProviderTimeout}, cfg.ProviderTimeout)
	aggOpts := []aggregator.Option{aggregator.WithLogger(log)}
	if cfg.TracingEnabled {
		aggOpts = append(aggOpts, aggregator.WithTracer(tracer.NewOTel()))
		log.Info("emitting aggregator traces via opentelemetry")
	}
	agg := aggregator.New(providers, limiter, responseCache, caller, aggregator.Config{
		DefaultCacheTTL:   cfg.CacheTTL,
		InterRequestDelay: cfg.InterRequestDelay,
		RetryPolicy:       retry.DefaultPolicy(),
	}, aggOpts...)

	svc := service.New(service.Config{
		Templates:        template.NewRegistry(),
		Providers:        providers,
		Normalizers:      normalize.NewRegistry(),
		Calculator:       normalize.NewCalculator(),
		Engine:           rules.NewEngine(rules.DefaultApprove, rules.WithLogger(log)),
		Builder:          builder.New(),
		Attacher:         proof.NewAttacher(signer),
		Store:            credentialStore,
		Audit:            publisher,
		Fetcher:          agg,
		IssuerName:       "Attestia",
		BatchConcurrency: cfg.MaxBatchConcurrency,
		Logger:           log,
	})

	handler := httptransport.NewHandler(svc, log)
	router := httptransport.NewRouter(handler, log)
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting http server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	log.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
