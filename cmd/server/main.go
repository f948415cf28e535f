package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"loginsight/internal/authn"
	"loginsight/internal/config"
	"loginsight/internal/findings"
	"loginsight/internal/httpapi"
	"loginsight/internal/ingest"
	"loginsight/internal/llm"
	"loginsight/internal/llm/providers"
	"loginsight/internal/maintenance"
	"loginsight/internal/objectstore"
	"loginsight/internal/observability"
	"loginsight/internal/pipeline"
	"loginsight/internal/store"
	"loginsight/internal/suppressor"
	"loginsight/internal/templates"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	observability.InitLogger("loginsight.log", "info")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.InitOTel(ctx, cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdownOTel = nil
	}
	if shutdownOTel != nil {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	primary, err := store.NewPostgresFromConfig(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open postgres")
	}
	if err := primary.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure schema")
	}

	backend, err := store.NewBackendFactory(ctx, primary, cfg.ClickHouse)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build backend factory")
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	resolver := config.NewResolver(60*time.Second, config.NewAppConfigLoader(primary))

	templateMgr := templates.New(primary, redisClient, templates.Config{
		ScoreCacheTTL:       time.Duration(cfg.Pipeline.ScoreCacheTTLMinutes) * time.Minute,
		MessageMaxLength:    cfg.Pipeline.MessageMaxLength,
		LowScoreThreshold:   cfg.Pipeline.LowScoreThreshold,
		LowScoreMinScorings: cfg.Pipeline.LowScoreMinScorings,
	})

	suppressorIndex := suppressor.New(primary)
	if err := suppressorIndex.WarmAll(ctx); err != nil {
		log.Warn().Err(err).Msg("suppressor_warm_all_failed")
	}

	httpClient := observability.NewHTTPClient(nil)
	llm.ConfigureLogging(false, 2048)

	registry, err := providers.BuildAll(cfg.LLM, httpClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build llm provider registry")
	}

	initialPrivacy := llm.DefaultPrivacyFilterConfig()
	if raw, err := resolver.Get(ctx, config.KeyPrivacyFilter); err == nil {
		if c, ok := raw.(config.PrivacyFilterConfig); ok {
			initialPrivacy = c
		}
	}
	privacyFilter := llm.NewPrivacyFilter(initialPrivacy)

	findingsEngine := findings.New(primary, cfg.Pipeline)

	deps := pipeline.Deps{
		Backend:    backend,
		Central:    primary,
		Templates:  templateMgr,
		Suppressor: suppressorIndex,
		Privacy:    privacyFilter,
		Providers:  pipeline.NewAIConfigResolver(resolver, registry, cfg.LLM.Provider),
		Findings:   findingsEngine,
		Pipeline:   cfg.Pipeline,
	}

	scheduler := pipeline.NewScheduler(deps, primary)
	jobTracker := pipeline.NewJobTracker(scheduler.Scoring(), scheduler.Meta())

	var backupJob *maintenance.BackupJob
	if cfg.Maintenance.BackupEnabled {
		backupJob = maintenance.NewBackupJob(cfg.Postgres.DSN, cfg.Maintenance)
		if cfg.S3.Enabled {
			if remote, err := objectstore.NewS3Store(ctx, cfg.S3); err != nil {
				log.Warn().Err(err).Msg("backup_s3_store_init_failed")
			} else {
				backupJob = backupJob.WithRemote(remote)
			}
		}
	}
	maintScheduler := maintenance.NewScheduler(primary, backend, backupJob, cfg.Maintenance)

	auth, err := authn.NewVerifier(ctx, cfg.OIDC)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build oidc verifier")
	}

	server := httpapi.NewServer(primary, backend, jobTracker, maintScheduler, resolver, auth, templateMgr)

	var kafkaConsumer *ingest.Consumer
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic != "" {
		kafkaConsumer = ingest.NewConsumer(cfg.Kafka, primary, backend, cfg.Pipeline.ScoringBatchSize, 2*time.Second)
	}

	runBackground := func(name string, fn func(context.Context) error) {
		go func() {
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("component", name).Msg("background_component_stopped")
			}
		}()
	}

	runBackground("pipeline_scheduler", scheduler.Run)
	runBackground("maintenance_scheduler", maintScheduler.Run)
	if kafkaConsumer != nil {
		runBackground("ingest_consumer", kafkaConsumer.Run)
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http_server_listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http_server_failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http_server_shutdown_error")
	}
	fmt.Println("loginsight server stopped")
}
