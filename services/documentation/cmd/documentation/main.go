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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"casedoc/internal/ratelimit"
	"casedoc/internal/util"
	"casedoc/pkg/metrics"
	"casedoc/pkg/queue"
	"casedoc/pkg/storage"
	"casedoc/services/documentation/internal/app"
	"casedoc/services/documentation/internal/config"
	"casedoc/services/documentation/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := util.InitLogger(cfg.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pipelineMetrics, err := metrics.NewPipelineMetrics(registry)
	if err != nil {
		fatal(logger, "failed to init metrics", err)
	}

	appCfg := app.Config{
		Metrics:       pipelineMetrics,
		Logger:        logger,
		StoreBackend:  cfg.StoreBackend,
		DatabaseURL:   cfg.DatabaseURL,
		ObjectBackend: cfg.ObjectBackend,
		Minio: storage.MinioConfig{
			Endpoint:      cfg.MinioEndpoint,
			AccessKey:     cfg.MinioAccessKey,
			SecretKey:     cfg.MinioSecretKey,
			Bucket:        cfg.MinioBucket,
			UseSSL:        cfg.MinioUseSSL,
			PublicBaseURL: cfg.MinioPublicBaseURL,
		},
		Providers: app.ProviderConfig{
			TranscriptionProvider: cfg.TranscriptionProvider,
			TranscriptionBaseURL:  cfg.TranscriptionBaseURL,
			TranscriptionAPIKey:   cfg.TranscriptionAPIKey,
			TranscriptionModel:    cfg.TranscriptionModel,
			MockTranscript:        cfg.MockTranscript,
			GenerationProvider:    cfg.GenerationProvider,
			GenerationBaseURL:     cfg.GenerationBaseURL,
			GenerationAPIKey:      cfg.GenerationAPIKey,
			GenerationModel:       cfg.GenerationModel,
			SummaryLanguage:       cfg.SummaryLanguage,
		},
		LanguageHint:      cfg.LanguageHint,
		ServiceTimeout:    time.Duration(cfg.ServiceTimeoutSeconds) * time.Second,
		CurationIdle:      time.Duration(cfg.CurationIdleMinutes) * time.Minute,
		AttachConcurrency: cfg.AttachConcurrency,
	}

	// The job queue owns the Redis client; the limiter borrows it.
	var (
		redisClient redis.UniversalClient
		jobs        *queue.RedisJobQueue
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		jobs, err = queue.NewJobQueue(redisClient, queue.RedisQueueConfig{
			Stream:     cfg.QueueName,
			Group:      cfg.QueueGroup,
			MaxRetries: cfg.QueueMaxRetries,
			RetryDelay: time.Duration(cfg.QueueRetryDelaySeconds) * time.Second,
			Logger:     logger,
		})
		if err != nil {
			fatal(logger, "failed to init job queue", err)
		}
		appCfg.Queue = jobs
	}

	appCore, err := app.New(appCfg)
	if err != nil {
		fatal(logger, "failed to init app", err)
	}
	defer appCore.Close()

	if jobs != nil {
		jobs.Start(ctx, cfg.QueueConcurrency, appCore.HandleJob)
		logger.Info("transcription worker started", "stream", cfg.QueueName, "concurrency", cfg.QueueConcurrency)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		fatal(logger, "failed to parse trusted proxies", err)
	}
	srvCfg := server.Config{
		App:            appCore,
		Metrics:        pipelineMetrics,
		TrustedProxies: trusted,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}
	if cfg.AIRateLimitPerMinute > 0 {
		limiter, err := ratelimit.NewFixedWindowLimiter(redisClient, "casedoc:ai", cfg.AIRateLimitPerMinute, time.Minute)
		if err != nil {
			fatal(logger, "failed to init rate limiter", err)
		}
		srvCfg.Limiter = limiter
	}
	httpServer, err := server.New(srvCfg)
	if err != nil {
		fatal(logger, "failed to init server", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "err", err)
		}
	}()

	slog.Info("documentation server listening", "addr", addr, "async", appCore.AsyncEnabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
	if jobs != nil {
		jobs.Wait()
		if err := jobs.Close(); err != nil {
			logger.Warn("close job queue", "err", err)
		}
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
