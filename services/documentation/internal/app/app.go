package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"casedoc/internal/util"
	"casedoc/pkg/ai"
	"casedoc/pkg/artifact"
	"casedoc/pkg/curation"
	"casedoc/pkg/metrics"
	"casedoc/pkg/queue"
	"casedoc/pkg/storage"
	"casedoc/pkg/store"
)

const (
	defaultAttachConcurrency = 4
	defaultServiceTimeout    = 2 * time.Minute
)

// ErrAsyncUnavailable is returned when asynchronous transcription is requested
// but no job queue is configured.
var ErrAsyncUnavailable = errors.New("async transcription not configured")

// JobQueue is the subset of the Redis job queue the app needs.
type JobQueue interface {
	Enqueue(ctx context.Context, kind, subjectID string) (queue.JobStatus, error)
	GetJob(ctx context.Context, jobID string) (queue.JobStatus, bool, error)
}

// Config holds runtime configuration for the core application. Injected
// collaborators take precedence over the connection settings.
type Config struct {
	Store   store.Store
	Objects storage.ObjectStore
	Queue   JobQueue
	Metrics *metrics.PipelineMetrics
	Logger  *slog.Logger

	StoreBackend  string
	DatabaseURL   string
	ObjectBackend string
	Minio         storage.MinioConfig

	Transcriber    ai.Transcriber
	Summarizer     ai.Summarizer
	TopicExtractor ai.TopicExtractor
	Providers      ProviderConfig

	LanguageHint      string
	ServiceTimeout    time.Duration
	CurationIdle      time.Duration
	AttachConcurrency int

	Now   func() time.Time
	NewID func() string
}

// App wires the documentation pipeline: artifact persistence, external
// services, curation sessions and the record store.
type App struct {
	store       store.Store
	objects     storage.ObjectStore
	artifacts   *artifact.Store
	transcriber ai.Transcriber
	summarizer  ai.Summarizer
	topics      ai.TopicExtractor
	sessions    *curation.Registry
	jobs        JobQueue
	metrics     *metrics.PipelineMetrics
	log         *slog.Logger

	languageHint      string
	serviceTimeout    time.Duration
	attachConcurrency int
	now               func() time.Time
	newID             func() string
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dataStore := cfg.Store
	if dataStore == nil {
		var err error
		dataStore, err = openStore(cfg)
		if err != nil {
			return nil, err
		}
	}
	objects := cfg.Objects
	if objects == nil {
		var err error
		objects, err = openObjects(cfg)
		if err != nil {
			return nil, err
		}
	}

	timeout := cfg.ServiceTimeout
	if timeout <= 0 {
		timeout = defaultServiceTimeout
	}
	transcriber := cfg.Transcriber
	if transcriber == nil {
		var err error
		transcriber, err = newTranscriber(cfg.Providers)
		if err != nil {
			return nil, err
		}
	}
	summarizer, extractor := cfg.Summarizer, cfg.TopicExtractor
	if summarizer == nil || extractor == nil {
		gen, err := newGenerator(cfg.Providers)
		if err != nil {
			return nil, err
		}
		language := cfg.Providers.SummaryLanguage
		if summarizer == nil {
			if gen == nil {
				summarizer = ai.MockSummarizer{}
			} else {
				summarizer = ai.NewGeneratorSummarizer(gen, language, timeout)
			}
		}
		if extractor == nil {
			if gen == nil {
				extractor = ai.StaticTopicExtractor{}
			} else {
				extractor = ai.NewGeneratorTopicExtractor(gen, language, timeout)
			}
		}
	}

	hint := strings.TrimSpace(cfg.LanguageHint)
	if hint == "" {
		hint = ai.DefaultLanguageHint
	}
	concurrency := cfg.AttachConcurrency
	if concurrency <= 0 {
		concurrency = defaultAttachConcurrency
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	newID := cfg.NewID
	if newID == nil {
		newID = util.NewID
	}

	artifactOpts := []artifact.Option{artifact.WithLogger(logger), artifact.WithClock(now)}
	return &App{
		store:             dataStore,
		objects:           objects,
		artifacts:         artifact.NewStore(dataStore, objects, artifactOpts...),
		transcriber:       transcriber,
		summarizer:        summarizer,
		topics:            extractor,
		sessions:          curation.NewRegistry(cfg.CurationIdle),
		jobs:              cfg.Queue,
		metrics:           cfg.Metrics,
		log:               logger.With("component", "documentation"),
		languageHint:      hint,
		serviceTimeout:    timeout,
		attachConcurrency: concurrency,
		now:               now,
		newID:             newID,
	}, nil
}

func openStore(cfg Config) (store.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StoreBackend)) {
	case "memory":
		return store.NewMemoryStore(), nil
	case "", "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		s, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}
}

func openObjects(cfg Config) (storage.ObjectStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.ObjectBackend)) {
	case "memory":
		return storage.NewMemoryStore(""), nil
	case "", "minio":
		s, err := storage.NewMinioStore(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("init minio: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown object backend: %s", cfg.ObjectBackend)
	}
}

// Artifacts exposes the artifact store.
func (a *App) Artifacts() *artifact.Store {
	return a.artifacts
}

// Sessions exposes the curation registry.
func (a *App) Sessions() *curation.Registry {
	return a.sessions
}

// AsyncEnabled reports whether a job queue is wired.
func (a *App) AsyncEnabled() bool {
	return a.jobs != nil
}

// Ping checks the record store when it supports health checks.
func (a *App) Ping(ctx context.Context) error {
	if p, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close releases the record store when it holds connections.
func (a *App) Close() error {
	if c, ok := a.store.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func (a *App) withServiceTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.serviceTimeout)
}

func (a *App) observe(stage string, started time.Time, err error) {
	a.metrics.ObserveStage(stage, started, err)
}

func (a *App) syncSessionGauge() {
	a.metrics.SetCurationSessions(a.sessions.Len())
}
