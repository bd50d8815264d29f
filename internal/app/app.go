package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/The-Juice-Real/redgenv2/internal/config"
	"github.com/The-Juice-Real/redgenv2/internal/discovery"
	"github.com/The-Juice-Real/redgenv2/internal/domain"
	"github.com/The-Juice-Real/redgenv2/internal/escalation"
	"github.com/The-Juice-Real/redgenv2/internal/fetcher"
	"github.com/The-Juice-Real/redgenv2/internal/infrastructure/cache"
	"github.com/The-Juice-Real/redgenv2/internal/infrastructure/llm"
	"github.com/The-Juice-Real/redgenv2/internal/infrastructure/ml"
	"github.com/The-Juice-Real/redgenv2/internal/infrastructure/parser"
	"github.com/The-Juice-Real/redgenv2/internal/infrastructure/scheduler"
	"github.com/The-Juice-Real/redgenv2/internal/infrastructure/storage"
	"github.com/The-Juice-Real/redgenv2/internal/infrastructure/telegram"
	"github.com/The-Juice-Real/redgenv2/internal/logging"
	"github.com/The-Juice-Real/redgenv2/internal/metrics"
	"github.com/The-Juice-Real/redgenv2/internal/ports"
	"github.com/The-Juice-Real/redgenv2/internal/profile"
	"github.com/The-Juice-Real/redgenv2/internal/ratelimit"
	"github.com/The-Juice-Real/redgenv2/internal/source"
	"github.com/The-Juice-Real/redgenv2/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	profiles *profile.Catalog
	store    *storage.SQLRepository
	pipeline *usecase.Pipeline
}

// LoadProfiles returns the configured profile catalog, or the built-in one.
func LoadProfiles(cfg config.Config) (*profile.Catalog, error) {
	if cfg.Profiles.Path != "" {
		return profile.LoadFile(cfg.Profiles.Path)
	}
	return profile.Default()
}

// New builds a runnable application instance. Profile and storage errors
// are returned before any work starts.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	profiles, err := LoadProfiles(cfg)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	html := parser.NewHTMLSource(nil, cfg.Source.BaseURL)
	registry := source.NewRegistry()
	registry.Register(html)
	registry.Register(parser.NewRSSSource(nil, cfg.Source.BaseURL))
	fallback := parser.NewFallbackSource(cfg.Source.FallbackPerPartition)
	registry.Register(fallback)

	strategy := parser.NewStrategySource(registry, cfg.Source.Default, cfg.Source.Routes, baseLogger.With("component", "source"))

	fetchOpts := []fetcher.Option{fetcher.WithLogger(baseLogger.With("component", "fetcher"))}
	if cfg.Source.Fallback {
		fetchOpts = append(fetchOpts, fetcher.WithFallback(fallback))
	}
	limiter := ratelimit.New(cfg.Source.MinInterval)
	harvester := fetcher.New(strategy, limiter, fetcher.Config{
		PageSize:       cfg.Source.PageSize,
		MaxAttempts:    cfg.Source.MaxAttempts,
		BaseBackoff:    cfg.Source.BaseBackoff,
		RequestTimeout: cfg.Source.RequestTimeout,
		Comments: ports.CommentLimits{
			MaxTop:               cfg.Source.Comments.MaxTop,
			MaxRepliesPerComment: cfg.Source.Comments.MaxRepliesPerComment,
			MaxDepth:             cfg.Source.Comments.MaxDepth,
		},
	}, fetchOpts...)

	enricher, err := enrichmentClient(cfg.Enrichment)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	gate := escalation.NewGate(
		enricher,
		cache.NewEnrichmentCache(cfg.Enrichment.Cache.Size, cfg.Enrichment.Cache.TTL),
		escalation.Config{
			EligibilityThreshold: cfg.Enrichment.EligibilityThreshold,
			Concurrency:          cfg.Enrichment.Concurrency,
			CallTimeout:          cfg.Enrichment.CallTimeout,
		},
		baseLogger.With("component", "escalation"),
	)

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.BotToken != "" && cfg.Notifications.Telegram.ChatID != "" {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID).
			WithAPIBase(cfg.Notifications.Telegram.APIBase)
	}

	var (
		discoverer     ports.PartitionDiscoverer
		discoveryLimit int
	)
	if cfg.Discovery.Enabled {
		discoverer = discovery.New(
			html,
			cache.NewDiscoveryCache(cfg.Discovery.CacheSize, cfg.Discovery.CacheTTL),
			limiter,
			discovery.Config{
				MaxKeywords:    cfg.Discovery.MaxKeywords,
				MinSubscribers: cfg.Discovery.MinSubscribers,
			},
			baseLogger.With("component", "discovery"),
		)
		discoveryLimit = cfg.Discovery.MaxPartitions
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Profiles:   profiles,
		Fetcher:    harvester,
		Exclusions: store,
		Gate:       gate,
		Repository: store,
		Notifier:   notifier,
		Discoverer: discoverer,
		Config: usecase.PipelineConfig{
			Concurrency:          cfg.Pipeline.Concurrency,
			MaxItemsPerPartition: cfg.Pipeline.MaxItemsPerPartition,
			EnrichmentBudget:     cfg.Enrichment.Budget,
			DigestSize:           cfg.Pipeline.DigestSize,
			DiscoveryLimit:       discoveryLimit,
			MarkQualified:        true,
		},
		Logger: baseLogger.With("component", "pipeline"),
	})

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		profiles: profiles,
		store:    store,
		pipeline: pipeline,
	}, nil
}

func enrichmentClient(cfg config.EnrichmentConfig) (ports.EnrichmentClient, error) {
	switch cfg.Provider {
	case "", config.ProviderNone:
		return nil, nil
	case config.ProviderChatGPT:
		client := llm.NewChatGPTClient(cfg.ChatGPT)
		if !client.Configured() {
			return nil, fmt.Errorf("enrichment provider chatgpt needs endpoint, model and api key")
		}
		return client, nil
	case config.ProviderML:
		if cfg.ML.InferenceURL == "" {
			return nil, fmt.Errorf("enrichment provider ml needs inferenceUrl")
		}
		return ml.NewClient(cfg.ML.InferenceURL, cfg.ML.APIKey, cfg.ML.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown enrichment provider %q", cfg.Provider)
	}
}

// Store exposes the prospect store for operator commands.
func (a *Application) Store() *storage.SQLRepository {
	return a.store
}

// Profiles exposes the loaded profile catalog.
func (a *Application) Profiles() *profile.Catalog {
	return a.profiles
}

// Run performs a single qualification run bounded by the configured timeout.
func (a *Application) Run(ctx context.Context, serviceType string) (domain.RunResult, error) {
	if a.cfg.Pipeline.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Pipeline.RunTimeout)
		defer cancel()
	}
	return a.pipeline.Run(ctx, serviceType)
}

// Serve runs the pipeline on the configured interval and exposes metrics
// until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	serviceTypes := a.cfg.Scheduler.ServiceTypes
	for _, st := range serviceTypes {
		if _, err := a.profiles.Get(st); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("metrics listening", "addr", a.cfg.Metrics.Addr, "path", a.cfg.Metrics.Path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sched := usecase.NewScheduler(
		scheduler.NewIntervalScheduler(a.cfg.Scheduler.Interval),
		a.pipeline,
		serviceTypes,
		a.cfg.Pipeline.RunTimeout,
		a.logger.With("component", "scheduler"),
	)
	if err := sched.Start(ctx); err != nil {
		_ = server.Close()
		return fmt.Errorf("start scheduler: %w", err)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serverErr:
		if ok {
			runErr = fmt.Errorf("metrics server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler stop", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("metrics shutdown", "error", err)
	}
	return runErr
}

// Close releases the store.
func (a *Application) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
