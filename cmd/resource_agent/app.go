package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonathan/study-resources/internal/cache"
	"github.com/jonathan/study-resources/internal/config"
	"github.com/jonathan/study-resources/internal/db"
	"github.com/jonathan/study-resources/internal/fetch"
	"github.com/jonathan/study-resources/internal/llm"
	"github.com/jonathan/study-resources/internal/logger"
	"github.com/jonathan/study-resources/internal/pipeline"
	"github.com/jonathan/study-resources/internal/ratelimit"
	"github.com/jonathan/study-resources/internal/search"
	"github.com/jonathan/study-resources/internal/validation"
)

// app holds the process-wide collaborators shared by the commands.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	store     db.Store
	gate      *validation.Gate
	cache     *cache.Cache
	scheduler *llm.Scheduler
	closers   []func() error
}

// loadConfig reads the config file and environment, fills defaults and validates.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	merged := cfg.MergeWithDefaults(config.DefaultConfig())
	if verbose {
		merged.Verbose = true
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

// newLogger builds the process logger. Debug output needs --verbose.
func newLogger(cfg *config.Config) (*logger.Logger, error) {
	mode := cfg.LogMode
	if !cfg.Verbose && mode == "dev" {
		mode = "prod"
	}
	return logger.New(mode)
}

// newApp connects the store, the search providers and, when withGeneration is
// set, the generative client behind one rate-limited scheduler.
func newApp(ctx context.Context, cfg *config.Config, withGeneration bool) (*app, error) {
	log, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	a := &app{cfg: cfg, log: log}
	a.closers = append(a.closers, func() error { log.Sync(); return nil })

	if err := a.connect(ctx, withGeneration); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) connect(ctx context.Context, withGeneration bool) error {
	cfg := a.cfg

	store, err := db.Open(ctx, cfg.Store())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	a.gate = validation.NewGate(cfg.Gate(), fetch.NewProber(fetch.DefaultOptions()), a.log)

	var locker cache.Locker = cache.NewLocalLocker()
	if cfg.RedisAddr != "" {
		rdb, err := cache.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, rdb.Close)
		locker = cache.NewRedisLocker(rdb, 0)
	}

	var providers []cache.Provider
	if cfg.YouTubeAPIKey != "" {
		yt, err := search.NewYouTube(ctx, cfg.YouTubeAPIKey)
		if err != nil {
			return fmt.Errorf("failed to create video search: %w", err)
		}
		providers = append(providers, yt)
	}
	if cfg.SearchAPIKey != "" && cfg.SearchEngineID != "" {
		web, err := search.NewWeb(ctx, cfg.SearchAPIKey, cfg.SearchEngineID, search.DefaultWebMaxPages)
		if err != nil {
			return fmt.Errorf("failed to create web search: %w", err)
		}
		providers = append(providers, web)
	}
	if err := cfg.RequireSearch(); err != nil {
		a.log.Warn("search partially configured, some resource kinds will not refill", "error", err)
	}

	if withGeneration {
		if err := cfg.RequireGeneration(); err != nil {
			return err
		}
		creds := cfg.Credentials()
		client, err := llm.NewScopedClient(ctx, cfg.LLM(), cfg.APIKey, creds)
		if err != nil {
			return fmt.Errorf("failed to create generative client: %w", err)
		}
		a.closers = append(a.closers, client.Close)

		window := ratelimit.NewWindow(cfg.RateLimit(), ratelimit.SystemClock{})
		a.scheduler = llm.NewScheduler(client, window, llm.SchedulerOptions{
			Credentials: creds,
			Logger:      a.log,
		})
		providers = append(providers, pipeline.NewExerciseProvider(a.scheduler, llm.TierLite, a.log))
	}

	a.cache = cache.New(a.store, a.gate, locker, cfg.Cache(), a.log, providers...)
	return nil
}

// Close releases everything in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
