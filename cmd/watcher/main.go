package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rss-watcher/internal/cache"
	"rss-watcher/internal/config"
	"rss-watcher/internal/feed"
	"rss-watcher/internal/match"
	"rss-watcher/internal/state"
	"rss-watcher/internal/storage"
	"rss-watcher/internal/watcher"
	"rss-watcher/internal/webhook"
)

type options struct {
	Config string `short:"c" long:"config" env:"WATCHER_CONFIG" default:"config/watcher.yaml" description:"Path to the configuration file"`
	Once   bool   `long:"once" description:"Run a single pass and exit, ignoring the configured interval"`
	DryRun bool   `long:"dry-run" env:"DRY_RUN" description:"Log matches instead of posting them to webhooks"`
	Prime  bool   `long:"prime" env:"STATE_INIT_IF_EMPTY" description:"Mark everything seen without notifying when no state exists yet"`
	Debug  bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return 0
		}
		return 2
	}

	// Setup Logger
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Load Config
	cfg, err := config.Load(opts.Config)
	if err != nil {
		logger.Error("Failed to load config", "path", opts.Config, "error", err)
		return 1
	}

	// Init Store
	var (
		backend  storage.Backend
		seenKey  string
		cacheKey string
	)
	switch cfg.Store.Type {
	case "valkey":
		logger.Info("Using Valkey Store", "address", cfg.Store.Address)
		b, err := storage.NewValkeyBackend(cfg.Store.Address, cfg.Store.Password)
		if err != nil {
			logger.Error("Failed to initialize Valkey store", "error", err)
			return 1
		}
		backend, seenKey, cacheKey = b, "seen", "cache"
	case "memory":
		logger.Info("Using Memory Store")
		backend, seenKey, cacheKey = storage.NewMemoryBackend(), "seen", "cache"
	default:
		logger.Info("Using File Store", "seen_path", cfg.Store.SeenPath, "cache_path", cfg.Store.CachePath)
		backend, seenKey, cacheKey = storage.NewFileBackend(), cfg.Store.SeenPath, cfg.Store.CachePath
	}
	defer backend.Close()

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seen, err := state.Load(ctx, backend, seenKey)
	if err != nil {
		logger.Warn("Dedup state unreadable, starting empty", "error", err)
	}
	feedCache, err := cache.Load(ctx, backend, cacheKey)
	if err != nil {
		logger.Warn("Fetch cache unreadable, starting empty", "error", err)
	}
	logger.Info("Loaded state", "seen_feeds", seen.Feeds(), "cached_feeds", feedCache.Len(), "last_run", seen.LastRun())

	// Init Components
	rule := match.Compile(cfg.Keywords)
	fetcher := feed.NewFetcher(nil, feed.FetcherOptions{
		Concurrency:  cfg.Concurrency,
		Timeout:      cfg.RequestTimeout,
		UserAgent:    cfg.UserAgent,
		MaxBodyBytes: cfg.MaxBodyBytes,
	}, logger)

	var notifier watcher.Notifier = watcher.LogNotifier{Logger: logger}
	if !opts.DryRun && len(cfg.Webhooks) > 0 {
		notifier = webhook.NewNotifier(webhook.NewClient(cfg.UserAgent), cfg.Webhooks, logger)
	}

	w := watcher.New(watcher.Deps{
		Fetcher:      fetcher,
		Parser:       feed.NewGofeedParser(),
		Rule:         rule,
		Seen:         seen,
		Cache:        feedCache,
		Notifier:     notifier,
		SeenBackend:  backend,
		CacheBackend: backend,
		Logger:       logger,
	}, watcher.Options{
		MaxEntryAge: cfg.MaxEntryAge,
		Eviction: state.EvictionPolicy{
			MaxAge:            cfg.Store.Retention(),
			MaxEntriesPerFeed: cfg.Store.MaxEntriesPerFeed,
		},
		Prime:    opts.Prime || cfg.Store.PrimeIfEmpty,
		SeenKey:  seenKey,
		CacheKey: cacheKey,
	})

	// Metrics Server
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
		go func() {
			logger.Info("Starting metrics server", "address", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	logger.Info("Starting RSS Watcher",
		"feeds", len(cfg.Feeds),
		"rules", rule.Len(),
		"webhooks", len(cfg.Webhooks),
		"dry_run", opts.DryRun)

	if opts.Once || cfg.Interval == 0 {
		if _, err := w.Cycle(ctx, cfg.Feeds); err != nil {
			logger.Error("Run failed", "error", err)
			return 1
		}
		return 0
	}

	logger.Info("Polling", "interval", cfg.Interval)
	if err := w.Run(ctx, cfg.Feeds, cfg.Interval); err != nil {
		logger.Error("Watcher stopped", "error", err)
		return 1
	}
	logger.Info("Watcher stopped")
	return 0
}
