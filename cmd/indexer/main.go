package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"blogger-indexer/internal/config"
	"blogger-indexer/internal/feed"
	"blogger-indexer/internal/indexing"
	"blogger-indexer/internal/runner"
	"blogger-indexer/internal/state"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	daemon := flag.Bool("daemon", false, "Keep running and reindex on an interval instead of exiting after one run")
	force := flag.Bool("force", false, "Ignore the freshness window and resubmit everything eligible")
	remove := flag.String("remove", "", "Publish a URL_DELETED notification for this URL and exit")
	status := flag.String("status", "", "Print the indexing metadata for this URL and exit")
	flag.Parse()

	// Setup Logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Init Store
	var store state.Store
	switch cfg.Store.Type {
	case "valkey":
		logger.Info("Using Valkey Store", "address", cfg.Store.Address)
		s, err := state.NewValkeyStore(cfg.Store.Address, cfg.Store.Password)
		if err != nil {
			logger.Error("Failed to initialize Valkey store", "error", err)
			os.Exit(1)
		}
		store = s
	case "memory":
		logger.Info("Using Memory Store")
		store = state.NewMemoryStore()
	default:
		logger.Info("Using File Store", "path", cfg.Store.Path)
		s, err := state.NewFileStore(cfg.Store.Path)
		if err != nil {
			logger.Error("Failed to initialize file store", "error", err)
			os.Exit(1)
		}
		store = s
	}

	// Init API Client
	key, err := indexing.LoadKey(cfg.CredentialsFile)
	if err != nil {
		logger.Error("Failed to load service account key", "error", err)
		os.Exit(1)
	}
	client := indexing.NewClient(key, cfg.RequestsPerMin)

	r := runner.New(feed.NewFetcher(cfg.MaxResults), client, store, runner.Options{
		FeedURL:         cfg.FeedURL,
		DailyQuota:      cfg.DailyQuota,
		FreshnessWindow: cfg.FreshnessWindow.Std(),
		Force:           *force,
	})

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle Signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down...")
		cancel()
	}()

	switch {
	case *status != "":
		meta, err := client.Metadata(ctx, *status)
		if err != nil {
			logger.Error("Failed to fetch indexing metadata", "url", *status, "error", err)
			os.Exit(1)
		}
		fmt.Println(string(meta))

	case *remove != "":
		if err := r.Remove(ctx, *remove); err != nil {
			logger.Error("Removal failed", "url", *remove, "error", err)
			os.Exit(1)
		}

	case *daemon:
		// Metrics Server
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			logger.Info("Starting metrics server", "address", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()

		logger.Info("Starting indexer",
			"feed", cfg.FeedURL,
			"interval", cfg.Interval.Std(),
			"daily_quota", cfg.DailyQuota)
		r.Run(ctx, cfg.Interval.Std())
		logger.Info("Indexer stopped")

	default:
		if err := r.RunOnce(ctx); err != nil {
			logger.Error("Run failed", "error", err)
			os.Exit(1)
		}
	}
}
