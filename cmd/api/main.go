package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"busview.transitireland.org/internal/app"
	"busview.transitireland.org/internal/config"
	"busview.transitireland.org/internal/feed"
	"busview.transitireland.org/internal/logging"
	"busview.transitireland.org/internal/metrics"
	"busview.transitireland.org/internal/transit"
	"busview.transitireland.org/transitdb"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	store, err := transitdb.NewClient(transitdb.NewConfig(cfg.DBPath, cfg.Env, true), logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer logging.SafeCloseWithLogging(store, logger, "database")

	var collector *metrics.Collector
	if cfg.MetricsAddr != "" {
		collector = metrics.NewCollector()
		collector.Serve(cfg.MetricsAddr, logger)
	}

	httpClient := &http.Client{Timeout: cfg.FetchTimeout}
	fetcher := feed.NewHTTPReferenceFetcher(cfg.StaticFeedURL, httpClient, cfg.LowMemory, logger)
	live := feed.NewLiveFeedClient(cfg.LiveFeedURL, cfg.LiveFeedKey, httpClient, logger)

	manager := transit.NewManager(store, fetcher, logger, collector)
	poller := transit.NewPoller(manager, live, transit.PollerConfig{
		Interval:   cfg.PollInterval,
		RetryDelay: cfg.RetryDelay,
		MaxRetries: cfg.MaxRetries,
		Location:   cfg.Location,
	}, logger, collector)

	application := &app.Application{
		Config:  cfg,
		Logger:  logger,
		Manager: manager,
		Poller:  poller,
	}

	// The initial load runs off the serving path: the server comes up
	// straight away and answers "not ready" until the first reference load
	// and snapshot commit.
	go func() {
		if _, err := manager.RefreshReference(logging.WithLogger(context.Background(), logger)); err != nil {
			logger.Error("initial reference load failed", "error", err)
		}
		poller.Start()
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      newAPI(application).routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-shutdown
		logger.Info("shutting down")
		poller.Shutdown()
		_ = srv.Close()
	}()

	logger.Info("starting server", "addr", srv.Addr, "env", cfg.Env.String())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error(err.Error())
		os.Exit(1)
	}
}
