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

	"github.com/lysyi3m/rss-bouncer/app/api"
	"github.com/lysyi3m/rss-bouncer/app/cfg"
	"github.com/lysyi3m/rss-bouncer/app/classifier"
	"github.com/lysyi3m/rss-bouncer/app/config"
	"github.com/lysyi3m/rss-bouncer/app/feed"
	"github.com/lysyi3m/rss-bouncer/app/raindrop"
	"github.com/lysyi3m/rss-bouncer/app/state"
	"github.com/lysyi3m/rss-bouncer/app/tasks"
)

func main() {
	appCfg, err := cfg.Load(os.Args[1:])
	if err != nil {
		slog.Error("Failed to load settings", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	slog.SetDefault(cfg.NewLogger(os.Stdout, appCfg.LogLevel, appCfg.Debug))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting RSS Bouncer", "version", appCfg.Version, "command", appCfg.Command, "state_backend", appCfg.StateBackend)

	switch appCfg.Command {
	case cfg.CommandServe:
		err = serve(ctx, appCfg)
	case cfg.CommandMigrateState:
		err = migrateState(ctx, appCfg)
	default:
		err = runOnce(ctx, appCfg)
	}

	if err != nil {
		slog.Error("RSS Bouncer stopped", "command", appCfg.Command, "error", err)
		stop()
		os.Exit(1)
	}
}

type app struct {
	config  *config.Config
	store   state.Store
	sweeper *tasks.Sweeper
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("Failed to release resource", "error", err)
		}
	}
}

// newApp loads the pipeline configuration and wires the sweep pipeline.
// Any error here is a configuration failure and aborts before a feed is read.
func newApp(ctx context.Context, appCfg *cfg.Cfg) (*app, error) {
	pipelineCfg, err := config.Load(appCfg.ConfigPath, appCfg.Secrets())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Configuration loaded", "path", appCfg.ConfigPath, "feeds", len(pipelineCfg.Feeds),
		"policy", pipelineCfg.Filters.Policy, "llm", pipelineCfg.LLMEnabled(), "save_skipped", pipelineCfg.SaveSkipped())

	a := &app{config: pipelineCfg}

	httpClient := &http.Client{}
	fetcher := feed.NewFetcher(httpClient, appCfg.UserAgent, pipelineCfg.FetchTimeout())

	policy, closePolicy, err := classifier.New(ctx, pipelineCfg, feed.NewContentExtractor(fetcher))
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}
	a.closers = append(a.closers, closePolicy)

	store, err := state.Open(ctx, appCfg.StateOptions(appCfg.StateBackend))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	filer := raindrop.NewClient(httpClient, pipelineCfg.Raindrop.BaseURL, pipelineCfg.Raindrop.Token, pipelineCfg.FetchTimeout())

	a.sweeper = tasks.NewSweeper(pipelineCfg.Feeds, &tasks.Pipeline{
		Fetcher:     fetcher,
		Parser:      feed.NewParser(),
		Policy:      policy,
		Filer:       filer,
		Store:       store,
		Collections: pipelineCfg.Raindrop.Collections,
		BatchSize:   pipelineCfg.Processing.BatchSize,
		SaveSkipped: pipelineCfg.SaveSkipped(),
	})

	return a, nil
}

func runOnce(ctx context.Context, appCfg *cfg.Cfg) error {
	a, err := newApp(ctx, appCfg)
	if err != nil {
		return err
	}
	defer a.Close()

	result := a.sweeper.Run(ctx)
	if result.Cancelled {
		slog.Info("Sweep stopped early on signal", "filed", result.Filed)
	}
	return nil
}

func serve(ctx context.Context, appCfg *cfg.Cfg) error {
	a, err := newApp(ctx, appCfg)
	if err != nil {
		return err
	}
	defer a.Close()

	slog.Info("Starting background scheduler", "interval", appCfg.Interval)
	scheduler := tasks.NewScheduler(a.sweeper, appCfg.Interval)
	scheduler.Start()
	defer func() {
		scheduler.Stop()
		slog.Info("Background scheduler stopped")
	}()

	handler := api.NewHandler(a.config.Feeds, a.store, a.sweeper, scheduler, appCfg.Version)
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, appCfg.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err = <-serverErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		slog.Warn("HTTP server shutdown error", "error", shutdownErr)
	} else {
		slog.Info("HTTP server stopped")
	}

	return err
}

func migrateState(ctx context.Context, appCfg *cfg.Cfg) error {
	from, err := state.Open(ctx, appCfg.StateOptions(appCfg.StateBackend))
	if err != nil {
		return fmt.Errorf("failed to open source store: %w", err)
	}
	defer from.Close()

	to, err := state.Open(ctx, appCfg.StateOptions(appCfg.MigrateTo))
	if err != nil {
		return fmt.Errorf("failed to open target store: %w", err)
	}
	defer to.Close()

	copied, err := state.Copy(ctx, from, to)
	if err != nil {
		return err
	}

	slog.Info("Feed states migrated", "from", appCfg.StateBackend, "to", appCfg.MigrateTo, "count", copied)
	return nil
}
