package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"reposcope/internal/analysis"
	"reposcope/internal/api"
	"reposcope/internal/config"
	"reposcope/internal/github"
	"reposcope/internal/llm"
	"reposcope/internal/storage"
)

// app holds the wired collaborators shared by serve and analyze.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   storage.Store
	service *analysis.Service
	readme  llm.Generator
	metrics *api.MetricsCollector
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	metrics := api.NewMetricsCollector()

	gh, err := github.NewClient(github.Options{
		Token:             cfg.GitHub.Token,
		BaseURL:           cfg.GitHub.BaseURL,
		RequestsPerSecond: cfg.GitHub.RequestsPerSecond,
		Burst:             cfg.GitHub.Burst,
		Transport:         metrics.InstrumentTransport(nil),
	}, logger)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, storage.Options{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		DatabaseURL: cfg.Storage.DatabaseURL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}

	// Both generators stay nil without an API key so the pipeline falls
	// back to static analysis.
	var gen, readme llm.Generator
	if cfg.LLM.APIKey != "" {
		opts := llm.DefaultOptions()
		opts.APIKey = cfg.LLM.APIKey
		opts.Model = cfg.LLM.Model
		opts.Temperature = cfg.LLM.Temperature
		opts.MaxOutputTokens = cfg.LLM.MaxOutputTokens
		opts.MaxRetries = cfg.LLM.MaxRetries
		opts.Timeout = time.Duration(cfg.LLM.TimeoutSec) * time.Second

		client, err := llm.NewGeminiClient(ctx, opts, logger)
		if err != nil {
			store.Close()
			return nil, err
		}
		gen = client

		opts.JSON = false
		readmeClient, err := llm.NewGeminiClient(ctx, opts, logger)
		if err != nil {
			store.Close()
			return nil, err
		}
		readme = readmeClient
	} else {
		logger.Warn("GEMINI_API_KEY not set, analyses will use static fallback only")
	}

	svc := analysis.NewService(gh, gen, store, metrics, analysis.Config{
		Fetch: github.FetchOptions{
			MaxFiles:     cfg.GitHub.MaxFiles,
			MaxFileBytes: cfg.GitHub.MaxFileBytes,
			MaxFileChars: cfg.GitHub.MaxFileChars,
			BatchSize:    cfg.GitHub.BatchSize,
		},
		MaxTreeEntries: cfg.Analysis.MaxTreeEntries,
		Timeout:        time.Duration(cfg.Analysis.TimeoutSec) * time.Second,
	}, logger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		service: svc,
		readme:  readme,
		metrics: metrics,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
