package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"reposcope/internal/api"
	"reposcope/internal/auth"
	"reposcope/internal/streaming"
)

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP API server",
	Long: `Start the RepoScope HTTP API server. It serves analysis, progress streams,
exports, accounts and history for the web client.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default from config, 8080)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	logger, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	manager := auth.NewManager(a.store, auth.ManagerConfig{
		JWTSecret:  cfg.Auth.JWTSecret,
		TokenTTL:   time.Duration(cfg.Auth.TokenTTLHours) * time.Hour,
		BcryptCost: cfg.Auth.BcryptCost,
	}, logger)
	if cfg.Auth.UsersFile != "" {
		if _, err := manager.SeedUsers(ctx, cfg.Auth.UsersFile); err != nil {
			return err
		}
	}

	proxies, err := auth.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	limiter := auth.NewRateLimiter(auth.RateLimitConfig{
		Enabled:           cfg.Auth.RateLimit.Enabled,
		RequestsPerMinute: cfg.Auth.RateLimit.RequestsPerMinute,
		Burst:             cfg.Auth.RateLimit.Burst,
	}, logger)
	limiter.StartCleanup(ctx)

	server := api.NewServer(cfg.Addr(), api.Deps{
		Analyzer: a.service,
		Store:    a.store,
		Auth:     manager,
		Limiter:  limiter,
		Readme:   a.readme,
		Metrics:  a.metrics,
	}, api.ServerConfig{
		CORSOrigins:    cfg.Server.CORSOrigins,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		CookieSecure:   cfg.Auth.CookieSecure,
		TrustedProxies: proxies,
		Stream:         streaming.DefaultConfig(),
	}, logger)

	serverErr := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "RepoScope listening on http://%s\n", cfg.Addr())
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server error", "error", err.Error())
			return err
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during shutdown", "error", err.Error())
			return err
		}
	}

	return nil
}
