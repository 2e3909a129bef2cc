package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"reposcope/internal/config"
	"reposcope/internal/slogutil"
	"reposcope/internal/version"
)

var (
	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "reposcope",
	Short: "RepoScope - architecture reports for GitHub repositories",
	Long: `RepoScope fetches a public GitHub repository, asks Gemini to describe its
architecture, and serves the result as JSON, Markdown, Mermaid diagrams and
a diagram layout for the web client.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("RepoScope version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Config file (default: ./reposcope.{yaml,toml,json} or ~/.reposcope/)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// loadConfig reads the configuration and applies global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	return slogutil.New(slogutil.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
	})
}
