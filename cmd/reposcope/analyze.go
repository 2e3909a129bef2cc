package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"reposcope/internal/analysis"
	"reposcope/internal/docs"
)

var (
	analyzeJSON     bool
	analyzeMarkdown bool
	analyzeMermaid  bool
	analyzeForce    bool
	analyzeQuiet    bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <github-url>",
	Short: "Analyze a repository and print the report",
	Long: `Analyze a public GitHub repository and print the result.

Examples:
  reposcope analyze https://github.com/owner/repo
  reposcope analyze owner/repo --json
  reposcope analyze owner/repo --mermaid --force`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the analysis as JSON")
	analyzeCmd.Flags().BoolVar(&analyzeMarkdown, "markdown", false, "Print a Markdown report (default)")
	analyzeCmd.Flags().BoolVar(&analyzeMermaid, "mermaid", false, "Print a Mermaid diagram")
	analyzeCmd.Flags().BoolVar(&analyzeForce, "force", false, "Ignore any cached analysis")
	analyzeCmd.Flags().BoolVarP(&analyzeQuiet, "quiet", "q", false, "Do not print progress")
	analyzeCmd.MarkFlagsMutuallyExclusive("json", "markdown", "mermaid")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var progress analysis.ProgressFunc
	if !analyzeQuiet {
		progress = func(p analysis.Progress) {
			fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", p.Percent, p.Message)
		}
	}

	result, err := a.service.Analyze(ctx, args[0], analysis.Options{Force: analyzeForce}, progress)
	if err != nil {
		return err
	}

	return writeAnalysis(cmd.OutOrStdout(), result, outputFormat())
}

func outputFormat() string {
	switch {
	case analyzeJSON:
		return "json"
	case analyzeMermaid:
		return "mermaid"
	default:
		return "markdown"
	}
}

// writeAnalysis renders a in the requested format.
func writeAnalysis(w io.Writer, a *analysis.Analysis, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	case "mermaid":
		_, err := io.WriteString(w, docs.Mermaid(a))
		return err
	case "markdown":
		_, err := io.WriteString(w, docs.Markdown(a))
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
