// Package main provides the guardian CLI: the serve agent, one-shot
// analysis, the watch TUI, and the MCP server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"guardian-agent/src/autofix"
	"guardian-agent/src/classify"
	"guardian-agent/src/config"
	"guardian-agent/src/dedup"
	"guardian-agent/src/engine"
	"guardian-agent/src/execute"
	"guardian-agent/src/gitlab"
	"guardian-agent/src/infer"
	"guardian-agent/src/logger"
	"guardian-agent/src/normalize"
	"guardian-agent/src/policy"
	"guardian-agent/src/record"
)

var (
	appConfig *config.Config
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "guardian",
	Short: "Guardian - failure diagnosis and remediation for GitLab pipelines",
	Long: `Guardian ingests failed-pipeline events, pulls and normalizes job
logs, classifies the failure, and carries out one remediation per job:
a retry, a safe automatic fix, a suggestion comment, or nothing.

Backends are auto-selected from the environment: Redpanda when
REDPANDA_BROKERS is set, Postgres when DATABASE_URL is set, in-memory
otherwise.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		appConfig, err = config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// inferClient returns the remote classifier client, or nil when no endpoint
// is configured and the keyword heuristics should run instead.
func inferClient(cfg *config.Config) infer.Client {
	if cfg.InferEndpoint == "" {
		return nil
	}
	return infer.NewHTTPClient(cfg.InferEndpoint, cfg.InferAPIKey, cfg.InferModel, cfg.InferTimeout)
}

// newRecorder selects the ledger backend from the environment.
func newRecorder(cfg *config.Config) (record.Recorder, error) {
	if cfg.DatabaseURL != "" {
		return record.NewPostgresRecorder(cfg.DatabaseURL)
	}
	return record.NewMemoryRecorder(), nil
}

// buildEngine wires a full engine around the given recorder.
func buildEngine(cfg *config.Config, recorder record.Recorder, log logger.Logger) *engine.Engine {
	client := gitlab.NewClient(cfg.GitLabBaseURL, cfg.GitLabToken)
	ic := inferClient(cfg)

	return engine.New(
		dedup.NewMemoryStore(),
		normalize.New(client, cfg),
		classify.New(ic, cfg.SuggestThreshold, cfg.InferTimeout, log),
		policy.New(cfg.MaxRetries, cfg.AutofixThreshold, cfg.SuggestThreshold),
		autofix.NewPlanner(ic, client),
		execute.NewExecutor(client, log),
		recorder,
		log,
		cfg,
	)
}
