package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"guardian-agent/src/autofix"
	"guardian-agent/src/classify"
	"guardian-agent/src/gitlab"
	"guardian-agent/src/logger"
	"guardian-agent/src/mcp"
	"guardian-agent/src/normalize"
	"guardian-agent/src/policy"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server on stdio",
	Long: `Expose diagnose_pipeline and get_outcomes as MCP tools for editor
agents. All tools are read-only dry runs. Logging is silent because
stdout carries the protocol.`,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.NewSilentLogger()

		recorder, err := newRecorder(appConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open recorder: %v\n", err)
			os.Exit(1)
		}
		defer recorder.Close()

		client := gitlab.NewClient(appConfig.GitLabBaseURL, appConfig.GitLabToken)
		ic := inferClient(appConfig)

		server := mcp.NewServer(
			client,
			normalize.New(client, appConfig),
			classify.New(ic, appConfig.SuggestThreshold, appConfig.InferTimeout, log),
			policy.New(appConfig.MaxRetries, appConfig.AutofixThreshold, appConfig.SuggestThreshold),
			autofix.NewPlanner(ic, client),
			recorder,
		)
		if err := server.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
			os.Exit(1)
		}
	},
}
