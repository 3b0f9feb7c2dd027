package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"guardian-agent/src/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the outcome ledger in a TUI",
	Long: `Open a live terminal view of recorded remediation outcomes.
Requires DATABASE_URL: the watch view reads the shared ledger written by
a running serve agent.`,
	Run: func(cmd *cobra.Command, args []string) {
		if appConfig.DatabaseURL == "" {
			fmt.Fprintln(os.Stderr, "watch needs DATABASE_URL: an in-memory ledger in this process would always be empty")
			os.Exit(1)
		}

		recorder, err := newRecorder(appConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open recorder: %v\n", err)
			os.Exit(1)
		}
		defer recorder.Close()

		if err := tui.Run(recorder); err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
			os.Exit(1)
		}
	},
}
