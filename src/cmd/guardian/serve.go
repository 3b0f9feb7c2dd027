package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"guardian-agent/src/broker"
	"guardian-agent/src/engine"
	"guardian-agent/src/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the remediation agent",
	Long: `Consume pipeline events from the broker and remediate them until
interrupted. Uses Redpanda when REDPANDA_BROKERS is set, the in-memory
broker otherwise; the outcome ledger goes to Postgres when DATABASE_URL
is set.`,
	Run: func(cmd *cobra.Command, args []string) {
		log := &logger.ConsoleLogger{Verbose: verbose}

		recorder, err := newRecorder(appConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open recorder: %v\n", err)
			os.Exit(1)
		}
		defer recorder.Close()

		var bus broker.Broker
		if len(appConfig.RedpandaBrokers) > 0 {
			bus, err = broker.NewRedpandaBroker(appConfig.RedpandaBrokers, log)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to connect to broker: %v\n", err)
				os.Exit(1)
			}
			log.Info("using redpanda brokers %v", appConfig.RedpandaBrokers)
		} else {
			bus = broker.NewInMemoryBroker()
			log.Info("using in-memory broker")
		}
		defer bus.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		agent := engine.NewAgent(buildEngine(appConfig, recorder, log), bus, log, appConfig.Workers)
		if err := agent.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Agent stopped: %v\n", err)
			os.Exit(1)
		}
	},
}
