package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"guardian-agent/src/contracts"
	"guardian-agent/src/gitlab"
	"guardian-agent/src/logger"
	"guardian-agent/src/record"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <project_id> <pipeline_id>",
	Short: "Diagnose and remediate one pipeline now",
	Long: `Build an event from the pipeline's failed jobs and run it through
the engine in-process, printing the outcome chain as JSON. Remediation
side effects (retries, fixes, comments) are real; only the broker and
ledger are in-memory.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		projectID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid project_id %q\n", args[0])
			os.Exit(1)
		}
		pipelineID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid pipeline_id %q\n", args[1])
			os.Exit(1)
		}

		if err := runAnalyze(projectID, pipelineID); err != nil {
			fmt.Fprintf(os.Stderr, "Analysis failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func runAnalyze(projectID, pipelineID int64) error {
	log := &logger.ConsoleLogger{Verbose: verbose}
	ctx := context.Background()

	client := gitlab.NewClient(appConfig.GitLabBaseURL, appConfig.GitLabToken)
	event, err := eventFromPipeline(ctx, client, projectID, pipelineID)
	if err != nil {
		return err
	}

	recorder := record.NewMemoryRecorder()
	eng := buildEngine(appConfig, recorder, log)

	records, err := eng.Process(ctx, event)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding outcome chain: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// eventFromPipeline reconstructs a pipeline event from the platform's
// failed-job listing, for runs that did not arrive via webhook.
func eventFromPipeline(ctx context.Context, client *gitlab.Client, projectID, pipelineID int64) (contracts.PipelineEvent, error) {
	pipeline, err := client.GetPipeline(ctx, projectID, pipelineID)
	if err != nil {
		return contracts.PipelineEvent{}, fmt.Errorf("fetching pipeline: %w", err)
	}

	jobs, err := client.GetPipelineJobs(ctx, projectID, pipelineID)
	if err != nil {
		return contracts.PipelineEvent{}, fmt.Errorf("listing jobs: %w", err)
	}

	var failed []contracts.FailedJob
	for _, job := range jobs {
		if job.Status == "failed" {
			failed = append(failed, contracts.FailedJob{JobID: job.ID, Name: job.Name, Stage: job.Stage})
		}
	}
	if len(failed) == 0 {
		return contracts.PipelineEvent{}, fmt.Errorf("pipeline %d has no failed jobs", pipelineID)
	}

	return contracts.PipelineEvent{
		PipelineID: pipelineID,
		ProjectID:  projectID,
		CommitRef:  pipeline.SHA,
		Branch:     pipeline.Ref,
		FailedJobs: failed,
		ReceivedAt: time.Now().UTC(),
	}, nil
}
