// Package execute carries out remediation plans against the CI platform:
// job retries, autofix commits, and suggestion comments. The executor owns
// side effects only; lease lifecycle belongs to the engine.
package execute

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"guardian-agent/src/autofix"
	"guardian-agent/src/contracts"
	"guardian-agent/src/gitlab"
	"guardian-agent/src/junit"
	"guardian-agent/src/logger"
)

// Platform is the slice of the CI platform API the executor drives.
// *gitlab.Client satisfies it.
type Platform interface {
	RetryJob(ctx context.Context, projectID, jobID int64) error
	CreateCommit(ctx context.Context, projectID int64, branch, message string, actions []gitlab.CommitAction) (*gitlab.Commit, error)
	GetFile(ctx context.Context, projectID int64, path, ref string) (string, error)
	GetJobArtifact(ctx context.Context, projectID, jobID int64, path string) ([]byte, error)
	CreateMergeRequestNote(ctx context.Context, projectID, mrIID int64, body string) error
	CreateCommitComment(ctx context.Context, projectID int64, sha, note string) error
}

// junitArtifactPaths are conventional report locations tried in order when
// enriching a test-failure suggestion. Misses are silently skipped.
var junitArtifactPaths = []string{"report.xml", "junit.xml", "test-results.xml"}

const maxFailingTestLines = 10

// Executor dispatches one remediation plan per call. It never panics and
// always returns an outcome, even when the platform refuses every call.
type Executor struct {
	platform Platform
	log      logger.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(platform Platform, log logger.Logger) *Executor {
	return &Executor{platform: platform, log: log}
}

// Execute carries out the plan and reports how it went.
func (e *Executor) Execute(ctx context.Context, event contracts.PipelineEvent, d contracts.Diagnosis, plan contracts.RemediationPlan) contracts.RemediationOutcome {
	switch plan.Kind {
	case contracts.PlanRetry:
		return e.retry(ctx, event, plan)
	case contracts.PlanAutoFix:
		return e.autofix(ctx, event, d, plan)
	case contracts.PlanSuggestOnly:
		return e.suggest(ctx, event, d, plan)
	default:
		return outcome(event, plan, contracts.OutcomeSucceeded, "no action taken")
	}
}

func (e *Executor) retry(ctx context.Context, event contracts.PipelineEvent, plan contracts.RemediationPlan) contracts.RemediationOutcome {
	if err := e.platform.RetryJob(ctx, event.ProjectID, plan.TargetJobID); err != nil {
		e.log.Error("retry submit failed for job %d: %v", plan.TargetJobID, err)
		return outcome(event, plan, contracts.OutcomeFailed, fmt.Sprintf("retry submit failed: %v", err))
	}
	return outcome(event, plan, contracts.OutcomeSucceeded, "retry submitted")
}

func (e *Executor) autofix(ctx context.Context, event contracts.PipelineEvent, d contracts.Diagnosis, plan contracts.RemediationPlan) contracts.RemediationOutcome {
	if !autofix.SafePaths(plan.Patch) {
		// The allow-list check is re-run here so a patch assembled by any
		// upstream path is still gated right before the commit.
		e.log.Info("patch for job %d rejected by allow-list, downgrading to suggestion", plan.TargetJobID)
		if err := e.postComment(ctx, event, e.buildComment(ctx, event, d, plan)); err != nil {
			return outcome(event, plan, contracts.OutcomeFailed,
				fmt.Sprintf("unsafe patch downgraded, suggestion post failed: %v", err))
		}
		return outcome(event, plan, contracts.OutcomePartiallySucceeded,
			"patch outside safe allow-list, posted suggestion instead")
	}

	actions, err := e.commitActions(ctx, event, plan.Patch)
	if err != nil {
		return outcome(event, plan, contracts.OutcomeFailed, fmt.Sprintf("preparing commit: %v", err))
	}

	commit, err := e.platform.CreateCommit(ctx, event.ProjectID, plan.Patch.Branch, plan.Patch.CommitMessage, actions)
	if err != nil {
		e.log.Error("autofix commit rejected for job %d: %v", plan.TargetJobID, err)
		return outcome(event, plan, contracts.OutcomeFailed, fmt.Sprintf("commit rejected: %v", err))
	}

	note := fmt.Sprintf("Pushed automatic fix %s: %s", commit.ShortID, plan.Patch.CommitMessage)
	if commit.WebURL != "" {
		note = fmt.Sprintf("Pushed automatic fix [%s](%s): %s", commit.ShortID, commit.WebURL, plan.Patch.CommitMessage)
	}
	if err := e.postComment(ctx, event, note); err != nil {
		// The fix landed; a missing announcement is not worth failing over.
		e.log.Error("fix note post failed: %v", err)
		return outcome(event, plan, contracts.OutcomePartiallySucceeded,
			fmt.Sprintf("fix committed as %s, note post failed", commit.ShortID))
	}
	return outcome(event, plan, contracts.OutcomeSucceeded, fmt.Sprintf("fix committed as %s", commit.ShortID))
}

func (e *Executor) suggest(ctx context.Context, event contracts.PipelineEvent, d contracts.Diagnosis, plan contracts.RemediationPlan) contracts.RemediationOutcome {
	if err := e.postComment(ctx, event, e.buildComment(ctx, event, d, plan)); err != nil {
		e.log.Error("suggestion post failed for job %d: %v", plan.TargetJobID, err)
		return outcome(event, plan, contracts.OutcomeFailed, fmt.Sprintf("suggestion post failed: %v", err))
	}
	return outcome(event, plan, contracts.OutcomeSucceeded, "suggestion posted")
}

// commitActions turns patch files into commit API actions. Append mode reads
// the current file so the commit carries full content; a missing file turns
// the append into a create.
func (e *Executor) commitActions(ctx context.Context, event contracts.PipelineEvent, patch *contracts.Patch) ([]gitlab.CommitAction, error) {
	actions := make([]gitlab.CommitAction, 0, len(patch.Files))
	for _, f := range patch.Files {
		switch f.Mode {
		case "create":
			actions = append(actions, gitlab.CommitAction{Action: "create", FilePath: f.Path, Content: f.Content})
		case "update":
			actions = append(actions, gitlab.CommitAction{Action: "update", FilePath: f.Path, Content: f.Content})
		case "append":
			current, err := e.platform.GetFile(ctx, event.ProjectID, f.Path, event.CommitRef)
			if errors.Is(err, gitlab.ErrNotFound) {
				actions = append(actions, gitlab.CommitAction{Action: "create", FilePath: f.Path, Content: f.Content})
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("reading %s for append: %w", f.Path, err)
			}
			if current != "" && !strings.HasSuffix(current, "\n") {
				current += "\n"
			}
			actions = append(actions, gitlab.CommitAction{Action: "update", FilePath: f.Path, Content: current + f.Content})
		default:
			return nil, fmt.Errorf("unknown patch mode %q for %s", f.Mode, f.Path)
		}
	}
	return actions, nil
}

// buildComment renders the suggestion comment for a diagnosis.
func (e *Executor) buildComment(ctx context.Context, event contracts.PipelineEvent, d contracts.Diagnosis, plan contracts.RemediationPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Pipeline failure analysis\n\n")
	fmt.Fprintf(&b, "**Category:** %s (confidence %.2f)\n\n", d.Category, d.Confidence)
	if d.Summary != "" {
		b.WriteString(d.Summary)
		b.WriteString("\n")
	}
	if d.SuggestedFix != "" {
		fmt.Fprintf(&b, "\n**Suggested fix:** %s\n", d.SuggestedFix)
	}
	if d.Category == contracts.CategoryTestFailure {
		if lines := e.failingTests(ctx, event, plan.TargetJobID); len(lines) > 0 {
			b.WriteString("\n**Failing tests:**\n")
			b.WriteString(strings.Join(lines, "\n"))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// failingTests pulls failing test names from the job's JUnit artifact.
// Enrichment is best-effort: any miss or parse error yields nothing.
func (e *Executor) failingTests(ctx context.Context, event contracts.PipelineEvent, jobID int64) []string {
	for _, path := range junitArtifactPaths {
		data, err := e.platform.GetJobArtifact(ctx, event.ProjectID, jobID, path)
		if err != nil {
			continue
		}
		cases, err := junit.Parse(data)
		if err != nil {
			e.log.Debug("junit artifact %s unparseable for job %d: %v", path, jobID, err)
			continue
		}
		if lines := junit.Summarize(cases, maxFailingTestLines); len(lines) > 0 {
			return lines
		}
	}
	return nil
}

// postComment routes to the merge request when the pipeline has one,
// otherwise to the commit.
func (e *Executor) postComment(ctx context.Context, event contracts.PipelineEvent, body string) error {
	if event.MergeRequestIID > 0 {
		return e.platform.CreateMergeRequestNote(ctx, event.ProjectID, event.MergeRequestIID, body)
	}
	return e.platform.CreateCommitComment(ctx, event.ProjectID, event.CommitRef, body)
}

func outcome(event contracts.PipelineEvent, plan contracts.RemediationPlan, status contracts.OutcomeStatus, detail string) contracts.RemediationOutcome {
	return contracts.RemediationOutcome{
		PlanKind:    plan.Kind,
		PipelineID:  event.PipelineID,
		TargetJobID: plan.TargetJobID,
		Status:      status,
		Detail:      detail,
		CompletedAt: time.Now().UTC(),
	}
}
