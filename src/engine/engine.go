// Package engine orchestrates the diagnosis pipeline: lease admission, log
// normalization, classification, policy, execution, and outcome recording.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"guardian-agent/src/autofix"
	"guardian-agent/src/classify"
	"guardian-agent/src/config"
	"guardian-agent/src/contracts"
	"guardian-agent/src/dedup"
	"guardian-agent/src/execute"
	"guardian-agent/src/logger"
	"guardian-agent/src/normalize"
	"guardian-agent/src/policy"
	"guardian-agent/src/record"
)

// fetchConcurrency bounds parallel trace downloads per event.
const fetchConcurrency = 3

// Engine processes one pipeline event end to end.
type Engine struct {
	leases     dedup.Store
	normalizer *normalize.Normalizer
	classifier *classify.Classifier
	policy     *policy.Policy
	planner    *autofix.Planner
	executor   *execute.Executor
	recorder   record.Recorder
	log        logger.Logger
	cfg        *config.Config
}

// New assembles an Engine from its collaborators.
func New(leases dedup.Store, normalizer *normalize.Normalizer, classifier *classify.Classifier,
	pol *policy.Policy, planner *autofix.Planner, executor *execute.Executor,
	recorder record.Recorder, log logger.Logger, cfg *config.Config) *Engine {
	return &Engine{
		leases:     leases,
		normalizer: normalizer,
		classifier: classifier,
		policy:     pol,
		planner:    planner,
		executor:   executor,
		recorder:   recorder,
		log:        log,
		cfg:        cfg,
	}
}

// Process diagnoses and remediates one failed-pipeline event. A duplicate
// event already in flight is dropped silently: the holder will record the
// outcome. The returned records are what was appended to the ledger.
func (e *Engine) Process(ctx context.Context, event contracts.PipelineEvent) ([]contracts.OutcomeRecord, error) {
	if len(event.FailedJobs) == 0 {
		return nil, nil
	}

	keys := make([]dedup.Key, len(event.FailedJobs))
	for i, job := range event.FailedJobs {
		keys[i] = dedup.Key{PipelineID: event.PipelineID, JobID: job.JobID}
	}

	leases, err := dedup.AcquireAll(e.leases, keys, e.cfg.LeaseTTL)
	if errors.Is(err, dedup.ErrDuplicateInFlight) {
		e.log.Debug("pipeline %d already in flight, dropping event", event.PipelineID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("admitting event: %w", err)
	}
	defer dedup.ReleaseAll(e.leases, leases)

	ctx, cancel := context.WithTimeout(ctx, e.cfg.EventDeadline)
	defer cancel()

	excerpts := e.fetchExcerpts(ctx, event)
	diagnosis := e.classifier.Classify(ctx, event, excerpts)
	e.log.Info("pipeline %d diagnosed as %s (confidence %.2f)",
		event.PipelineID, diagnosis.Category, diagnosis.Confidence)

	records := make([]contracts.OutcomeRecord, 0, len(event.FailedJobs))
	for _, job := range event.FailedJobs {
		plan := e.planFor(ctx, event, job, diagnosis)

		var out contracts.RemediationOutcome
		if ctx.Err() != nil {
			out = contracts.RemediationOutcome{
				PlanKind:    plan.Kind,
				PipelineID:  event.PipelineID,
				TargetJobID: job.JobID,
				Status:      contracts.OutcomeFailed,
				Detail:      "event deadline exceeded before execution",
				CompletedAt: time.Now().UTC(),
			}
		} else {
			out = e.executor.Execute(ctx, event, diagnosis, plan)
		}

		rec := contracts.OutcomeRecord{
			Key:       contracts.RecordKey(event.PipelineID, job.JobID, plan.Kind),
			Event:     event,
			Diagnosis: diagnosis,
			Plan:      plan,
			Outcome:   out,
		}
		// Ledger trouble must not stop remediation of the remaining jobs.
		if err := e.recorder.Append(context.WithoutCancel(ctx), rec); err != nil {
			e.log.Error("recording outcome for job %d: %v", job.JobID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// fetchExcerpts pulls and segments the logs of all failed jobs. A job whose
// log cannot be fetched contributes no evidence; the event still proceeds.
func (e *Engine) fetchExcerpts(ctx context.Context, event contracts.PipelineEvent) []contracts.LogExcerpt {
	results := make([][]contracts.LogExcerpt, len(event.FailedJobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, job := range event.FailedJobs {
		i, job := i, job
		g.Go(func() error {
			excerpts, err := e.normalizer.Fetch(gctx, event.ProjectID, job)
			if err != nil {
				e.log.Error("fetching log for job %d: %v", job.JobID, err)
				return nil
			}
			results[i] = excerpts
			return nil
		})
	}
	g.Wait()

	var all []contracts.LogExcerpt
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

// planFor turns the shared diagnosis into one job's plan. An autofix verdict
// without a derivable patch downgrades to a suggestion here, before any side
// effect.
func (e *Engine) planFor(ctx context.Context, event contracts.PipelineEvent, job contracts.FailedJob, d contracts.Diagnosis) contracts.RemediationPlan {
	plan := e.policy.Decide(d, policy.JobContext{
		JobID:           job.JobID,
		RetryCount:      job.RetryCount,
		BranchProtected: event.BranchProtected,
		Branch:          event.Branch,
		MergeRequestIID: event.MergeRequestIID,
	})

	if plan.Kind == contracts.PlanAutoFix {
		patch, ok := e.planner.BuildPatch(ctx, event, d)
		if !ok {
			plan.Kind = contracts.PlanSuggestOnly
			plan.Patch = nil
			plan.Rationale = "no safe patch derivable, downgraded to suggestion"
		} else {
			plan.Patch = patch
		}
	}
	return plan
}
