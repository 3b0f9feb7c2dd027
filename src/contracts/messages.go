// Package contracts defines the message and domain types shared across the
// guardian engine: pipeline events, diagnoses, remediation plans, and outcomes.
package contracts

import (
	"fmt"
	"time"
)

// Category classifies why a job failed.
type Category string

const (
	CategoryTransient         Category = "transient"
	CategoryDependencyMissing Category = "dependency_missing"
	CategoryFormatViolation   Category = "format_violation"
	CategoryTestFailure       Category = "test_failure"
	CategoryConfigError       Category = "config_error"
	CategoryUnknown           Category = "unknown"
)

// ParseCategory maps free-form text to a known category.
// Anything unrecognized becomes CategoryUnknown rather than an error, because
// classification output is untrusted and must never block the recovery path.
func ParseCategory(s string) Category {
	switch Category(s) {
	case CategoryTransient, CategoryDependencyMissing, CategoryFormatViolation,
		CategoryTestFailure, CategoryConfigError, CategoryUnknown:
		return Category(s)
	}
	return CategoryUnknown
}

// Action is the remediation action a diagnosis suggests. It mirrors PlanKind.
type Action string

const (
	ActionRetry       Action = "retry"
	ActionAutoFix     Action = "autofix"
	ActionSuggestOnly Action = "suggest_only"
	ActionNoAction    Action = "no_action"
)

// ParseAction maps free-form text to a known action, defaulting to no_action.
func ParseAction(s string) Action {
	switch Action(s) {
	case ActionRetry, ActionAutoFix, ActionSuggestOnly, ActionNoAction:
		return Action(s)
	}
	return ActionNoAction
}

// FailedJob identifies one failed job within a pipeline.
type FailedJob struct {
	// Unique job identifier on the CI platform.
	JobID int64 `json:"job_id"`
	// Human-readable job name (e.g. "unit-tests").
	Name string `json:"name"`
	// Pipeline stage the job belongs to.
	Stage string `json:"stage"`
	// Number of retries already performed for this job on the platform.
	RetryCount int `json:"retry_count"`
}

// PipelineEvent describes a completed, failed pipeline run as delivered by
// the webhook collaborator. Immutable once admitted by the engine.
type PipelineEvent struct {
	PipelineID int64 `json:"pipeline_id"`
	ProjectID  int64 `json:"project_id"`
	// Commit the pipeline ran against.
	CommitRef string `json:"commit_ref"`
	// Branch name for the run.
	Branch string `json:"branch"`
	// Whether the branch is protected on the platform. Protected branches
	// never receive automatic fixes.
	BranchProtected bool `json:"branch_protected"`
	// Merge request IID the pipeline belongs to, 0 when none.
	MergeRequestIID int64 `json:"merge_request_iid,omitempty"`
	// Failed jobs in pipeline order. Lease acquisition follows this order.
	FailedJobs []FailedJob `json:"failed_jobs"`
	ReceivedAt time.Time   `json:"received_at"`
}

// LogExcerpt is a bounded slice of a job log centered on an error signal.
type LogExcerpt struct {
	JobID int64 `json:"job_id"`
	// Sanitized log text, bounded by the normalizer's tail window.
	Text string `json:"text"`
	// Line number of the first line of Text within the truncated window.
	LineStart   int       `json:"line_start"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// Diagnosis is the structured classification of a pipeline failure.
// Immutable once produced.
type Diagnosis struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	// Human-readable explanation of the failure.
	Summary         string `json:"summary"`
	SuggestedAction Action `json:"suggested_action"`
	// Jobs whose excerpts supported this diagnosis. Always a subset of the
	// originating event's failed jobs.
	EvidenceJobIDs []int64 `json:"evidence_job_ids"`
	// Extracted details such as missing_module, error_file, error_line.
	Details map[string]string `json:"details,omitempty"`
	// Suggested manual fix, shown in comments.
	SuggestedFix string `json:"suggested_fix,omitempty"`
}

// PlanKind is the closed set of remediation strategies.
type PlanKind string

const (
	PlanRetry       PlanKind = "retry"
	PlanAutoFix     PlanKind = "autofix"
	PlanSuggestOnly PlanKind = "suggest_only"
	PlanNoAction    PlanKind = "no_action"
)

// PatchFile is a single file change within a patch.
type PatchFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	// One of "create", "update", "append".
	Mode string `json:"mode"`
}

// Patch is an automatically generated code change.
type Patch struct {
	Branch        string      `json:"branch"`
	CommitMessage string      `json:"commit_message"`
	Files         []PatchFile `json:"files"`
}

// RemediationPlan is the single strategy chosen for one failed job.
// A plan is produced once per admitted event and never mutated; a repeated
// failure yields a fresh event and a fresh plan.
type RemediationPlan struct {
	Kind        PlanKind `json:"kind"`
	TargetJobID int64    `json:"target_job_id"`
	// Present only for autofix plans.
	Patch     *Patch `json:"patch,omitempty"`
	Rationale string `json:"rationale"`
}

// OutcomeStatus reports how plan execution ended.
type OutcomeStatus string

const (
	OutcomeSucceeded          OutcomeStatus = "succeeded"
	OutcomeFailed             OutcomeStatus = "failed"
	OutcomePartiallySucceeded OutcomeStatus = "partially_succeeded"
)

// RemediationOutcome records the result of executing a plan.
type RemediationOutcome struct {
	PlanKind    PlanKind      `json:"plan_kind"`
	PipelineID  int64         `json:"pipeline_id"`
	TargetJobID int64         `json:"target_job_id"`
	Status      OutcomeStatus `json:"status"`
	Detail      string        `json:"detail"`
	CompletedAt time.Time     `json:"completed_at"`
}

// OutcomeRecord is one append-only ledger entry tying an event to its
// diagnosis, plan, and outcome for a single job.
type OutcomeRecord struct {
	// Idempotency key: replaying the same key is a no-op in the recorder.
	Key       string             `json:"key"`
	Event     PipelineEvent      `json:"event"`
	Diagnosis Diagnosis          `json:"diagnosis"`
	Plan      RemediationPlan    `json:"plan"`
	Outcome   RemediationOutcome `json:"outcome"`
}

// RecordKey builds the ledger idempotency key for a job's outcome.
func RecordKey(pipelineID, jobID int64, kind PlanKind) string {
	return fmt.Sprintf("%d:%d:%s", pipelineID, jobID, kind)
}

// Broker topic names.
const (
	// TopicPipelineEvents carries PipelineEvent payloads published by the
	// webhook collaborator after signature verification.
	TopicPipelineEvents = "guardian.pipeline.events"

	// TopicOutcomes carries OutcomeRecord payloads for downstream consumers
	// (analytics, notifications).
	TopicOutcomes = "guardian.outcomes"
)
