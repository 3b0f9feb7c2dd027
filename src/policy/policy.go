// Package policy maps a diagnosis plus job context to a single remediation
// plan. Decide is a pure function: identical inputs always produce
// identical plans, which keeps the policy table unit-testable.
package policy

import (
	"fmt"

	"guardian-agent/src/contracts"
)

// JobContext is the per-job context the policy evaluates alongside the
// diagnosis.
type JobContext struct {
	JobID int64
	// Retries already performed for this job on the platform.
	RetryCount int
	// Protected branches never receive automatic fixes.
	BranchProtected bool
	Branch          string
	MergeRequestIID int64
}

// Policy holds the configured thresholds. The thresholds are captured at
// construction so a Policy value is immutable and deterministic.
type Policy struct {
	maxRetries       int
	autofixThreshold float64
	suggestThreshold float64
}

// New creates a Policy with the given thresholds.
func New(maxRetries int, autofixThreshold, suggestThreshold float64) *Policy {
	return &Policy{
		maxRetries:       maxRetries,
		autofixThreshold: autofixThreshold,
		suggestThreshold: suggestThreshold,
	}
}

// Decide evaluates the policy table top to bottom; the first matching row
// wins:
//
//  1. confidence below the suggest threshold never acts, whatever the
//     category claims
//  2. transient failures with retry budget left are retried
//  3. dependency or formatting failures with high confidence are auto-fixed,
//     unless the branch is protected (hard rule, not a threshold)
//  4. anything diagnosed with at least suggest-level confidence gets a
//     comment
func (p *Policy) Decide(d contracts.Diagnosis, jctx JobContext) contracts.RemediationPlan {
	switch {
	case d.Confidence < p.suggestThreshold:
		return contracts.RemediationPlan{
			Kind:        contracts.PlanNoAction,
			TargetJobID: jctx.JobID,
			Rationale: fmt.Sprintf("confidence %.2f below suggest threshold %.2f",
				d.Confidence, p.suggestThreshold),
		}

	case d.Category == contracts.CategoryTransient && jctx.RetryCount < p.maxRetries:
		return contracts.RemediationPlan{
			Kind:        contracts.PlanRetry,
			TargetJobID: jctx.JobID,
			Rationale: fmt.Sprintf("transient failure (confidence %.2f), retry %d of %d",
				d.Confidence, jctx.RetryCount+1, p.maxRetries),
		}

	case autofixable(d.Category) && d.Confidence >= p.autofixThreshold && !jctx.BranchProtected:
		return contracts.RemediationPlan{
			Kind:        contracts.PlanAutoFix,
			TargetJobID: jctx.JobID,
			Rationale: fmt.Sprintf("%s diagnosed with confidence %.2f at or above autofix threshold %.2f",
				d.Category, d.Confidence, p.autofixThreshold),
		}

	default:
		return contracts.RemediationPlan{
			Kind:        contracts.PlanSuggestOnly,
			TargetJobID: jctx.JobID,
			Rationale: fmt.Sprintf("%s diagnosed with confidence %.2f, suggesting a manual fix",
				d.Category, d.Confidence),
		}
	}
}

// autofixable reports whether a category is eligible for automatic fixing.
// Transient failures are retried instead, and test failures always require
// a human.
func autofixable(c contracts.Category) bool {
	return c == contracts.CategoryDependencyMissing || c == contracts.CategoryFormatViolation
}
