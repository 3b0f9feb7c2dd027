// Package classify turns log excerpts into a structured Diagnosis.
// It delegates to the text-understanding capability when one is configured
// and falls back to keyword heuristics otherwise. Classification never
// fails: any malformed or missing response degrades to an unknown diagnosis
// with zero confidence so the recovery path is never blocked.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"guardian-agent/src/contracts"
	"guardian-agent/src/infer"
	"guardian-agent/src/logger"
)

// retryBaseBackoff is the wait before the single classification retry.
const retryBaseBackoff = 250 * time.Millisecond

// maxPromptBytes bounds the excerpt text placed in one prompt.
const maxPromptBytes = 16 * 1024

// Classifier produces diagnoses from excerpts.
type Classifier struct {
	client           infer.Client // nil enables heuristic-only mode
	suggestThreshold float64
	inferTimeout     time.Duration
	log              logger.Logger
}

// New creates a Classifier. A nil infer client selects the built-in keyword
// heuristics.
func New(client infer.Client, suggestThreshold float64, inferTimeout time.Duration, log logger.Logger) *Classifier {
	return &Classifier{
		client:           client,
		suggestThreshold: suggestThreshold,
		inferTimeout:     inferTimeout,
		log:              log,
	}
}

// Classify produces one Diagnosis for a whole event. All excerpts are
// batched into a single model call to bound latency and cost.
func (c *Classifier) Classify(ctx context.Context, event contracts.PipelineEvent, excerpts []contracts.LogExcerpt) contracts.Diagnosis {
	if len(excerpts) == 0 {
		return contracts.Diagnosis{
			Category:        contracts.CategoryUnknown,
			Confidence:      0,
			Summary:         "no log evidence was retrievable for the failed jobs",
			SuggestedAction: contracts.ActionNoAction,
		}
	}

	evidence := evidenceJobIDs(excerpts)
	combined := combineExcerpts(excerpts)

	var d contracts.Diagnosis
	if c.client == nil {
		d = heuristicDiagnosis(combined)
	} else {
		d = c.inferDiagnosis(ctx, event, excerpts, combined)
	}

	d.EvidenceJobIDs = evidence
	if d.Details == nil {
		d.Details = extractDetails(combined)
	}

	// Confidence floor: weak diagnoses may at most suggest, never act.
	if d.Confidence < c.suggestThreshold &&
		(d.SuggestedAction == contracts.ActionRetry || d.SuggestedAction == contracts.ActionAutoFix) {
		d.SuggestedAction = contracts.ActionSuggestOnly
	}
	return d
}

// inferDiagnosis calls the model, retrying once with backoff, and degrades
// to an unknown diagnosis if both attempts or parsing fail.
func (c *Classifier) inferDiagnosis(ctx context.Context, event contracts.PipelineEvent, excerpts []contracts.LogExcerpt, combined string) contracts.Diagnosis {
	prompt := buildPrompt(event, excerpts)

	text, err := c.inferWithRetry(ctx, prompt)
	if err != nil {
		c.log.Error("classification call failed, degrading to unknown: %v", err)
		return degradedDiagnosis(fmt.Sprintf("classification unavailable: %v", err))
	}

	d, err := parseResponse(text)
	if err != nil {
		c.log.Error("classification response rejected, degrading to unknown: %v", err)
		return degradedDiagnosis("classification response did not match the expected schema")
	}
	return d
}

func (c *Classifier) inferWithRetry(ctx context.Context, prompt string) (string, error) {
	attempt := func() (string, error) {
		inferCtx, cancel := context.WithTimeout(ctx, c.inferTimeout)
		defer cancel()
		return c.client.Infer(inferCtx, prompt)
	}

	text, err := attempt()
	if err == nil {
		return text, nil
	}

	// Exponential backoff with a single retry: wait base, then give up.
	select {
	case <-time.After(retryBaseBackoff):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return attempt()
}

func degradedDiagnosis(summary string) contracts.Diagnosis {
	return contracts.Diagnosis{
		Category:        contracts.CategoryUnknown,
		Confidence:      0,
		Summary:         summary,
		SuggestedAction: contracts.ActionNoAction,
	}
}

// buildPrompt renders the fixed classification contract: taxonomy, response
// schema, and the batched excerpts.
func buildPrompt(event contracts.PipelineEvent, excerpts []contracts.LogExcerpt) string {
	var sb strings.Builder
	sb.WriteString("Analyze the following CI/CD log excerpts from a failed pipeline.\n\n")
	sb.WriteString("Respond ONLY with JSON in exactly this structure, no additional text or backticks:\n")
	sb.WriteString(`{
  "category": "one of: transient, dependency_missing, format_violation, test_failure, config_error, unknown",
  "confidence": 0.0,
  "summary": "brief description of the failure (maximum 2 sentences)",
  "suggested_action": "one of: retry, autofix, suggest_only, no_action",
  "suggested_fix": "specific and actionable fix",
  "details": {}
}` + "\n\n")
	sb.WriteString("Categories:\n")
	sb.WriteString("- transient: network errors, connection resets, intermittent infrastructure failures\n")
	sb.WriteString("- dependency_missing: missing packages or modules, unresolved imports\n")
	sb.WriteString("- format_violation: formatter or linter violations\n")
	sb.WriteString("- test_failure: unit or integration tests failing\n")
	sb.WriteString("- config_error: missing environment variables, invalid configuration files\n")
	sb.WriteString("- unknown: anything else\n\n")
	sb.WriteString("For details include relevant keys such as missing_module, error_file, error_line, missing_env_var.\n\n")

	fmt.Fprintf(&sb, "Pipeline %d on branch %s, %d failed job(s).\n\n",
		event.PipelineID, event.Branch, len(event.FailedJobs))

	budget := maxPromptBytes
	for _, e := range excerpts {
		text := e.Text
		if len(text) > budget {
			text = text[:budget]
		}
		fmt.Fprintf(&sb, "--- job %d log excerpt ---\n%s\n\n", e.JobID, text)
		budget -= len(text)
		if budget <= 0 {
			break
		}
	}
	return sb.String()
}

// rawDiagnosis is the untrusted response shape before validation.
type rawDiagnosis struct {
	Category        string            `json:"category"`
	Confidence      float64           `json:"confidence"`
	Summary         string            `json:"summary"`
	SuggestedAction string            `json:"suggested_action"`
	SuggestedFix    string            `json:"suggested_fix"`
	Details         map[string]string `json:"details"`
}

// parseResponse validates and coerces the model output into a Diagnosis.
// The response is untrusted: fences are stripped, the category and action
// are coerced through the closed enums, and confidence is clamped to [0,1].
func parseResponse(text string) (contracts.Diagnosis, error) {
	cleaned := stripFences(strings.TrimSpace(text))
	if cleaned == "" {
		return contracts.Diagnosis{}, fmt.Errorf("empty response")
	}

	var raw rawDiagnosis
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return contracts.Diagnosis{}, fmt.Errorf("parsing response JSON: %w", err)
	}
	if raw.Category == "" {
		return contracts.Diagnosis{}, fmt.Errorf("response missing category")
	}

	confidence := raw.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return contracts.Diagnosis{
		Category:        contracts.ParseCategory(raw.Category),
		Confidence:      confidence,
		Summary:         raw.Summary,
		SuggestedAction: contracts.ParseAction(raw.SuggestedAction),
		SuggestedFix:    raw.SuggestedFix,
		Details:         raw.Details,
	}, nil
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func combineExcerpts(excerpts []contracts.LogExcerpt) string {
	parts := make([]string, 0, len(excerpts))
	for _, e := range excerpts {
		parts = append(parts, e.Text)
	}
	return strings.Join(parts, "\n")
}

func evidenceJobIDs(excerpts []contracts.LogExcerpt) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, e := range excerpts {
		if !seen[e.JobID] {
			seen[e.JobID] = true
			ids = append(ids, e.JobID)
		}
	}
	return ids
}
