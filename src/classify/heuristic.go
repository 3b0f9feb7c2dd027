package classify

import (
	"regexp"
	"strconv"
	"strings"

	"guardian-agent/src/contracts"
)

// Heuristic confidences are fixed per rule. Keyword matches are strong
// signals for the narrow categories they cover but weaker than a model that
// has read the whole excerpt.
const (
	confidenceTransient  = 0.85
	confidenceDependency = 0.8
	confidenceFormat     = 0.8
	confidenceTest       = 0.7
	confidenceConfig     = 0.6
)

type heuristicRule struct {
	keywords   []string
	category   contracts.Category
	confidence float64
	action     contracts.Action
	summary    string
	fix        string
}

// Rules are ordered: the first match wins, so the more specific failure
// shapes come before the broader ones.
var heuristicRules = []heuristicRule{
	{
		keywords:   []string{"econnreset", "etimedout", "connection refused", "connection reset", "connection timed out", "network is unreachable", "temporary failure in name resolution", "timed out"},
		category:   contracts.CategoryTransient,
		confidence: confidenceTransient,
		action:     contracts.ActionRetry,
		summary:    "The job failed on a network or infrastructure error that is likely intermittent.",
		fix:        "Retry the job; if the failure persists, check the availability of the remote service.",
	},
	{
		keywords:   []string{"modulenotfounderror", "no module named", "cannot find module", "cannot find package", "could not resolve dependency", "package does not exist"},
		category:   contracts.CategoryDependencyMissing,
		confidence: confidenceDependency,
		action:     contracts.ActionAutoFix,
		summary:    "A required package or module is missing from the project's dependencies.",
		fix:        "Add the missing module to the dependency manifest.",
	},
	{
		keywords:   []string{"gofmt", "go fmt", "black --check", "prettier", "eslint", "flake8", "rubocop", "lint error", "formatting error", "would reformat"},
		category:   contracts.CategoryFormatViolation,
		confidence: confidenceFormat,
		action:     contracts.ActionAutoFix,
		summary:    "The code violates the project's formatting or lint rules.",
		fix:        "Run the project's formatter and commit the result.",
	},
	{
		keywords:   []string{"test failed", "tests failed", "assertionerror", "assertion failed", "failures:", "--- fail"},
		category:   contracts.CategoryTestFailure,
		confidence: confidenceTest,
		action:     contracts.ActionSuggestOnly,
		summary:    "One or more tests failed.",
		fix:        "Review the failing tests and fix the code or the test expectations.",
	},
	{
		keywords:   []string{"keyerror", "environment variable", "missing env", "config not found", "invalid configuration"},
		category:   contracts.CategoryConfigError,
		confidence: confidenceConfig,
		action:     contracts.ActionSuggestOnly,
		summary:    "The job failed on missing or invalid configuration.",
		fix:        "Add the missing configuration value or environment variable to the CI settings.",
	},
}

// heuristicDiagnosis applies the keyword rules to the combined excerpt text.
func heuristicDiagnosis(text string) contracts.Diagnosis {
	lower := strings.ToLower(text)

	for _, rule := range heuristicRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return contracts.Diagnosis{
					Category:        rule.category,
					Confidence:      rule.confidence,
					Summary:         rule.summary,
					SuggestedAction: rule.action,
					SuggestedFix:    rule.fix,
					Details:         extractDetails(text),
				}
			}
		}
	}

	return contracts.Diagnosis{
		Category:        contracts.CategoryUnknown,
		Confidence:      0,
		Summary:         "The failure could not be identified automatically.",
		SuggestedAction: contracts.ActionNoAction,
		Details:         extractDetails(text),
	}
}

var (
	fileLinePattern  = regexp.MustCompile(`File "([^"]+)", line (\d+)`)
	pyModulePattern  = regexp.MustCompile(`No module named '([^']+)'`)
	jsModulePattern  = regexp.MustCompile(`Cannot find module '([^']+)'`)
	goPackagePattern = regexp.MustCompile(`cannot find package "([^"]+)"`)
	keyErrorPattern  = regexp.MustCompile(`KeyError: '([^']+)'`)
)

// extractDetails pulls structured hints out of raw log text. The keys feed
// both the autofix planner and the suggestion comments.
func extractDetails(text string) map[string]string {
	details := make(map[string]string)

	if m := fileLinePattern.FindStringSubmatch(text); m != nil {
		details["error_file"] = m[1]
		if _, err := strconv.Atoi(m[2]); err == nil {
			details["error_line"] = m[2]
		}
	}
	if m := pyModulePattern.FindStringSubmatch(text); m != nil {
		details["missing_module"] = m[1]
		details["language"] = "python"
	} else if m := jsModulePattern.FindStringSubmatch(text); m != nil {
		details["missing_module"] = m[1]
		details["language"] = "javascript"
	} else if m := goPackagePattern.FindStringSubmatch(text); m != nil {
		details["missing_module"] = m[1]
		details["language"] = "go"
	}
	if m := keyErrorPattern.FindStringSubmatch(text); m != nil {
		details["missing_env_var"] = m[1]
	}

	if len(details) == 0 {
		return nil
	}
	return details
}
