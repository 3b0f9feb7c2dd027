// Package autofix derives concrete patches from diagnoses and enforces the
// safe-to-auto-edit allow-list. Only dependency manifests and
// config/lint/format files may ever be touched automatically; anything else
// is downgraded to a suggestion at execution time.
package autofix

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"guardian-agent/src/contracts"
	"guardian-agent/src/infer"
)

// ErrRejected means a patch touches files outside the allow-list.
var ErrRejected = errors.New("autofix: patch touches files outside the safe allow-list")

// FileReader is the slice of the platform API used to fetch current file
// content for fix generation.
type FileReader interface {
	GetFile(ctx context.Context, projectID int64, path, ref string) (string, error)
}

// Planner builds patches for autofixable diagnoses.
type Planner struct {
	client infer.Client // optional, used for format fixes
	files  FileReader   // optional, used for format fixes
}

// NewPlanner creates a Planner. Both collaborators may be nil; without them
// only manifest-append fixes can be derived.
func NewPlanner(client infer.Client, files FileReader) *Planner {
	return &Planner{client: client, files: files}
}

// pythonPackageMap translates import names to PyPI package names where they
// differ.
var pythonPackageMap = map[string]string{
	"cv2":     "opencv-python",
	"sklearn": "scikit-learn",
	"PIL":     "Pillow",
	"yaml":    "PyYAML",
	"dotenv":  "python-dotenv",
}

// BuildPatch derives a patch for the diagnosis, or reports that no safe
// patch can be derived and the plan should fall back to a suggestion.
func (p *Planner) BuildPatch(ctx context.Context, event contracts.PipelineEvent, d contracts.Diagnosis) (*contracts.Patch, bool) {
	switch d.Category {
	case contracts.CategoryDependencyMissing:
		return p.dependencyPatch(event, d)
	case contracts.CategoryFormatViolation:
		return p.formatPatch(ctx, event, d)
	default:
		return nil, false
	}
}

// dependencyPatch appends the missing package to the dependency manifest.
// Only the Python manifest is materialized as a patch: npm, Go, and friends
// need a lockfile-aware tool run, which a blind commit cannot do.
func (p *Planner) dependencyPatch(event contracts.PipelineEvent, d contracts.Diagnosis) (*contracts.Patch, bool) {
	module := d.Details["missing_module"]
	if module == "" {
		return nil, false
	}
	if lang := d.Details["language"]; lang != "" && lang != "python" {
		return nil, false
	}

	pkg := module
	if mapped, ok := pythonPackageMap[module]; ok {
		pkg = mapped
	}

	return &contracts.Patch{
		Branch:        event.Branch,
		CommitMessage: fmt.Sprintf("Add missing dependency %s", pkg),
		Files: []contracts.PatchFile{{
			Path:    "requirements.txt",
			Content: pkg + "\n",
			Mode:    "append",
		}},
	}, true
}

// formatPatch asks the model for a corrected version of the offending file.
// It needs both the infer client and file access, and only fires for files
// already inside the allow-list.
func (p *Planner) formatPatch(ctx context.Context, event contracts.PipelineEvent, d contracts.Diagnosis) (*contracts.Patch, bool) {
	if p.client == nil || p.files == nil {
		return nil, false
	}
	file := d.Details["error_file"]
	if file == "" || !safePath(file) {
		return nil, false
	}

	content, err := p.files.GetFile(ctx, event.ProjectID, file, event.CommitRef)
	if err != nil {
		return nil, false
	}

	prompt := fmt.Sprintf(
		"The following file violates the project's formatting rules.\n"+
			"Failure summary: %s\n\n"+
			"Return ONLY the corrected file content, no explanation, no fences.\n\n"+
			"--- %s ---\n%s", d.Summary, file, content)

	fixed, err := p.client.Infer(ctx, prompt)
	if err != nil {
		return nil, false
	}
	fixed = strings.TrimSpace(fixed)
	if fixed == "" || fixed == strings.TrimSpace(content) {
		return nil, false
	}

	return &contracts.Patch{
		Branch:        event.Branch,
		CommitMessage: fmt.Sprintf("Fix formatting in %s", file),
		Files: []contracts.PatchFile{{
			Path:    file,
			Content: fixed + "\n",
			Mode:    "update",
		}},
	}, true
}

// safeFileNames are exact base names that may be auto-edited.
var safeFileNames = map[string]bool{
	"requirements.txt": true,
	"go.mod":           true,
	"go.sum":           true,
	"package.json":     true,
	"Gemfile":          true,
	".gitlab-ci.yml":   true,
	".editorconfig":    true,
	".flake8":          true,
}

// safeExtensions are file extensions that may be auto-edited.
var safeExtensions = map[string]bool{
	".cfg":  true,
	".ini":  true,
	".toml": true,
	".yaml": true,
	".yml":  true,
}

// safePrefixes cover dotfile families for linters and formatters.
var safePrefixes = []string{".eslintrc", ".prettierrc"}

// SafePaths reports whether every file in the patch is inside the
// safe-to-auto-edit allow-list. An empty patch is not safe.
func SafePaths(patch *contracts.Patch) bool {
	if patch == nil || len(patch.Files) == 0 {
		return false
	}
	for _, f := range patch.Files {
		if !safePath(f.Path) {
			return false
		}
	}
	return true
}

func safePath(p string) bool {
	base := path.Base(p)
	if safeFileNames[base] {
		return true
	}
	if safeExtensions[path.Ext(base)] {
		return true
	}
	for _, prefix := range safePrefixes {
		if strings.HasPrefix(base, prefix) {
			return true
		}
	}
	return false
}
