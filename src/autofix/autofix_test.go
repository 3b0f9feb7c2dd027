package autofix

import (
	"context"
	"testing"

	"guardian-agent/src/contracts"
)

func TestSafePaths(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		want  bool
	}{
		{"requirements manifest", []string{"requirements.txt"}, true},
		{"nested manifest", []string{"services/api/requirements.txt"}, true},
		{"go module file", []string{"go.mod"}, true},
		{"ci config", []string{".gitlab-ci.yml"}, true},
		{"yaml config", []string{"config/settings.yaml"}, true},
		{"toml config", []string{"pyproject.toml"}, true},
		{"eslint dotfile", []string{".eslintrc.json"}, true},
		{"prettier dotfile", []string{".prettierrc"}, true},
		{"source file rejected", []string{"app/main.py"}, false},
		{"go source rejected", []string{"cmd/server/main.go"}, false},
		{"mixed safe and unsafe rejected", []string{"requirements.txt", "app/main.py"}, false},
		{"empty patch rejected", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var patch *contracts.Patch
			if tt.paths != nil {
				patch = &contracts.Patch{}
				for _, p := range tt.paths {
					patch.Files = append(patch.Files, contracts.PatchFile{Path: p})
				}
			}
			if got := SafePaths(patch); got != tt.want {
				t.Errorf("SafePaths(%v) = %v, want %v", tt.paths, got, tt.want)
			}
		})
	}
}

func TestDependencyPatch(t *testing.T) {
	planner := NewPlanner(nil, nil)
	event := contracts.PipelineEvent{ProjectID: 7, Branch: "main", CommitRef: "abc"}

	t.Run("python module appends to requirements", func(t *testing.T) {
		d := contracts.Diagnosis{
			Category: contracts.CategoryDependencyMissing,
			Details:  map[string]string{"missing_module": "pandas", "language": "python"},
		}
		patch, ok := planner.BuildPatch(context.Background(), event, d)
		if !ok {
			t.Fatal("BuildPatch() returned no patch")
		}
		if len(patch.Files) != 1 || patch.Files[0].Path != "requirements.txt" {
			t.Fatalf("patch files = %+v", patch.Files)
		}
		if patch.Files[0].Content != "pandas\n" {
			t.Errorf("content = %q, want pandas newline", patch.Files[0].Content)
		}
		if patch.Files[0].Mode != "append" {
			t.Errorf("mode = %q, want append", patch.Files[0].Mode)
		}
		if patch.Branch != "main" {
			t.Errorf("branch = %q, want main", patch.Branch)
		}
	})

	t.Run("import name mapped to package name", func(t *testing.T) {
		d := contracts.Diagnosis{
			Category: contracts.CategoryDependencyMissing,
			Details:  map[string]string{"missing_module": "cv2", "language": "python"},
		}
		patch, ok := planner.BuildPatch(context.Background(), event, d)
		if !ok {
			t.Fatal("BuildPatch() returned no patch")
		}
		if patch.Files[0].Content != "opencv-python\n" {
			t.Errorf("content = %q, want mapped package", patch.Files[0].Content)
		}
	})

	t.Run("non-python languages fall back to suggestion", func(t *testing.T) {
		d := contracts.Diagnosis{
			Category: contracts.CategoryDependencyMissing,
			Details:  map[string]string{"missing_module": "lodash", "language": "javascript"},
		}
		if _, ok := planner.BuildPatch(context.Background(), event, d); ok {
			t.Error("expected no patch for javascript dependency")
		}
	})

	t.Run("no module detail means no patch", func(t *testing.T) {
		d := contracts.Diagnosis{Category: contracts.CategoryDependencyMissing}
		if _, ok := planner.BuildPatch(context.Background(), event, d); ok {
			t.Error("expected no patch without missing_module detail")
		}
	})
}

type stubFiles struct {
	content string
	err     error
}

func (s *stubFiles) GetFile(ctx context.Context, projectID int64, path, ref string) (string, error) {
	return s.content, s.err
}

type stubInfer struct {
	response string
	err      error
}

func (s *stubInfer) Infer(ctx context.Context, prompt string) (string, error) {
	return s.response, s.err
}

func TestFormatPatch(t *testing.T) {
	event := contracts.PipelineEvent{ProjectID: 7, Branch: "main", CommitRef: "abc"}
	d := contracts.Diagnosis{
		Category: contracts.CategoryFormatViolation,
		Summary:  "yaml not formatted",
		Details:  map[string]string{"error_file": "config/app.yaml"},
	}

	t.Run("produces update patch", func(t *testing.T) {
		planner := NewPlanner(&stubInfer{response: "fixed: true"}, &stubFiles{content: "fixed:true"})
		patch, ok := planner.BuildPatch(context.Background(), event, d)
		if !ok {
			t.Fatal("BuildPatch() returned no patch")
		}
		if patch.Files[0].Path != "config/app.yaml" || patch.Files[0].Mode != "update" {
			t.Errorf("patch = %+v", patch.Files[0])
		}
	})

	t.Run("unsafe file refused before any calls", func(t *testing.T) {
		unsafe := contracts.Diagnosis{
			Category: contracts.CategoryFormatViolation,
			Details:  map[string]string{"error_file": "app/main.py"},
		}
		planner := NewPlanner(&stubInfer{response: "x"}, &stubFiles{content: "y"})
		if _, ok := planner.BuildPatch(context.Background(), event, unsafe); ok {
			t.Error("expected no patch for source file")
		}
	})

	t.Run("unchanged content means no patch", func(t *testing.T) {
		planner := NewPlanner(&stubInfer{response: "same"}, &stubFiles{content: "same"})
		if _, ok := planner.BuildPatch(context.Background(), event, d); ok {
			t.Error("expected no patch when model returns identical content")
		}
	})

	t.Run("missing collaborators means no patch", func(t *testing.T) {
		planner := NewPlanner(nil, nil)
		if _, ok := planner.BuildPatch(context.Background(), event, d); ok {
			t.Error("expected no patch without infer client")
		}
	})
}
