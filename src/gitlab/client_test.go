package gitlab

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetPipelineJobs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v4/projects/7/pipelines/42/jobs" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("PRIVATE-TOKEN"); got != "secret" {
			t.Errorf("PRIVATE-TOKEN = %q, want secret", got)
		}
		json.NewEncoder(w).Encode([]Job{
			{ID: 101, Name: "build", Stage: "build", Status: "failed"},
			{ID: 102, Name: "test", Stage: "test", Status: "success"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	jobs, err := client.GetPipelineJobs(context.Background(), 7, 42)
	if err != nil {
		t.Fatalf("GetPipelineJobs() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}
	if jobs[0].ID != 101 || jobs[0].Status != "failed" {
		t.Errorf("first job = %+v, want id 101 failed", jobs[0])
	}
}

func TestGetJobTrace(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v4/projects/7/jobs/101/trace" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("line one\nERROR: boom\n"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	trace, err := client.GetJobTrace(context.Background(), 7, 101)
	if err != nil {
		t.Fatalf("GetJobTrace() error = %v", err)
	}
	if trace != "line one\nERROR: boom\n" {
		t.Errorf("trace = %q", trace)
	}
}

func TestGetJobTraceNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.GetJobTrace(context.Background(), 7, 999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRetryJob(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"accepted", http.StatusCreated, nil},
		{"forbidden", http.StatusForbidden, ErrRejected},
		{"server error", http.StatusBadGateway, ErrTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s, want POST", r.Method)
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := NewClient(server.URL, "secret")
			err := client.RetryJob(context.Background(), 7, 101)
			if tt.wantErr == nil && err != nil {
				t.Errorf("RetryJob() error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("RetryJob() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateCommit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Branch        string         `json:"branch"`
			CommitMessage string         `json:"commit_message"`
			Actions       []CommitAction `json:"actions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decoding payload: %v", err)
		}
		if payload.Branch != "main" {
			t.Errorf("branch = %q, want main", payload.Branch)
		}
		if len(payload.Actions) != 1 || payload.Actions[0].FilePath != "requirements.txt" {
			t.Errorf("actions = %+v", payload.Actions)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Commit{ID: "abc123", ShortID: "abc123"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	commit, err := client.CreateCommit(context.Background(), 7, "main", "fix deps", []CommitAction{
		{Action: "update", FilePath: "requirements.txt", Content: "requests\n"},
	})
	if err != nil {
		t.Fatalf("CreateCommit() error = %v", err)
	}
	if commit.ID != "abc123" {
		t.Errorf("commit ID = %q, want abc123", commit.ID)
	}
}

func TestCreateCommitRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"protected branch"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	_, err := client.CreateCommit(context.Background(), 7, "main", "fix", nil)
	if !errors.Is(err, ErrRejected) {
		t.Errorf("error = %v, want ErrRejected", err)
	}
}

func TestCommentRouting(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")

	if err := client.CreateMergeRequestNote(context.Background(), 7, 3, "diagnosis"); err != nil {
		t.Fatalf("CreateMergeRequestNote() error = %v", err)
	}
	if gotPath != "/api/v4/projects/7/merge_requests/3/notes" {
		t.Errorf("MR note path = %q", gotPath)
	}

	if err := client.CreateCommitComment(context.Background(), 7, "deadbeef", "diagnosis"); err != nil {
		t.Fatalf("CreateCommitComment() error = %v", err)
	}
	if gotPath != "/api/v4/projects/7/repository/commits/deadbeef/comments" {
		t.Errorf("commit comment path = %q", gotPath)
	}
}

func TestGetFileEscapesPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Go's mux reports the decoded path; verify via RequestURI.
		if r.RequestURI != "/api/v4/projects/7/repository/files/src%2Fapp.py/raw?ref=main" {
			t.Errorf("RequestURI = %q", r.RequestURI)
		}
		w.Write([]byte("print('ok')\n"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	content, err := client.GetFile(context.Background(), 7, "src/app.py", "main")
	if err != nil {
		t.Fatalf("GetFile() error = %v", err)
	}
	if content != "print('ok')\n" {
		t.Errorf("content = %q", content)
	}
}

func TestGetPipeline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v4/projects/7/pipelines/42" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Pipeline{ID: 42, SHA: "deadbeef", Ref: "main", Status: "failed"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	pipeline, err := client.GetPipeline(context.Background(), 7, 42)
	if err != nil {
		t.Fatalf("GetPipeline() error = %v", err)
	}
	if pipeline.SHA != "deadbeef" || pipeline.Ref != "main" {
		t.Errorf("pipeline = %+v", pipeline)
	}
}

func TestGetJobArtifact(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v4/projects/7/jobs/101/artifacts/report.xml" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("<testsuite/>"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")

	data, err := client.GetJobArtifact(context.Background(), 7, 101, "report.xml")
	if err != nil {
		t.Fatalf("GetJobArtifact() error = %v", err)
	}
	if string(data) != "<testsuite/>" {
		t.Errorf("artifact = %q", data)
	}

	_, err = client.GetJobArtifact(context.Background(), 7, 101, "missing.xml")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
