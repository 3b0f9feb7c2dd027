// Package gitlab provides a client for the GitLab REST API covering the
// capabilities the remediation engine needs: job listings, trace retrieval,
// job retries, commit creation, and comments.
package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrNotFound means the job, pipeline, or log does not exist or is not
	// visible with the current token.
	ErrNotFound = errors.New("gitlab: not found")

	// ErrTransport wraps network-level and 5xx failures. Callers may retry
	// with backoff.
	ErrTransport = errors.New("gitlab: transport error")

	// ErrRejected means the platform refused a write (commit, retry,
	// comment) for a non-transient reason such as permissions or a
	// protected branch.
	ErrRejected = errors.New("gitlab: request rejected")
)

// Client is a GitLab API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Job is a pipeline job as returned by the jobs API.
type Job struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Stage    string  `json:"stage"`
	Status   string  `json:"status"`
	Ref      string  `json:"ref"`
	WebURL   string  `json:"web_url"`
	Coverage float64 `json:"coverage"`
}

// CommitAction is one file operation within a commit request.
type CommitAction struct {
	// One of "create", "update", "move", "delete".
	Action   string `json:"action"`
	FilePath string `json:"file_path"`
	Content  string `json:"content,omitempty"`
}

// Commit is the response from the commit-creation API.
type Commit struct {
	ID        string    `json:"id"`
	ShortID   string    `json:"short_id"`
	Title     string    `json:"title"`
	WebURL    string    `json:"web_url"`
	CreatedAt time.Time `json:"created_at"`
}

// NewClient creates a GitLab API client. An empty token is allowed for
// read-only access to public projects.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Pipeline is the response from the single-pipeline API.
type Pipeline struct {
	ID     int64  `json:"id"`
	SHA    string `json:"sha"`
	Ref    string `json:"ref"`
	Status string `json:"status"`
	WebURL string `json:"web_url"`
}

// GetPipeline fetches one pipeline's details.
func (c *Client) GetPipeline(ctx context.Context, projectID, pipelineID int64) (*Pipeline, error) {
	url := fmt.Sprintf("%s/api/v4/projects/%d/pipelines/%d", c.baseURL, projectID, pipelineID)

	var pipeline Pipeline
	if err := c.getJSON(ctx, url, &pipeline); err != nil {
		return nil, err
	}
	return &pipeline, nil
}

// GetPipelineJobs lists all jobs of a pipeline.
func (c *Client) GetPipelineJobs(ctx context.Context, projectID, pipelineID int64) ([]Job, error) {
	url := fmt.Sprintf("%s/api/v4/projects/%d/pipelines/%d/jobs", c.baseURL, projectID, pipelineID)

	var jobs []Job
	if err := c.getJSON(ctx, url, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetJobTrace fetches the raw log of a job. A missing trace returns
// ErrNotFound; callers treat that as "no evidence", not a failure.
func (c *Client) GetJobTrace(ctx context.Context, projectID, jobID int64) (string, error) {
	url := fmt.Sprintf("%s/api/v4/projects/%d/jobs/%d/trace", c.baseURL, projectID, jobID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req, "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, http.StatusOK); err != nil {
		return "", err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading trace: %v", ErrTransport, err)
	}
	return string(body), nil
}

// RetryJob asks the platform to retry a failed job. Success means the
// platform accepted the retry request, not that the retried job will pass.
func (c *Client) RetryJob(ctx context.Context, projectID, jobID int64) error {
	url := fmt.Sprintf("%s/api/v4/projects/%d/jobs/%d/retry", c.baseURL, projectID, jobID)
	return c.postJSON(ctx, url, nil, nil, http.StatusCreated)
}

// CreateCommit pushes a commit with the given file actions to a branch.
func (c *Client) CreateCommit(ctx context.Context, projectID int64, branch, message string, actions []CommitAction) (*Commit, error) {
	url := fmt.Sprintf("%s/api/v4/projects/%d/repository/commits", c.baseURL, projectID)

	payload := map[string]interface{}{
		"branch":         branch,
		"commit_message": message,
		"actions":        actions,
	}

	var commit Commit
	if err := c.postJSON(ctx, url, payload, &commit, http.StatusCreated); err != nil {
		return nil, err
	}
	return &commit, nil
}

// GetFile fetches the raw content of a file at a ref.
func (c *Client) GetFile(ctx context.Context, projectID int64, path, ref string) (string, error) {
	url := fmt.Sprintf("%s/api/v4/projects/%d/repository/files/%s/raw?ref=%s",
		c.baseURL, projectID, pathEscape(path), ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req, "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, http.StatusOK); err != nil {
		return "", err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading file: %v", ErrTransport, err)
	}
	return string(body), nil
}

// GetJobArtifact fetches a single file from a job's artifact archive.
// Jobs without artifacts, or without the requested path, return ErrNotFound.
func (c *Client) GetJobArtifact(ctx context.Context, projectID, jobID int64, path string) ([]byte, error) {
	url := fmt.Sprintf("%s/api/v4/projects/%d/jobs/%d/artifacts/%s",
		c.baseURL, projectID, jobID, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req, "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading artifact: %v", ErrTransport, err)
	}
	return body, nil
}

// CreateMergeRequestNote posts a comment on a merge request.
func (c *Client) CreateMergeRequestNote(ctx context.Context, projectID, mrIID int64, body string) error {
	url := fmt.Sprintf("%s/api/v4/projects/%d/merge_requests/%d/notes", c.baseURL, projectID, mrIID)
	return c.postJSON(ctx, url, map[string]string{"body": body}, nil, http.StatusCreated)
}

// CreateCommitComment posts a comment on a commit. Used when a failed
// pipeline has no associated merge request.
func (c *Client) CreateCommitComment(ctx context.Context, projectID int64, sha, note string) error {
	url := fmt.Sprintf("%s/api/v4/projects/%d/repository/commits/%s/comments", c.baseURL, projectID, sha)
	return c.postJSON(ctx, url, map[string]string{"note": note}, nil, http.StatusCreated)
}

// getJSON performs an authenticated GET expecting a JSON body.
func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req, "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, http.StatusOK); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrTransport, err)
	}
	return nil
}

// postJSON performs an authenticated POST with an optional JSON payload and
// optional JSON response decode.
func (c *Client) postJSON(ctx context.Context, url string, payload, out interface{}, wantStatus int) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req, "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, wantStatus); err != nil {
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decoding response: %v", ErrTransport, err)
		}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, accept string) {
	if c.token != "" {
		req.Header.Set("PRIVATE-TOKEN", c.token)
	}
	req.Header.Set("Accept", accept)
}

// checkStatus maps HTTP status codes to the package's error taxonomy.
func (c *Client) checkStatus(resp *http.Response, want int) error {
	if resp.StatusCode == want {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: status 404: %s", ErrNotFound, string(body))
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrTransport, resp.StatusCode, string(body))
	default:
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, string(body))
	}
}

// pathEscape encodes a repository file path for the files API, which expects
// slashes encoded as %2F.
func pathEscape(path string) string {
	escaped := make([]byte, 0, len(path))
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			escaped = append(escaped, '%', '2', 'F')
		} else {
			escaped = append(escaped, path[i])
		}
	}
	return string(escaped)
}
