// Package mcp exposes the diagnosis pipeline over the Model Context
// Protocol so editor agents can inspect failures without triggering any
// remediation side effects.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"guardian-agent/src/autofix"
	"guardian-agent/src/classify"
	"guardian-agent/src/contracts"
	"guardian-agent/src/gitlab"
	"guardian-agent/src/normalize"
	"guardian-agent/src/policy"
	"guardian-agent/src/record"
)

// Server is the guardian MCP server. All tools are read-only: diagnosis
// runs without executing plans, and the ledger is only queried.
type Server struct {
	mcpServer  *server.MCPServer
	gl         *gitlab.Client
	normalizer *normalize.Normalizer
	classifier *classify.Classifier
	policy     *policy.Policy
	planner    *autofix.Planner
	recorder   record.Recorder
}

// NewServer assembles the MCP server and registers its tools.
func NewServer(gl *gitlab.Client, normalizer *normalize.Normalizer, classifier *classify.Classifier,
	pol *policy.Policy, planner *autofix.Planner, recorder record.Recorder) *Server {
	s := server.NewMCPServer(
		"guardian",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	srv := &Server{
		mcpServer:  s,
		gl:         gl,
		normalizer: normalizer,
		classifier: classifier,
		policy:     pol,
		planner:    planner,
		recorder:   recorder,
	}
	srv.registerTools()
	return srv
}

func (s *Server) registerTools() {
	diagnoseTool := mcp.NewTool("diagnose_pipeline",
		mcp.WithDescription("Diagnose a failed GitLab pipeline: fetch failed-job logs, classify the failure, and report the remediation each job would get. Dry run - nothing is retried, committed, or commented."),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("GitLab project ID"),
		),
		mcp.WithNumber("pipeline_id",
			mcp.Required(),
			mcp.Description("Pipeline ID to diagnose"),
		),
	)

	outcomesTool := mcp.NewTool("get_outcomes",
		mcp.WithDescription("Return the recorded remediation outcomes for a pipeline: what was diagnosed, what was planned, and how execution went."),
		mcp.WithNumber("pipeline_id",
			mcp.Required(),
			mcp.Description("Pipeline ID to look up"),
		),
	)

	s.mcpServer.AddTool(diagnoseTool, s.handleDiagnosePipeline)
	s.mcpServer.AddTool(outcomesTool, s.handleGetOutcomes)
}

// Run starts the MCP server on stdio.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

// jobVerdict is one job's dry-run result.
type jobVerdict struct {
	JobID int64                     `json:"job_id"`
	Name  string                    `json:"name"`
	Stage string                    `json:"stage"`
	Plan  contracts.RemediationPlan `json:"plan"`
}

// diagnoseResponse is the diagnose_pipeline payload.
type diagnoseResponse struct {
	PipelineID int64               `json:"pipeline_id"`
	ProjectID  int64               `json:"project_id"`
	Diagnosis  contracts.Diagnosis `json:"diagnosis"`
	Jobs       []jobVerdict        `json:"jobs"`
}

func (s *Server) handleDiagnosePipeline(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := int64(request.GetInt("project_id", 0))
	pipelineID := int64(request.GetInt("pipeline_id", 0))
	if projectID == 0 || pipelineID == 0 {
		return mcp.NewToolResultError("project_id and pipeline_id are required"), nil
	}

	response, err := s.diagnose(ctx, projectID, pipelineID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagnosis failed: %v", err)), nil
	}

	jsonBytes, err := json.Marshal(response)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// diagnose runs the read-only half of the engine: listing, normalization,
// classification, and planning, with no execution.
func (s *Server) diagnose(ctx context.Context, projectID, pipelineID int64) (*diagnoseResponse, error) {
	jobs, err := s.gl.GetPipelineJobs(ctx, projectID, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}

	var failed []contracts.FailedJob
	for _, job := range jobs {
		if job.Status == "failed" {
			failed = append(failed, contracts.FailedJob{JobID: job.ID, Name: job.Name, Stage: job.Stage})
		}
	}
	if len(failed) == 0 {
		return nil, fmt.Errorf("pipeline %d has no failed jobs", pipelineID)
	}

	event := contracts.PipelineEvent{
		PipelineID: pipelineID,
		ProjectID:  projectID,
		FailedJobs: failed,
	}

	var excerpts []contracts.LogExcerpt
	for _, job := range failed {
		found, err := s.normalizer.Fetch(ctx, projectID, job)
		if err != nil {
			continue
		}
		excerpts = append(excerpts, found...)
	}

	diagnosis := s.classifier.Classify(ctx, event, excerpts)

	response := &diagnoseResponse{
		PipelineID: pipelineID,
		ProjectID:  projectID,
		Diagnosis:  diagnosis,
	}
	for _, job := range failed {
		plan := s.policy.Decide(diagnosis, policy.JobContext{
			JobID:      job.JobID,
			RetryCount: job.RetryCount,
		})
		if plan.Kind == contracts.PlanAutoFix {
			patch, ok := s.planner.BuildPatch(ctx, event, diagnosis)
			if !ok {
				plan.Kind = contracts.PlanSuggestOnly
				plan.Rationale = "no safe patch derivable, downgraded to suggestion"
			} else {
				plan.Patch = patch
			}
		}
		response.Jobs = append(response.Jobs, jobVerdict{
			JobID: job.JobID,
			Name:  job.Name,
			Stage: job.Stage,
			Plan:  plan,
		})
	}
	return response, nil
}

func (s *Server) handleGetOutcomes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pipelineID := int64(request.GetInt("pipeline_id", 0))
	if pipelineID == 0 {
		return mcp.NewToolResultError("pipeline_id is required"), nil
	}

	records, err := s.recorder.List(ctx, pipelineID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ledger query failed: %v", err)), nil
	}
	if len(records) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf(`{"pipeline_id":%d,"outcomes":[]}`, pipelineID)), nil
	}

	jsonBytes, err := json.Marshal(map[string]interface{}{
		"pipeline_id": pipelineID,
		"outcomes":    records,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
