// Package mcptool exposes the pipeline as MCP tools over stdio.
//
// Each tool is a struct with its dependencies injected via constructor,
// a Definition() returning the schema, and a Handle() processing calls.
package mcptool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ShayCichocki/appforge/internal/pipeline"
	"github.com/ShayCichocki/appforge/internal/state"
	"github.com/ShayCichocki/appforge/pkg/models"
)

// Runner runs a task request to completion.
type Runner interface {
	Handle(ctx context.Context, req models.TaskRequest) (pipeline.Result, error)
}

// PublishTool handles the publish_app MCP tool.
type PublishTool struct {
	runner Runner
}

// NewPublishTool creates a PublishTool.
func NewPublishTool(runner Runner) *PublishTool {
	return &PublishTool{runner: runner}
}

// Definition returns the MCP tool definition for publish_app.
func (t *PublishTool) Definition() mcp.Tool {
	return mcp.NewTool("publish_app",
		mcp.WithDescription(
			"Generate a single-page web app from a brief, publish it as a public GitHub repository, "+
				"and report the repository and pages URLs to the evaluation callback.",
		),
		mcp.WithString("secret",
			mcp.Required(),
			mcp.Description("Shared verification secret"),
		),
		mcp.WithString("brief",
			mcp.Required(),
			mcp.Description("Description of the app to build"),
		),
		mcp.WithString("task",
			mcp.Required(),
			mcp.Description("Task label, used in the repository name"),
		),
		mcp.WithString("nonce",
			mcp.Required(),
			mcp.Description("Unique value distinguishing this submission"),
		),
		mcp.WithString("evaluation_url",
			mcp.Required(),
			mcp.Description("URL that receives the notification payload"),
		),
		mcp.WithString("email",
			mcp.Description("Submitter email passed through to the callback"),
		),
		mcp.WithNumber("round",
			mcp.Description("Submission round (default: 1)"),
		),
	)
}

// Handle processes the publish_app tool call.
func (t *PublishTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task := models.TaskRequest{
		Secret:        req.GetString("secret", ""),
		Brief:         req.GetString("brief", ""),
		Task:          req.GetString("task", ""),
		Email:         req.GetString("email", ""),
		EvaluationURL: req.GetString("evaluation_url", ""),
		Nonce:         req.GetString("nonce", ""),
		Round:         intArg(req, "round", 1),
	}

	result, err := t.runner.Handle(ctx, task)
	if err != nil {
		if errors.Is(err, pipeline.ErrUnauthorized) {
			return mcp.NewToolResultError("Invalid secret!"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("publish failed: %v", err)), nil
	}

	return jsonResult(result.Ack())
}

// RunTool handles the get_run MCP tool.
type RunTool struct {
	runs state.RunStore
}

// NewRunTool creates a RunTool.
func NewRunTool(runs state.RunStore) *RunTool {
	return &RunTool{runs: runs}
}

// Definition returns the MCP tool definition for get_run.
func (t *RunTool) Definition() mcp.Tool {
	return mcp.NewTool("get_run",
		mcp.WithDescription("Show a run from this process by ID, or the most recent runs when no ID is given."),
		mcp.WithString("run_id",
			mcp.Description("Run ID returned by publish_app"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of recent runs to list (default: 10)"),
		),
	)
}

// Handle processes the get_run tool call.
func (t *RunTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if id := req.GetString("run_id", ""); id != "" {
		run, err := t.runs.Get(id)
		if errors.Is(err, state.ErrRunNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("run %q not found", id)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load run: %v", err)), nil
		}
		return jsonResult(run)
	}

	runs, err := t.runs.List(intArg(req, "limit", 10))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}
	if len(runs) == 0 {
		return mcp.NewToolResultText("No runs yet."), nil
	}
	return jsonResult(runs)
}

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
