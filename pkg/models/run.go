package models

import "time"

// RunStatus represents the stage a pipeline run has reached.
type RunStatus string

const (
	// RunStatusReceived indicates the request was authorized and accepted.
	RunStatusReceived RunStatus = "received"
	// RunStatusGenerating indicates the model call is in flight.
	RunStatusGenerating RunStatus = "generating"
	// RunStatusPublishing indicates the repository is being created.
	RunStatusPublishing RunStatus = "publishing"
	// RunStatusNotifying indicates the evaluation callback is being called.
	RunStatusNotifying RunStatus = "notifying"
	// RunStatusCompleted indicates the repository was published.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed indicates a step before notification failed.
	RunStatusFailed RunStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusReceived, RunStatusGenerating, RunStatusPublishing,
		RunStatusNotifying, RunStatusCompleted, RunStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true once a run can no longer change state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Run is one execution of the pipeline for a task request.
type Run struct {
	// ID is the unique identifier for this run.
	ID string `json:"id"`
	// Task is the task label from the request.
	Task string `json:"task"`
	// Nonce is the nonce from the request.
	Nonce string `json:"nonce"`
	// Round is the submission round from the request.
	Round int `json:"round"`
	// RepoName is the derived repository name.
	RepoName string `json:"repo_name"`
	// Status is the current stage of the run.
	Status RunStatus `json:"status"`
	// RepoURL is set once the repository is published.
	RepoURL string `json:"repo_url,omitempty"`
	// PagesURL is set once the repository is published.
	PagesURL string `json:"pages_url,omitempty"`
	// Notification is the callback outcome once known.
	Notification string `json:"notification,omitempty"`
	// Error holds the failure message for failed runs.
	Error string `json:"error,omitempty"`
	// StartedAt is when the run was accepted.
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is when the run reached a terminal status.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
