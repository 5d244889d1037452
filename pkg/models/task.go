package models

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Attachment is a reference supplied alongside a task request.
type Attachment struct {
	// Name is the file name the caller gave the attachment.
	Name string `json:"name" yaml:"name"`
	// URL points at the attachment content (often a data: URI).
	URL string `json:"url" yaml:"url"`
}

// TaskRequest is the inbound request to build and publish one app.
type TaskRequest struct {
	// Secret is the shared verification value. It is never echoed back.
	Secret string `json:"secret" yaml:"secret"`
	// Brief is the free-text description of the app to generate.
	Brief string `json:"brief" yaml:"brief"`
	// Task is the human label for the request, used in the repository name.
	Task string `json:"task" yaml:"task"`
	// Email identifies the submitter to the evaluation callback.
	Email string `json:"email" yaml:"email"`
	// EvaluationURL receives the notification payload.
	EvaluationURL string `json:"evaluation_url" yaml:"evaluation_url"`
	// Round is the caller's submission round.
	Round int `json:"round" yaml:"round"`
	// Nonce disambiguates repeated submissions of the same task.
	Nonce string `json:"nonce" yaml:"nonce"`
	// Attachments are accepted but not used by the pipeline.
	Attachments []Attachment `json:"attachments,omitempty" yaml:"attachments,omitempty"`
}

var (
	errMissingBrief         = errors.New("brief is required")
	errMissingTask          = errors.New("task is required")
	errMissingNonce         = errors.New("nonce is required")
	errMissingEvaluationURL = errors.New("evaluation_url is required")
)

// Validate checks that the fields the pipeline depends on are present.
// It does not check the secret; authorization is the orchestrator's job.
func (r *TaskRequest) Validate() error {
	if strings.TrimSpace(r.Brief) == "" {
		return errMissingBrief
	}
	if strings.TrimSpace(r.Task) == "" {
		return errMissingTask
	}
	if strings.TrimSpace(r.Nonce) == "" {
		return errMissingNonce
	}
	if strings.TrimSpace(r.EvaluationURL) == "" {
		return errMissingEvaluationURL
	}
	u, err := url.Parse(r.EvaluationURL)
	if err != nil {
		return fmt.Errorf("evaluation_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("evaluation_url must be an absolute http(s) URL, got %q", r.EvaluationURL)
	}
	return nil
}

// Redacted returns a copy of the request with the secret cleared.
func (r TaskRequest) Redacted() TaskRequest {
	r.Secret = ""
	return r
}
