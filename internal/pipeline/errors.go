package pipeline

import (
	"errors"
	"fmt"

	"github.com/ShayCichocki/appforge/internal/generate"
	"github.com/ShayCichocki/appforge/internal/notify"
	"github.com/ShayCichocki/appforge/internal/publish"
)

var (
	// ErrUnauthorized is returned when the request secret does not match.
	ErrUnauthorized = errors.New("invalid secret")
	// ErrInvalidRequest is returned when a required request field is missing or malformed.
	ErrInvalidRequest = errors.New("invalid request")
)

// Step failures surfaced by Handle. Aliased so callers classify errors
// without importing every step package.
var (
	ErrGenerationFailed   = generate.ErrGenerationFailed
	ErrRepositoryExists   = publish.ErrRepositoryExists
	ErrPublishFailed      = publish.ErrPublishFailed
	ErrNotificationFailed = notify.ErrNotificationFailed
)

// Step names a stage of the pipeline.
type Step string

const (
	StepGenerate Step = "generate"
	StepStage    Step = "stage"
	StepPublish  Step = "publish"
	StepNotify   Step = "notify"
)

// StepError records which step aborted a run.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// FailedStep returns the step that produced err, or "" if err did not
// come from a step.
func FailedStep(err error) Step {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}
