// Package pipeline runs one task request through generation, publishing,
// and notification.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/appforge/internal/notify"
	"github.com/ShayCichocki/appforge/internal/publish"
	"github.com/ShayCichocki/appforge/internal/stage"
	"github.com/ShayCichocki/appforge/internal/state"
	"github.com/ShayCichocki/appforge/pkg/models"
)

// DefaultTimeout bounds a whole run when Config.Timeout is unset.
const DefaultTimeout = 10 * time.Minute

// Generator produces the app files for a request.
type Generator interface {
	Generate(ctx context.Context, req models.TaskRequest) (models.GeneratedArtifact, error)
}

// Publisher creates the repository and commits the files.
type Publisher interface {
	Publish(ctx context.Context, name string, files []models.File) (models.PublishedRepository, error)
}

// Notifier reports the published repository to the evaluation callback.
type Notifier interface {
	Notify(ctx context.Context, url string, payload models.NotificationPayload) (notify.Outcome, error)
}

// Authorizer checks the shared verification secret.
type Authorizer interface {
	Match(candidate string) bool
}

// Config contains the collaborators of an Orchestrator.
type Config struct {
	Generator Generator
	Stager    *stage.Stager
	Publisher Publisher
	Notifier  Notifier
	Journal   state.RunStore
	Secrets   Authorizer
	// Timeout bounds a whole run. Defaults to DefaultTimeout.
	Timeout time.Duration
	// Events receives progress events. If nil, no events are emitted.
	Events *EventEmitter
}

// Orchestrator runs the fixed generate, stage, publish, notify sequence.
type Orchestrator struct {
	generator Generator
	stager    *stage.Stager
	publisher Publisher
	notifier  Notifier
	journal   state.RunStore
	secrets   Authorizer
	timeout   time.Duration
	events    *EventEmitter
}

// Ticket is an accepted request waiting to be executed.
type Ticket struct {
	RunID    string
	RepoName string
	Request  models.TaskRequest
}

// Result is the outcome of a run that reached the notify step.
type Result struct {
	RunID        string
	Repository   models.PublishedRepository
	Notification string
	Outcome      notify.Outcome
}

// Ack converts the result into the caller acknowledgment.
func (r Result) Ack() models.Acknowledgment {
	return models.Acknowledgment{
		Status:       models.AckReceived,
		RunID:        r.RunID,
		RepoURL:      r.Repository.RepoURL,
		PagesURL:     r.Repository.PagesURL,
		Notification: r.Notification,
	}
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	stager := cfg.Stager
	if stager == nil {
		stager = stage.NewOS()
	}
	return &Orchestrator{
		generator: cfg.Generator,
		stager:    stager,
		publisher: cfg.Publisher,
		notifier:  cfg.Notifier,
		journal:   cfg.Journal,
		secrets:   cfg.Secrets,
		timeout:   timeout,
		events:    cfg.Events,
	}
}

// Timeout returns the bound applied to each run.
func (o *Orchestrator) Timeout() time.Duration {
	return o.timeout
}

// Handle authorizes, validates, and runs a request to completion.
func (o *Orchestrator) Handle(ctx context.Context, req models.TaskRequest) (Result, error) {
	ticket, err := o.Accept(req)
	if err != nil {
		return Result{}, err
	}
	return o.Execute(ctx, ticket)
}

// Accept performs every check that needs no external call: the secret,
// the required fields, and the duplicate-submission guard. On success the
// run is recorded with status received.
func (o *Orchestrator) Accept(req models.TaskRequest) (*Ticket, error) {
	if o.secrets == nil || !o.secrets.Match(req.Secret) {
		log.Printf("[pipeline] rejected task %q: invalid secret", req.Task)
		return nil, ErrUnauthorized
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	ticket := &Ticket{
		RunID:    uuid.New().String(),
		RepoName: publish.RepoName(req.Task, req.Nonce),
		Request:  req.Redacted(),
	}

	if o.journal != nil {
		err := o.journal.Begin(&models.Run{
			ID:       ticket.RunID,
			Task:     req.Task,
			Nonce:    req.Nonce,
			Round:    req.Round,
			RepoName: ticket.RepoName,
		})
		if errors.Is(err, state.ErrDuplicateRun) {
			return nil, fmt.Errorf("%w: %v", ErrRepositoryExists, err)
		}
		if err != nil {
			return nil, fmt.Errorf("record run: %w", err)
		}
	}

	log.Printf("[pipeline] run %s: accepted task %q round %d as %s",
		ticket.RunID, req.Task, req.Round, ticket.RepoName)
	o.emit(Event{Type: EventRunStarted, RunID: ticket.RunID, Message: ticket.RepoName})
	return ticket, nil
}

// Execute runs the steps for an accepted ticket. Any failure before the
// notify step aborts the run with a *StepError. A failed notification is
// reported in the result and does not fail the run.
func (o *Orchestrator) Execute(ctx context.Context, t *Ticket) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	req := t.Request
	result := Result{RunID: t.RunID}

	o.begin(t, StepGenerate, models.RunStatusGenerating)
	artifact, err := o.generator.Generate(ctx, req)
	if err != nil {
		return result, o.fail(t, StepGenerate, err)
	}
	o.done(t, StepGenerate, fmt.Sprintf("%d bytes", len(artifact.Content)))

	o.begin(t, StepStage, "")
	area, err := o.stager.Stage("appforge-"+t.RepoName+"-", artifact.Files())
	if err != nil {
		return result, o.fail(t, StepStage, err)
	}
	defer func() {
		if err := area.Cleanup(); err != nil {
			log.Printf("[pipeline] run %s: cleanup %s: %v", t.RunID, area.Dir(), err)
		}
	}()
	files, err := area.Files()
	if err != nil {
		return result, o.fail(t, StepStage, err)
	}
	o.done(t, StepStage, area.Dir())

	o.begin(t, StepPublish, models.RunStatusPublishing)
	repo, err := o.publisher.Publish(ctx, t.RepoName, files)
	if err != nil {
		return result, o.fail(t, StepPublish, err)
	}
	result.Repository = repo
	o.done(t, StepPublish, repo.RepoURL)

	o.begin(t, StepNotify, models.RunStatusNotifying)
	outcome, err := o.notifier.Notify(ctx, req.EvaluationURL, models.NewNotificationPayload(req, repo))
	result.Outcome = outcome
	if err != nil {
		result.Notification = models.NotificationFailed
		log.Printf("[pipeline] run %s: notification failed, repository kept: %v", t.RunID, err)
		o.emit(Event{Type: EventStepFailed, RunID: t.RunID, Step: StepNotify, Err: err})
	} else {
		result.Notification = models.NotificationDelivered
		o.done(t, StepNotify, fmt.Sprintf("%d attempt(s)", outcome.Attempts))
	}

	if o.journal != nil {
		if err := o.journal.Complete(t.RunID, repo, result.Notification); err != nil {
			log.Printf("[pipeline] run %s: journal: %v", t.RunID, err)
		}
	}

	log.Printf("[pipeline] run %s: completed in %s (%s, notification %s)",
		t.RunID, time.Since(start).Round(time.Millisecond), repo.RepoURL, result.Notification)
	o.emit(Event{Type: EventRunCompleted, RunID: t.RunID, Message: result.Notification})
	return result, nil
}

func (o *Orchestrator) begin(t *Ticket, step Step, status models.RunStatus) {
	if status != "" && o.journal != nil {
		if err := o.journal.SetStatus(t.RunID, status); err != nil {
			log.Printf("[pipeline] run %s: journal: %v", t.RunID, err)
		}
	}
	o.emit(Event{Type: EventStepStarted, RunID: t.RunID, Step: step})
}

func (o *Orchestrator) done(t *Ticket, step Step, msg string) {
	o.emit(Event{Type: EventStepCompleted, RunID: t.RunID, Step: step, Message: msg})
}

func (o *Orchestrator) fail(t *Ticket, step Step, err error) error {
	stepErr := &StepError{Step: step, Err: err}
	log.Printf("[pipeline] run %s: %v", t.RunID, stepErr)
	if o.journal != nil {
		if jerr := o.journal.Fail(t.RunID, stepErr); jerr != nil {
			log.Printf("[pipeline] run %s: journal: %v", t.RunID, jerr)
		}
	}
	o.emit(Event{Type: EventStepFailed, RunID: t.RunID, Step: step, Err: err})
	return stepErr
}

func (o *Orchestrator) emit(e Event) {
	if o.events != nil {
		o.events.Emit(e)
	}
}
