package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/ShayCichocki/appforge/internal/config"
	"github.com/ShayCichocki/appforge/internal/notify"
	"github.com/ShayCichocki/appforge/internal/stage"
	"github.com/ShayCichocki/appforge/internal/state"
	"github.com/ShayCichocki/appforge/pkg/models"
)

const testSecret = "s3cret"

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeGenerator) Generate(ctx context.Context, req models.TaskRequest) (models.GeneratedArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return models.GeneratedArtifact{}, f.err
	}
	return models.GeneratedArtifact{
		Content: "<html>" + req.Brief + "</html>",
		Readme:  "# " + req.Task,
		License: "MIT",
	}, nil
}

type fakePublisher struct {
	mu    sync.Mutex
	calls int
	name  string
	files []models.File
	err   error
}

func (f *fakePublisher) Publish(ctx context.Context, name string, files []models.File) (models.PublishedRepository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.name = name
	f.files = files
	if f.err != nil {
		return models.PublishedRepository{}, f.err
	}
	return models.PublishedRepository{
		Name:       name,
		Owner:      "octo",
		RepoURL:    "https://github.com/octo/" + name,
		PagesURL:   "https://octo.github.io/" + name,
		Visibility: models.VisibilityPublic,
	}, nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	calls   int
	url     string
	payload models.NotificationPayload
	err     error
}

func (f *fakeNotifier) Notify(ctx context.Context, url string, payload models.NotificationPayload) (notify.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.url = url
	f.payload = payload
	if f.err != nil {
		return notify.Outcome{Attempts: 5}, f.err
	}
	return notify.Outcome{Attempts: 1, Delivered: true, LastStatus: 200}, nil
}

type harness struct {
	gen     *fakeGenerator
	pub     *fakePublisher
	notif   *fakeNotifier
	journal *state.DB
	orch    *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	journal, err := state.OpenMemory()
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { journal.Close() })

	h := &harness{
		gen:     &fakeGenerator{},
		pub:     &fakePublisher{},
		notif:   &fakeNotifier{},
		journal: journal,
	}
	h.orch = New(Config{
		Generator: h.gen,
		Stager:    stage.New(afero.NewMemMapFs()),
		Publisher: h.pub,
		Notifier:  h.notif,
		Journal:   journal,
		Secrets:   config.NewSecretStore(testSecret),
		Timeout:   time.Minute,
	})
	return h
}

func (h *harness) counts() (int, int, int) {
	return h.gen.calls, h.pub.calls, h.notif.calls
}

func validRequest() models.TaskRequest {
	return models.TaskRequest{
		Secret:        testSecret,
		Brief:         "A todo list",
		Task:          "Todo App",
		Email:         "dev@example.com",
		EvaluationURL: "https://eval.example.com/notify",
		Round:         1,
		Nonce:         "abc123",
	}
}

func TestHandle_HappyPath(t *testing.T) {
	h := newHarness(t)

	res, err := h.orch.Handle(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if g, p, n := h.counts(); g != 1 || p != 1 || n != 1 {
		t.Errorf("calls = generate %d, publish %d, notify %d; want 1 each", g, p, n)
	}
	if h.pub.name != "llm-project-todo-app-abc123" {
		t.Errorf("published name = %q", h.pub.name)
	}
	var paths []string
	for _, f := range h.pub.files {
		paths = append(paths, f.Path)
	}
	if got := strings.Join(paths, ","); got != "index.html,README.md,LICENSE" {
		t.Errorf("published files = %s", got)
	}
	if h.pub.files[0].Content != "<html>A todo list</html>" {
		t.Errorf("index.html = %q", h.pub.files[0].Content)
	}

	if h.notif.url != "https://eval.example.com/notify" {
		t.Errorf("notify url = %q", h.notif.url)
	}
	want := models.NotificationPayload{
		Email:    "dev@example.com",
		Task:     "Todo App",
		Round:    1,
		Nonce:    "abc123",
		RepoURL:  "https://github.com/octo/llm-project-todo-app-abc123",
		PagesURL: "https://octo.github.io/llm-project-todo-app-abc123",
	}
	if h.notif.payload != want {
		t.Errorf("payload = %+v, want %+v", h.notif.payload, want)
	}

	ack := res.Ack()
	if ack.Status != models.AckReceived || ack.Notification != models.NotificationDelivered {
		t.Errorf("Ack = %+v", ack)
	}
	if ack.RunID == "" || ack.RepoURL != want.RepoURL || ack.PagesURL != want.PagesURL {
		t.Errorf("Ack = %+v", ack)
	}

	run, err := h.journal.Get(res.RunID)
	if err != nil {
		t.Fatalf("journal Get: %v", err)
	}
	if run.Status != models.RunStatusCompleted || run.Notification != models.NotificationDelivered {
		t.Errorf("journal run = %+v", run)
	}
}

func TestHandle_BadSecretMakesNoCalls(t *testing.T) {
	for _, secret := range []string{"", "wrong", testSecret + " "} {
		t.Run(fmt.Sprintf("%q", secret), func(t *testing.T) {
			h := newHarness(t)
			req := validRequest()
			req.Secret = secret

			_, err := h.orch.Handle(context.Background(), req)
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("Handle() error = %v, want ErrUnauthorized", err)
			}
			if g, p, n := h.counts(); g+p+n != 0 {
				t.Errorf("calls = %d/%d/%d, want none", g, p, n)
			}
			runs, _ := h.journal.List(10)
			if len(runs) != 0 {
				t.Errorf("unauthorized request was journaled: %+v", runs)
			}
		})
	}
}

func TestHandle_AuthorizationBeforeValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.Handle(context.Background(), models.TaskRequest{Secret: "wrong"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Handle() error = %v, want ErrUnauthorized", err)
	}
}

func TestHandle_InvalidRequest(t *testing.T) {
	h := newHarness(t)
	req := validRequest()
	req.EvaluationURL = "not a url"

	_, err := h.orch.Handle(context.Background(), req)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("Handle() error = %v, want ErrInvalidRequest", err)
	}
	if g, p, n := h.counts(); g+p+n != 0 {
		t.Errorf("calls = %d/%d/%d, want none", g, p, n)
	}
}

func TestHandle_GenerationFailureStopsPipeline(t *testing.T) {
	h := newHarness(t)
	h.gen.err = fmt.Errorf("%w: model timeout", ErrGenerationFailed)

	res, err := h.orch.Handle(context.Background(), validRequest())
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("Handle() error = %v, want ErrGenerationFailed", err)
	}
	if FailedStep(err) != StepGenerate {
		t.Errorf("FailedStep = %q, want generate", FailedStep(err))
	}
	if _, p, n := h.counts(); p != 0 || n != 0 {
		t.Errorf("publish %d, notify %d after generation failure; want 0", p, n)
	}

	run, _ := h.journal.Get(res.RunID)
	if run == nil || run.Status != models.RunStatusFailed {
		t.Errorf("journal run = %+v, want failed", run)
	}
}

func TestHandle_PublishFailureSkipsNotify(t *testing.T) {
	h := newHarness(t)
	h.pub.err = fmt.Errorf("%w: create repository: 500", ErrPublishFailed)

	_, err := h.orch.Handle(context.Background(), validRequest())
	if !errors.Is(err, ErrPublishFailed) {
		t.Fatalf("Handle() error = %v, want ErrPublishFailed", err)
	}
	if FailedStep(err) != StepPublish {
		t.Errorf("FailedStep = %q, want publish", FailedStep(err))
	}
	if h.notif.calls != 0 {
		t.Errorf("notify calls = %d, want 0", h.notif.calls)
	}
}

func TestHandle_StageFailure(t *testing.T) {
	h := newHarness(t)
	h.orch.stager = stage.New(afero.NewReadOnlyFs(afero.NewMemMapFs()))

	_, err := h.orch.Handle(context.Background(), validRequest())
	if FailedStep(err) != StepStage {
		t.Fatalf("Handle() error = %v, want stage failure", err)
	}
	if h.pub.calls != 0 {
		t.Errorf("publish calls = %d, want 0", h.pub.calls)
	}
}

func TestHandle_NotificationFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.notif.err = fmt.Errorf("%w: 5 attempts", ErrNotificationFailed)

	res, err := h.orch.Handle(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if res.Notification != models.NotificationFailed {
		t.Errorf("Notification = %q, want failed", res.Notification)
	}
	if res.Repository.RepoURL == "" {
		t.Error("repository should still be reported")
	}

	run, _ := h.journal.Get(res.RunID)
	if run.Status != models.RunStatusCompleted || run.Notification != models.NotificationFailed {
		t.Errorf("journal run = %+v", run)
	}
}

func TestHandle_DuplicateSubmission(t *testing.T) {
	h := newHarness(t)

	if _, err := h.orch.Handle(context.Background(), validRequest()); err != nil {
		t.Fatalf("first Handle failed: %v", err)
	}

	req := validRequest()
	req.Task = "todo app"
	_, err := h.orch.Handle(context.Background(), req)
	if !errors.Is(err, ErrRepositoryExists) {
		t.Fatalf("second Handle error = %v, want ErrRepositoryExists", err)
	}
	if h.pub.calls != 1 {
		t.Errorf("publish calls = %d, want 1", h.pub.calls)
	}

	req.Nonce = "def456"
	if _, err := h.orch.Handle(context.Background(), req); err != nil {
		t.Errorf("different nonce should run: %v", err)
	}
}

func TestHandle_RetryAfterFailure(t *testing.T) {
	h := newHarness(t)
	h.gen.err = ErrGenerationFailed

	if _, err := h.orch.Handle(context.Background(), validRequest()); err == nil {
		t.Fatal("expected failure")
	}

	h.gen.err = nil
	if _, err := h.orch.Handle(context.Background(), validRequest()); err != nil {
		t.Errorf("retry after failure: %v", err)
	}
}

func TestAccept_RedactsSecret(t *testing.T) {
	h := newHarness(t)

	ticket, err := h.orch.Accept(validRequest())
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if ticket.Request.Secret != "" {
		t.Error("ticket retains the secret")
	}
	if ticket.RepoName != "llm-project-todo-app-abc123" {
		t.Errorf("RepoName = %q", ticket.RepoName)
	}
	run, err := h.journal.Get(ticket.RunID)
	if err != nil || run.Status != models.RunStatusReceived {
		t.Errorf("journal run = %+v, err = %v", run, err)
	}
}

func TestExecute_EmitsEvents(t *testing.T) {
	h := newHarness(t)
	events := NewEventEmitter(32)
	h.orch.events = events

	if _, err := h.orch.Handle(context.Background(), validRequest()); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	events.Close()

	var got []string
	for e := range events.Events() {
		got = append(got, fmt.Sprintf("%s:%s", e.Type, e.Step))
	}
	want := []string{
		"run_started:",
		"step_started:generate", "step_completed:generate",
		"step_started:stage", "step_completed:stage",
		"step_started:publish", "step_completed:publish",
		"step_started:notify", "step_completed:notify",
		"run_completed:",
	}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("events =\n%v\nwant\n%v", got, want)
	}
}

func TestExecute_Timeout(t *testing.T) {
	h := newHarness(t)
	h.orch.timeout = time.Millisecond
	h.orch.generator = generatorFunc(func(ctx context.Context, req models.TaskRequest) (models.GeneratedArtifact, error) {
		<-ctx.Done()
		return models.GeneratedArtifact{}, fmt.Errorf("%w: %v", ErrGenerationFailed, ctx.Err())
	})

	_, err := h.orch.Handle(context.Background(), validRequest())
	if !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("Handle() error = %v, want ErrGenerationFailed", err)
	}
}

type generatorFunc func(ctx context.Context, req models.TaskRequest) (models.GeneratedArtifact, error)

func (f generatorFunc) Generate(ctx context.Context, req models.TaskRequest) (models.GeneratedArtifact, error) {
	return f(ctx, req)
}

func TestNew_Defaults(t *testing.T) {
	o := New(Config{})
	if o.Timeout() != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", o.Timeout(), DefaultTimeout)
	}
	if _, err := o.Accept(validRequest()); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Accept without secrets = %v, want ErrUnauthorized", err)
	}
}
