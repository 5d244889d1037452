package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/ShayCichocki/appforge/internal/config"
	"github.com/ShayCichocki/appforge/internal/notify"
	"github.com/ShayCichocki/appforge/internal/pipeline"
	"github.com/ShayCichocki/appforge/internal/stage"
	"github.com/ShayCichocki/appforge/internal/state"
	"github.com/ShayCichocki/appforge/pkg/models"
)

type slowGenerator struct {
	delay  time.Duration
	mu     sync.Mutex
	ctxErr error
}

func (g *slowGenerator) Generate(ctx context.Context, req models.TaskRequest) (models.GeneratedArtifact, error) {
	select {
	case <-time.After(g.delay):
	case <-ctx.Done():
	}
	g.mu.Lock()
	g.ctxErr = ctx.Err()
	g.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return models.GeneratedArtifact{}, err
	}
	return models.GeneratedArtifact{Content: "<html></html>", Readme: "# app", License: "MIT"}, nil
}

type stubPublisher struct{}

func (stubPublisher) Publish(ctx context.Context, name string, files []models.File) (models.PublishedRepository, error) {
	if err := ctx.Err(); err != nil {
		return models.PublishedRepository{}, err
	}
	return models.PublishedRepository{
		Name:     name,
		Owner:    "octo",
		RepoURL:  "https://github.com/octo/" + name,
		PagesURL: "https://octo.github.io/" + name,
	}, nil
}

type signalNotifier struct {
	once     sync.Once
	notified chan struct{}
}

func (n *signalNotifier) Notify(ctx context.Context, url string, payload models.NotificationPayload) (notify.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return notify.Outcome{}, err
	}
	n.once.Do(func() { close(n.notified) })
	return notify.Outcome{Attempts: 1, Delivered: true, LastStatus: http.StatusOK}, nil
}

func TestTask_SyncRunSurvivesClientDisconnect(t *testing.T) {
	journal, err := state.OpenMemory()
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer journal.Close()

	gen := &slowGenerator{delay: 300 * time.Millisecond}
	notifier := &signalNotifier{notified: make(chan struct{})}
	orch := pipeline.New(pipeline.Config{
		Generator: gen,
		Stager:    stage.New(afero.NewMemMapFs()),
		Publisher: stubPublisher{},
		Notifier:  notifier,
		Journal:   journal,
		Secrets:   config.NewSecretStore("s3cret"),
		Timeout:   time.Minute,
	})

	ts := httptest.NewServer(New(Config{Runner: orch, Runs: journal}).Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/task", strings.NewReader(taskBody))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if resp, err := ts.Client().Do(req); err == nil {
		resp.Body.Close()
		t.Fatal("expected the client to give up before the run finished")
	}

	select {
	case <-notifier.notified:
	case <-time.After(5 * time.Second):
		t.Fatal("evaluation callback was never notified after the client disconnected")
	}

	gen.mu.Lock()
	genErr := gen.ctxErr
	gen.mu.Unlock()
	if genErr != nil {
		t.Errorf("generator context error = %v, want nil", genErr)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		runs, err := journal.List(1)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(runs) == 1 && runs[0].Status == models.RunStatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run never completed: %+v", runs)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
