package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/appforge/pkg/models"
)

// callbackServer answers with statuses[i] for the i-th POST, repeating the last one.
type callbackServer struct {
	mu       sync.Mutex
	statuses []int
	posts    int
	bodies   []models.NotificationPayload
	ctype    string
}

func newCallbackServer(t *testing.T, statuses ...int) (*callbackServer, *httptest.Server) {
	t.Helper()
	cb := &callbackServer{statuses: statuses}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cb.mu.Lock()
		defer cb.mu.Unlock()
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var p models.NotificationPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		cb.bodies = append(cb.bodies, p)
		cb.ctype = r.Header.Get("Content-Type")
		i := cb.posts
		if i >= len(cb.statuses) {
			i = len(cb.statuses) - 1
		}
		cb.posts++
		w.WriteHeader(cb.statuses[i])
	}))
	t.Cleanup(srv.Close)
	return cb, srv
}

// recordSleeps returns a Sleeper that records waits without sleeping.
func recordSleeps(waits *[]time.Duration) Sleeper {
	return func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return ctx.Err()
	}
}

func testPayload() models.NotificationPayload {
	return models.NotificationPayload{
		Email:    "dev@example.com",
		Task:     "Todo App",
		Round:    1,
		Nonce:    "abc123",
		RepoURL:  "https://github.com/octo/llm-project-todo-app-abc123",
		PagesURL: "https://octo.github.io/llm-project-todo-app-abc123",
	}
}

func TestNotify_FirstAttemptSucceeds(t *testing.T) {
	cb, srv := newCallbackServer(t, http.StatusOK)
	var waits []time.Duration
	n := New(Config{Sleep: recordSleeps(&waits)})

	out, err := n.Notify(context.Background(), srv.URL, testPayload())
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if !out.Delivered || out.Attempts != 1 {
		t.Errorf("Outcome = %+v, want delivered on attempt 1", out)
	}
	if cb.posts != 1 {
		t.Errorf("posts = %d, want 1", cb.posts)
	}
	if len(waits) != 0 {
		t.Errorf("waits = %v, want none", waits)
	}
	if cb.ctype != "application/json" {
		t.Errorf("Content-Type = %q", cb.ctype)
	}
	if cb.bodies[0] != testPayload() {
		t.Errorf("payload = %+v, want %+v", cb.bodies[0], testPayload())
	}
}

func TestNotify_SucceedsOnFifthAttempt(t *testing.T) {
	cb, srv := newCallbackServer(t, 500, 500, 500, 500, 200)
	var waits []time.Duration
	n := New(Config{BackoffUnit: time.Millisecond, Sleep: recordSleeps(&waits)})

	out, err := n.Notify(context.Background(), srv.URL, testPayload())
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if cb.posts != 5 {
		t.Errorf("posts = %d, want 5", cb.posts)
	}
	if !out.Delivered || out.Attempts != 5 || out.LastStatus != 200 {
		t.Errorf("Outcome = %+v", out)
	}

	want := []time.Duration{1, 2, 4, 8}
	if len(waits) != len(want) {
		t.Fatalf("waits = %v, want %v ms", waits, want)
	}
	for i := range want {
		if waits[i] != want[i]*time.Millisecond {
			t.Errorf("wait[%d] = %v, want %v", i, waits[i], want[i]*time.Millisecond)
		}
	}
}

func TestNotify_NeverSucceeds(t *testing.T) {
	cb, srv := newCallbackServer(t, http.StatusServiceUnavailable)
	var waits []time.Duration
	n := New(Config{Sleep: recordSleeps(&waits)})

	out, err := n.Notify(context.Background(), srv.URL, testPayload())
	if !errors.Is(err, ErrNotificationFailed) {
		t.Fatalf("Notify() error = %v, want ErrNotificationFailed", err)
	}
	if cb.posts != 5 {
		t.Errorf("posts = %d, want 5", cb.posts)
	}
	if out.Delivered || out.Attempts != 5 || out.LastStatus != http.StatusServiceUnavailable {
		t.Errorf("Outcome = %+v", out)
	}
	if len(waits) != 4 {
		t.Errorf("waits = %v, want 4 waits between 5 attempts", waits)
	}
	var total time.Duration
	for _, w := range waits {
		total += w
	}
	if total != 15*time.Second {
		t.Errorf("total wait = %v, want 15s", total)
	}
}

func TestNotify_OnlyStatus200CountsAsSuccess(t *testing.T) {
	cb, srv := newCallbackServer(t, http.StatusAccepted, http.StatusCreated, http.StatusOK)
	var waits []time.Duration
	n := New(Config{Sleep: recordSleeps(&waits)})

	out, err := n.Notify(context.Background(), srv.URL, testPayload())
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if cb.posts != 3 || out.Attempts != 3 {
		t.Errorf("posts = %d, attempts = %d, want 3", cb.posts, out.Attempts)
	}
}

func TestNotify_TransportErrorsAreRetried(t *testing.T) {
	_, srv := newCallbackServer(t, http.StatusOK)
	url := srv.URL
	srv.Close()

	var waits []time.Duration
	n := New(Config{MaxAttempts: 3, Sleep: recordSleeps(&waits)})

	out, err := n.Notify(context.Background(), url, testPayload())
	if !errors.Is(err, ErrNotificationFailed) {
		t.Fatalf("Notify() error = %v, want ErrNotificationFailed", err)
	}
	if out.Attempts != 3 || out.LastStatus != 0 || out.LastError == "" {
		t.Errorf("Outcome = %+v", out)
	}
}

func TestNotify_ContextCancelledDuringBackoff(t *testing.T) {
	cb, srv := newCallbackServer(t, http.StatusInternalServerError)
	ctx, cancel := context.WithCancel(context.Background())
	n := New(Config{Sleep: func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}})

	_, err := n.Notify(ctx, srv.URL, testPayload())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Notify() error = %v, want context.Canceled", err)
	}
	if cb.posts != 1 {
		t.Errorf("posts = %d, want 1", cb.posts)
	}
}

func TestBackoff(t *testing.T) {
	n := New(Config{BackoffUnit: time.Second})

	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for i, w := range want {
		if got := n.Backoff(i + 1); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleepContext = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepContext on cancelled ctx = %v, want context.Canceled", err)
	}
}
