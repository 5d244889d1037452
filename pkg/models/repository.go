package models

// VisibilityPublic is the only visibility the publisher creates.
const VisibilityPublic = "public"

// PublishedRepository describes a repository created for a task.
type PublishedRepository struct {
	// Name is derived from the task label and nonce.
	Name string `json:"name"`
	// Owner is the login of the account that owns the repository.
	Owner string `json:"owner"`
	// RepoURL is the repository web URL.
	RepoURL string `json:"repo_url"`
	// PagesURL is the static hosting URL for the repository.
	PagesURL string `json:"pages_url"`
	// PagesVerified is true when PagesURL came back from the pages API
	// rather than being derived from the owner and name.
	PagesVerified bool `json:"pages_verified"`
	// Visibility is always "public".
	Visibility string `json:"visibility"`
	// CommitSHA is the head commit after the files were written.
	CommitSHA string `json:"commit_sha,omitempty"`
}

// NotificationPayload is posted to the evaluation callback.
type NotificationPayload struct {
	Email    string `json:"email"`
	Task     string `json:"task"`
	Round    int    `json:"round"`
	Nonce    string `json:"nonce"`
	RepoURL  string `json:"repo_url"`
	PagesURL string `json:"pages_url"`
}

// NewNotificationPayload builds the callback payload for a published task.
func NewNotificationPayload(req TaskRequest, repo PublishedRepository) NotificationPayload {
	return NotificationPayload{
		Email:    req.Email,
		Task:     req.Task,
		Round:    req.Round,
		Nonce:    req.Nonce,
		RepoURL:  repo.RepoURL,
		PagesURL: repo.PagesURL,
	}
}

// Notification outcomes reported in an Acknowledgment.
const (
	NotificationDelivered = "delivered"
	NotificationFailed    = "failed"
	NotificationPending   = "pending"
)

// AckReceived is the status of every accepted request.
const AckReceived = "received"

// Acknowledgment is returned to the original caller.
type Acknowledgment struct {
	Status       string `json:"status,omitempty"`
	RunID        string `json:"run_id,omitempty"`
	RepoURL      string `json:"repo_url,omitempty"`
	PagesURL     string `json:"pages_url,omitempty"`
	Notification string `json:"notification,omitempty"`
	Error        string `json:"error,omitempty"`
}
