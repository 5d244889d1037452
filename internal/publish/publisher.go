// Package publish creates GitHub repositories for generated apps.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"

	"github.com/ShayCichocki/appforge/pkg/models"
)

var (
	// ErrRepositoryExists is returned when the derived name is already taken.
	ErrRepositoryExists = errors.New("repository already exists")
	// ErrPublishFailed is returned when any source-control call fails.
	ErrPublishFailed = errors.New("publish failed")
)

// rollbackTimeout bounds the repository delete after a failed commit.
const rollbackTimeout = 30 * time.Second

// PartialPublishError reports a repository left with only some files
// committed, either because rollback was disabled or because it failed.
type PartialPublishError struct {
	Repo      models.PublishedRepository
	Committed []string
	Err       error
}

func (e *PartialPublishError) Error() string {
	return fmt.Sprintf("partial publish of %s (committed: %s): %v",
		e.Repo.Name, strings.Join(e.Committed, ", "), e.Err)
}

// Unwrap exposes both the publish sentinel and the cause.
func (e *PartialPublishError) Unwrap() []error {
	return []error{ErrPublishFailed, e.Err}
}

// Options controls how files are committed.
type Options struct {
	// Atomic writes all files in one commit through the git data API.
	// When false each file is its own create-file commit.
	Atomic bool
	// Rollback deletes the repository if any step after creation fails.
	Rollback bool
	// EnablePages turns on GitHub Pages and verifies the pages URL.
	EnablePages bool
}

// Publisher creates repositories under the token owner's account.
type Publisher struct {
	gh   *github.Client
	opts Options
}

// NewClient builds a token-authenticated GitHub client. baseURL may be empty.
func NewClient(token, baseURL string, httpClient *http.Client) (*github.Client, error) {
	client := github.NewClient(httpClient).WithAuthToken(token)
	if baseURL == "" {
		return client, nil
	}

	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse github base url: %w", err)
	}
	client.BaseURL = u
	return client, nil
}

// NewPublisher creates a Publisher.
func NewPublisher(gh *github.Client, opts Options) *Publisher {
	return &Publisher{gh: gh, opts: opts}
}

// commitMessages mirror the per-file commit history of a hand-made repo.
var commitMessages = map[string]string{
	models.FileIndex:   "initial commit",
	models.FileReadme:  "add readme",
	models.FileLicense: "add license",
}

// Publish creates a public repository named name and commits files to it.
func (p *Publisher) Publish(ctx context.Context, name string, files []models.File) (models.PublishedRepository, error) {
	user, _, err := p.gh.Users.Get(ctx, "")
	if err != nil {
		return models.PublishedRepository{}, fmt.Errorf("%w: get account: %v", ErrPublishFailed, err)
	}
	owner := user.GetLogin()

	created, _, err := p.gh.Repositories.Create(ctx, "", &github.Repository{
		Name:        github.String(name),
		Private:     github.Bool(false),
		AutoInit:    github.Bool(p.opts.Atomic),
		Description: github.String("Generated project"),
	})
	if err != nil {
		if isNameTaken(err) {
			return models.PublishedRepository{}, fmt.Errorf("%w: %s/%s", ErrRepositoryExists, owner, name)
		}
		return models.PublishedRepository{}, fmt.Errorf("%w: create repository: %v", ErrPublishFailed, err)
	}
	log.Printf("[publish] created %s/%s", owner, name)

	repo := models.PublishedRepository{
		Name:       name,
		Owner:      owner,
		RepoURL:    RepoURL(owner, name),
		PagesURL:   PagesURL(owner, name),
		Visibility: models.VisibilityPublic,
	}
	branch := created.GetDefaultBranch()
	if branch == "" {
		branch = "main"
	}

	var committed []string
	if p.opts.Atomic {
		repo.CommitSHA, err = p.commitAtomic(ctx, owner, name, branch, files)
		if err == nil {
			committed = paths(files)
		}
	} else {
		repo.CommitSHA, committed, err = p.commitEach(ctx, owner, name, files)
	}
	if err != nil {
		return p.abandon(ctx, repo, committed, err)
	}

	if p.opts.EnablePages {
		p.enablePages(ctx, &repo, branch)
	}
	return repo, nil
}

// commitAtomic writes every file in a single commit on top of the
// auto-init commit.
func (p *Publisher) commitAtomic(ctx context.Context, owner, name, branch string, files []models.File) (string, error) {
	ref, _, err := p.gh.Git.GetRef(ctx, owner, name, "refs/heads/"+branch)
	if err != nil {
		return "", fmt.Errorf("get ref %s: %w", branch, err)
	}
	parentSHA := ref.GetObject().GetSHA()

	parent, _, err := p.gh.Git.GetCommit(ctx, owner, name, parentSHA)
	if err != nil {
		return "", fmt.Errorf("get commit %s: %w", parentSHA, err)
	}

	entries := make([]*github.TreeEntry, 0, len(files))
	for _, f := range files {
		entries = append(entries, &github.TreeEntry{
			Path:    github.String(f.Path),
			Mode:    github.String("100644"),
			Type:    github.String("blob"),
			Content: github.String(f.Content),
		})
	}
	tree, _, err := p.gh.Git.CreateTree(ctx, owner, name, parent.GetTree().GetSHA(), entries)
	if err != nil {
		return "", fmt.Errorf("create tree: %w", err)
	}

	commit, _, err := p.gh.Git.CreateCommit(ctx, owner, name, &github.Commit{
		Message: github.String("Add generated app"),
		Tree:    &github.Tree{SHA: tree.SHA},
		Parents: []*github.Commit{{SHA: github.String(parentSHA)}},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("create commit: %w", err)
	}

	_, _, err = p.gh.Git.UpdateRef(ctx, owner, name, &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: commit.SHA},
	}, false)
	if err != nil {
		return "", fmt.Errorf("update ref %s: %w", branch, err)
	}
	return commit.GetSHA(), nil
}

// commitEach creates one commit per file and reports which ones landed.
func (p *Publisher) commitEach(ctx context.Context, owner, name string, files []models.File) (string, []string, error) {
	var committed []string
	var sha string
	for _, f := range files {
		msg, ok := commitMessages[f.Path]
		if !ok {
			msg = "add " + f.Path
		}
		resp, _, err := p.gh.Repositories.CreateFile(ctx, owner, name, f.Path, &github.RepositoryContentFileOptions{
			Message: github.String(msg),
			Content: []byte(f.Content),
		})
		if err != nil {
			return sha, committed, fmt.Errorf("create %s: %w", f.Path, err)
		}
		sha = resp.Commit.GetSHA()
		committed = append(committed, f.Path)
	}
	return sha, committed, nil
}

// abandon rolls back or reports a repository whose file commits failed.
func (p *Publisher) abandon(ctx context.Context, repo models.PublishedRepository, committed []string, cause error) (models.PublishedRepository, error) {
	if !p.opts.Rollback {
		log.Printf("[publish] leaving partial repository %s/%s: %v", repo.Owner, repo.Name, cause)
		return repo, &PartialPublishError{Repo: repo, Committed: committed, Err: cause}
	}

	// The run context may be the reason the commit failed.
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	if _, err := p.gh.Repositories.Delete(delCtx, repo.Owner, repo.Name); err != nil {
		log.Printf("[publish] rollback of %s/%s failed, leaving partial repository: %v", repo.Owner, repo.Name, err)
		return repo, &PartialPublishError{
			Repo:      repo,
			Committed: committed,
			Err:       fmt.Errorf("%w (rollback failed: %v)", cause, err),
		}
	}
	log.Printf("[publish] rolled back %s/%s after: %v", repo.Owner, repo.Name, cause)
	return models.PublishedRepository{}, fmt.Errorf("%w: %w (repository deleted)", ErrPublishFailed, cause)
}

// enablePages turns on Pages for the branch root. Failure is not fatal;
// the derived URL stays and is marked unverified.
func (p *Publisher) enablePages(ctx context.Context, repo *models.PublishedRepository, branch string) {
	pages, _, err := p.gh.Repositories.EnablePages(ctx, repo.Owner, repo.Name, &github.Pages{
		Source: &github.PagesSource{
			Branch: github.String(branch),
			Path:   github.String("/"),
		},
	})
	if err != nil {
		log.Printf("[publish] pages not enabled for %s/%s: %v", repo.Owner, repo.Name, err)
		return
	}
	if u := pages.GetHTMLURL(); u != "" {
		repo.PagesURL = strings.TrimSuffix(u, "/")
	}
	repo.PagesVerified = true
}

// isNameTaken reports whether err is GitHub's "name already exists" validation failure.
func isNameTaken(err error) bool {
	var ghErr *github.ErrorResponse
	if !errors.As(err, &ghErr) || ghErr.Response == nil {
		return false
	}
	if ghErr.Response.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	for _, e := range ghErr.Errors {
		if strings.Contains(e.Message, "already exists") {
			return true
		}
	}
	return strings.Contains(ghErr.Message, "already exists")
}

func paths(files []models.File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}
