package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/ShayCichocki/appforge/pkg/models"
)

var (
	// ErrRunNotFound is returned when no run has the requested ID.
	ErrRunNotFound = errors.New("run not found")
	// ErrDuplicateRun is returned when a non-failed run already targets the same repository.
	ErrDuplicateRun = errors.New("run already exists for repository")
)

// RunStore records pipeline runs.
type RunStore interface {
	Begin(run *models.Run) error
	SetStatus(id string, status models.RunStatus) error
	Complete(id string, repo models.PublishedRepository, notification string) error
	Fail(id string, cause error) error
	Get(id string) (*models.Run, error)
	List(limit int) ([]models.Run, error)
	FindActive(repoName string) (*models.Run, error)
}

var _ RunStore = (*DB)(nil)

// Begin inserts a run unless another run that has not failed already
// targets the same repository name.
func (db *DB) Begin(run *models.Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = db.now()
	}
	if run.Status == "" {
		run.Status = models.RunStatusReceived
	}

	return db.Transaction(func(tx *sql.Tx) error {
		existing, err := findActive(tx, run.RepoName)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s (run %s)", ErrDuplicateRun, run.RepoName, existing.ID)
		case !errors.Is(err, ErrRunNotFound):
			return err
		}

		_, err = tx.Exec(`
			INSERT INTO runs (id, task, nonce, round, repo_name, status, started_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, run.ID, run.Task, run.Nonce, run.Round, run.RepoName, string(run.Status), formatTime(run.StartedAt))
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return prune(tx, db.retain)
	})
}

// prune deletes finished runs beyond the newest keep. In-flight runs are
// never pruned.
func prune(tx *sql.Tx, keep int) error {
	if keep <= 0 {
		return nil
	}
	done, failed := string(models.RunStatusCompleted), string(models.RunStatusFailed)
	res, err := tx.Exec(`
		DELETE FROM runs WHERE status IN (?, ?) AND rowid NOT IN (
			SELECT rowid FROM runs WHERE status IN (?, ?)
			ORDER BY started_at DESC, rowid DESC LIMIT ?
		)
	`, done, failed, done, failed, keep)
	if err != nil {
		return fmt.Errorf("prune runs: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		log.Printf("[state] pruned %d finished runs", n)
	}
	return nil
}

// SetStatus moves a run to a non-terminal stage.
func (db *DB) SetStatus(id string, status models.RunStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid run status %q", status)
	}
	return db.update(`UPDATE runs SET status = ? WHERE id = ?`, string(status), id)
}

// Complete marks a run as published.
func (db *DB) Complete(id string, repo models.PublishedRepository, notification string) error {
	return db.update(`
		UPDATE runs SET status = ?, repo_url = ?, pages_url = ?, notification = ?, finished_at = ?
		WHERE id = ?
	`, string(models.RunStatusCompleted), repo.RepoURL, repo.PagesURL, notification, formatTime(db.now()), id)
}

// Fail marks a run as failed with the given cause.
func (db *DB) Fail(id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return db.update(`
		UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?
	`, string(models.RunStatusFailed), msg, formatTime(db.now()), id)
}

func (db *DB) update(query string, args ...any) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

const runColumns = `id, task, nonce, round, repo_name, status, repo_url, pages_url, notification, error, started_at, finished_at`

// Get retrieves a run by ID.
func (db *DB) Get(id string) (*models.Run, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	return scanOne(row)
}

// List returns the most recent runs, newest first.
func (db *DB) List(limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 20
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// FindActive returns the run targeting repoName that is in flight or
// completed, or ErrRunNotFound.
func (db *DB) FindActive(repoName string) (*models.Run, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`
		SELECT `+runColumns+` FROM runs WHERE repo_name = ? AND status != ? LIMIT 1
	`, repoName, string(models.RunStatusFailed))
	return scanOne(row)
}

func findActive(tx *sql.Tx, repoName string) (*models.Run, error) {
	row := tx.QueryRow(`
		SELECT `+runColumns+` FROM runs WHERE repo_name = ? AND status != ? LIMIT 1
	`, repoName, string(models.RunStatusFailed))
	return scanOne(row)
}

func scanOne(row *sql.Row) (*models.Run, error) {
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*models.Run, error) {
	var (
		run                                    models.Run
		status, startedAt                      string
		repoURL, pagesURL, notification, cause sql.NullString
		finishedAt                             sql.NullString
	)
	err := s.Scan(&run.ID, &run.Task, &run.Nonce, &run.Round, &run.RepoName, &status,
		&repoURL, &pagesURL, &notification, &cause, &startedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	run.Status = models.RunStatus(status)
	run.RepoURL = repoURL.String
	run.PagesURL = pagesURL.String
	run.Notification = notification.String
	run.Error = cause.String
	run.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	run.FinishedAt = parseNullableTime(finishedAt)
	return &run, nil
}
