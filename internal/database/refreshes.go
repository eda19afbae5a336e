package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RefreshStatus is the lifecycle state of a recorded refresh.
type RefreshStatus string

const (
	RefreshStatusRunning   RefreshStatus = "running"
	RefreshStatusCompleted RefreshStatus = "completed"
	RefreshStatusFailed    RefreshStatus = "failed"
)

// Refresh sources
const (
	SourceCLI     = "cli"
	SourceWebhook = "webhook"
	SourceWatcher = "watcher"
)

// Refresh is one recorded refresh attempt.
type Refresh struct {
	ID              string        `json:"id"`
	Source          string        `json:"source"`
	FilePath        string        `json:"file_path"`
	RemotePath      string        `json:"remote_path,omitempty"`
	Status          RefreshStatus `json:"status"`
	FolderRefreshed bool          `json:"folder_refreshed"`
	ItemRefreshed   bool          `json:"item_refreshed"`
	RatingKey       string        `json:"rating_key,omitempty"`
	Strategy        string        `json:"strategy,omitempty"`
	DiagnosticLog   string        `json:"diagnostic_log,omitempty"`
	Error           string        `json:"error,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
}

// Duration returns how long the refresh took, or 0 while it is running.
func (r *Refresh) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.CreatedAt)
}

const refreshColumns = `id, source, file_path, remote_path, status, folder_refreshed, item_refreshed,
	rating_key, strategy, diagnostic_log, error, created_at, completed_at`

// CreateRefresh records the start of a refresh and assigns its ID.
func (db *DB) CreateRefresh(r *Refresh) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = RefreshStatusRunning
	}
	r.CreatedAt = time.Now().UTC()

	_, err := db.Exec(`
		INSERT INTO refreshes (id, source, file_path, remote_path, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.Source, r.FilePath, nullable(r.RemotePath), r.Status, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create refresh: %w", err)
	}
	return nil
}

// CompleteRefresh stores the outcome of a refresh. The status is derived
// from ItemRefreshed and Error.
func (db *DB) CompleteRefresh(r *Refresh) error {
	now := time.Now().UTC()
	r.CompletedAt = &now
	if r.ItemRefreshed && r.Error == "" {
		r.Status = RefreshStatusCompleted
	} else {
		r.Status = RefreshStatusFailed
	}

	result, err := db.Exec(`
		UPDATE refreshes
		SET remote_path = ?, status = ?, folder_refreshed = ?, item_refreshed = ?, rating_key = ?,
			strategy = ?, diagnostic_log = ?, error = ?, completed_at = ?
		WHERE id = ?
	`, nullable(r.RemotePath), r.Status, r.FolderRefreshed, r.ItemRefreshed, nullable(r.RatingKey),
		nullable(r.Strategy), nullable(r.DiagnosticLog), nullable(r.Error), now, r.ID)
	if err != nil {
		return fmt.Errorf("failed to complete refresh: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("refresh not found: %s", r.ID)
	}
	return nil
}

// GetRefresh retrieves a refresh by ID. It returns nil when no row matches.
func (db *DB) GetRefresh(id string) (*Refresh, error) {
	row := db.QueryRow(`SELECT `+refreshColumns+` FROM refreshes WHERE id = ?`, id)
	r, err := scanRefresh(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh: %w", err)
	}
	return r, nil
}

// ListRecentRefreshes returns the newest refreshes first.
func (db *DB) ListRecentRefreshes(limit int) ([]*Refresh, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT `+refreshColumns+`
		FROM refreshes
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent refreshes: %w", err)
	}
	defer rows.Close()

	var refreshes []*Refresh
	for rows.Next() {
		r, err := scanRefresh(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		refreshes = append(refreshes, r)
	}
	return refreshes, rows.Err()
}

// CleanupRefreshes deletes finished refreshes older than the given age.
func (db *DB) CleanupRefreshes(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := db.Exec(`DELETE FROM refreshes WHERE created_at < ? AND status != ?`, cutoff, RefreshStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old refreshes: %w", err)
	}
	return result.RowsAffected()
}

// FailRunningRefreshes marks refreshes left running by an interrupted
// process as failed.
func (db *DB) FailRunningRefreshes() (int64, error) {
	result, err := db.Exec(`UPDATE refreshes SET status = ?, error = ?, completed_at = ? WHERE status = ?`,
		RefreshStatusFailed, "interrupted", time.Now().UTC(), RefreshStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to reset running refreshes: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRefresh(row rowScanner) (*Refresh, error) {
	r := &Refresh{}
	var remotePath, ratingKey, strategy, diagnosticLog, errMsg sql.NullString
	var completedAt sql.NullTime

	if err := row.Scan(&r.ID, &r.Source, &r.FilePath, &remotePath, &r.Status, &r.FolderRefreshed, &r.ItemRefreshed,
		&ratingKey, &strategy, &diagnosticLog, &errMsg, &r.CreatedAt, &completedAt); err != nil {
		return nil, err
	}

	// Invalid NullStrings carry "", which is what an unset field holds.
	r.RemotePath = remotePath.String
	r.RatingKey = ratingKey.String
	r.Strategy = strategy.String
	r.DiagnosticLog = diagnosticLog.String
	r.Error = errMsg.String
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	return r, nil
}

// nullable stores empty strings as NULL.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
