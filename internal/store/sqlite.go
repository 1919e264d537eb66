package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store is the local SQLite journal backing a workstation install. It keeps
// draft snapshots for crash recovery, a per-case activity trail, and the
// recently opened case list. Nothing here is authoritative; the remote store
// always wins.
type Store struct {
	db *sql.DB
}

// Snapshot is one journaled copy of a draft at a point in time.
type Snapshot struct {
	ID         int64     `json:"id"`
	ReportID   string    `json:"report_id"`
	CaseID     int       `json:"case_id"`
	Generation uint64    `json:"generation"`
	Content    string    `json:"content"`
	Language   string    `json:"language"`
	Saved      bool      `json:"saved"`
	CreatedAt  time.Time `json:"created_at"`
}

// Activity is one recorded session action.
type Activity struct {
	ID        int64     `json:"id"`
	CaseID    int       `json:"case_id"`
	ReportID  string    `json:"report_id,omitempty"`
	Action    string    `json:"action"` // "open", "save", "submit", "flag", "upload"
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RecentCase is an entry in the recently opened list.
type RecentCase struct {
	CaseID     int       `json:"case_id"`
	Title      string    `json:"title"`
	OpenCount  int       `json:"open_count"`
	LastOpened time.Time `json:"last_opened"`
}

// NewStore creates a new SQLite store instance
func NewStore(dbPath string) (*Store, error) {
	// Ensure target directory exists (e.g., ~/.radcase)
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open(sqliteDriver, dbPath+"?_journal_mode=WAL&_foreign_keys=off")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate performs database migrations
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			report_id TEXT NOT NULL,
			case_id INTEGER NOT NULL,
			generation INTEGER NOT NULL,
			content TEXT,
			language TEXT NOT NULL DEFAULT 'en',
			saved INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS activity (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			case_id INTEGER NOT NULL,
			report_id TEXT,
			action TEXT NOT NULL,
			detail TEXT,
			created_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS recent_cases (
			case_id INTEGER PRIMARY KEY,
			title TEXT NOT NULL,
			open_count INTEGER NOT NULL DEFAULT 1,
			last_opened INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_snapshots_report ON snapshots(report_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_case ON activity(case_id, id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// RecordSnapshot journals a draft copy. saved marks whether the remote store
// had confirmed this content at the time of the snapshot.
func (s *Store) RecordSnapshot(ctx context.Context, reportID string, caseID int, generation uint64, content, language string, saved bool) error {
	if reportID == "" {
		return nil // nothing stable to key on yet
	}
	savedInt := 0
	if saved {
		savedInt = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (report_id, case_id, generation, content, language, saved, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		reportID, caseID, generation, content, language, savedInt, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record snapshot: %w", err)
	}
	return s.PruneSnapshots(ctx, reportID, snapshotKeep)
}

// snapshotKeep bounds the per-report journal so an editing session cannot
// grow the database without limit.
const snapshotKeep = 20

// RecoverDraft returns the newest snapshot's text for a report, if any.
func (s *Store) RecoverDraft(ctx context.Context, reportID string) (string, string, bool, error) {
	snap, err := s.LatestSnapshot(ctx, reportID)
	if err != nil || snap == nil {
		return "", "", false, err
	}
	return snap.Content, snap.Language, true, nil
}

// RecordAction appends one entry to the case's activity trail.
func (s *Store) RecordAction(ctx context.Context, caseID int, reportID, action, detail string) error {
	return s.RecordActivity(ctx, Activity{CaseID: caseID, ReportID: reportID, Action: action, Detail: detail})
}

// LatestSnapshot returns the newest journaled copy for a report.
func (s *Store) LatestSnapshot(ctx context.Context, reportID string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, report_id, case_id, generation, content, language, saved, created_at
		 FROM snapshots WHERE report_id = ? ORDER BY id DESC LIMIT 1`, reportID)

	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return snap, nil
}

// UnsavedDrafts returns, per report, the newest snapshot when that snapshot
// was never confirmed by the remote store. These are the drafts worth
// offering for recovery after a crash.
func (s *Store) UnsavedDrafts(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sn.id, sn.report_id, sn.case_id, sn.generation, sn.content, sn.language, sn.saved, sn.created_at
		 FROM snapshots sn
		 JOIN (SELECT report_id, MAX(id) AS max_id FROM snapshots GROUP BY report_id) latest
		   ON sn.id = latest.max_id
		 WHERE sn.saved = 0
		 ORDER BY sn.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsaved drafts: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

// PruneSnapshots trims a report's journal down to the newest keep entries.
func (s *Store) PruneSnapshots(ctx context.Context, reportID string, keep int) error {
	if keep < 1 {
		keep = 1
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE report_id = ? AND id NOT IN (
			SELECT id FROM snapshots WHERE report_id = ? ORDER BY id DESC LIMIT ?
		)`, reportID, reportID, keep)
	if err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var snap Snapshot
	var saved int
	var created int64
	err := row.Scan(&snap.ID, &snap.ReportID, &snap.CaseID, &snap.Generation,
		&snap.Content, &snap.Language, &saved, &created)
	if err != nil {
		return nil, err
	}
	snap.Saved = saved != 0
	snap.CreatedAt = time.Unix(created, 0)
	return &snap, nil
}

// RecordActivity appends one action to the case trail.
func (s *Store) RecordActivity(ctx context.Context, entry Activity) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity (case_id, report_id, action, detail, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.CaseID, entry.ReportID, entry.Action, entry.Detail, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// ListActivity returns the newest entries for a case, newest first.
func (s *Store) ListActivity(ctx context.Context, caseID, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, case_id, report_id, action, detail, created_at
		 FROM activity WHERE case_id = ? ORDER BY id DESC LIMIT ?`, caseID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var a Activity
		var reportID, detail sql.NullString
		var created int64
		if err := rows.Scan(&a.ID, &a.CaseID, &reportID, &a.Action, &detail, &created); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		a.ReportID = reportID.String
		a.Detail = detail.String
		a.CreatedAt = time.Unix(created, 0)
		out = append(out, a)
	}
	return out, rows.Err()
}

// TouchRecentCase records that a case was opened, bumping its count.
func (s *Store) TouchRecentCase(ctx context.Context, caseID int, title string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recent_cases (case_id, title, open_count, last_opened)
		 VALUES (?, ?, 1, ?)
		 ON CONFLICT(case_id) DO UPDATE SET
			title = excluded.title,
			open_count = open_count + 1,
			last_opened = excluded.last_opened`,
		caseID, title, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to touch recent case: %w", err)
	}
	return nil
}

// RecentCases lists recently opened cases, most recent first.
func (s *Store) RecentCases(ctx context.Context, limit int) ([]RecentCase, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT case_id, title, open_count, last_opened
		 FROM recent_cases ORDER BY last_opened DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent cases: %w", err)
	}
	defer rows.Close()

	var out []RecentCase
	for rows.Next() {
		var rc RecentCase
		var opened int64
		if err := rows.Scan(&rc.CaseID, &rc.Title, &rc.OpenCount, &opened); err != nil {
			return nil, fmt.Errorf("failed to scan recent case: %w", err)
		}
		rc.LastOpened = time.Unix(opened, 0)
		out = append(out, rc)
	}
	return out, rows.Err()
}
