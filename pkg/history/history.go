// Package history keeps a capped, persisted record of completed
// analyses. Binary artifact payloads are stripped before persistence so
// the history cannot exhaust the storage quota.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/archlens/archlens/pkg/models"
)

// DefaultMaxEntries caps the history when no limit is configured.
const DefaultMaxEntries = 10

// Store records analysis history in a SQLite database.
type Store struct {
	db         *sql.DB
	maxEntries int
}

const createHistoryTable = `
CREATE TABLE IF NOT EXISTS history_entries (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at DATETIME NOT NULL,
	files      TEXT NOT NULL,
	summary    TEXT NOT NULL,
	result     TEXT NOT NULL
);
`

// New opens the history store at dbPath. maxEntries of zero or less
// uses DefaultMaxEntries.
func New(dbPath string, maxEntries int) (*Store, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(createHistoryTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}

	return &Store{db: db, maxEntries: maxEntries}, nil
}

// Add persists a completed analysis and evicts the oldest entries
// beyond the cap. The stored result has its binary payloads stripped.
func (s *Store) Add(ctx context.Context, result models.AnalysisResult, files []string, summary string) (models.HistoryEntry, error) {
	stripped := stripPayloads(result)

	resultJSON, err := json.Marshal(stripped)
	if err != nil {
		return models.HistoryEntry{}, fmt.Errorf("marshal result: %w", err)
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return models.HistoryEntry{}, fmt.Errorf("marshal file names: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO history_entries (created_at, files, summary, result) VALUES (?, ?, ?, ?)`,
		now, string(filesJSON), summary, string(resultJSON),
	)
	if err != nil {
		return models.HistoryEntry{}, fmt.Errorf("insert history entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.HistoryEntry{}, fmt.Errorf("history entry id: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM history_entries WHERE id NOT IN
		 (SELECT id FROM history_entries ORDER BY id DESC LIMIT ?)`,
		s.maxEntries,
	); err != nil {
		return models.HistoryEntry{}, fmt.Errorf("trim history: %w", err)
	}

	return models.HistoryEntry{
		ID:        id,
		Timestamp: now,
		Files:     files,
		Summary:   summary,
		Result:    stripped,
	}, nil
}

// List returns all history entries, newest first.
func (s *Store) List(ctx context.Context) ([]models.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, files, summary, result FROM history_entries ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		var filesJSON, resultJSON string
		if err := rows.Scan(&e.ID, &e.Timestamp, &filesJSON, &e.Summary, &resultJSON); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if err := json.Unmarshal([]byte(filesJSON), &e.Files); err != nil {
			return nil, fmt.Errorf("parse file names: %w", err)
		}
		if err := json.Unmarshal([]byte(resultJSON), &e.Result); err != nil {
			return nil, fmt.Errorf("parse stored result: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Clear removes every history entry.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history_entries`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// stripPayloads removes binary artifact payloads from a result,
// including their inlined copies in the document markup. Statuses are
// preserved so the history still shows what was generated.
func stripPayloads(r models.AnalysisResult) models.AnalysisResult {
	if r.AudioData != "" {
		r.DocumentHTML = strings.ReplaceAll(r.DocumentHTML, r.AudioData, "")
		r.AudioData = ""
	}
	for _, img := range r.DiagramImages {
		if img != "" {
			r.DocumentHTML = strings.ReplaceAll(r.DocumentHTML, img, "")
		}
	}
	r.DiagramImages = nil
	return r
}
