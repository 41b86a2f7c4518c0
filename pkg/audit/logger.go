// Package audit records every external generation call in a dedicated
// SQLite database, for cost review and failure diagnostics.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/archlens/archlens/pkg/models"
)

// Logger writes and queries generation records.
type Logger struct {
	db   *sql.DB
	cfg  models.AuditConfig
	done chan struct{}
	wg   sync.WaitGroup
}

// New opens the audit database and starts the retention sweep.
func New(cfg models.AuditConfig) (*Logger, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	l := &Logger{db: db, cfg: cfg, done: make(chan struct{})}

	l.wg.Add(1)
	go l.retentionLoop()

	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS generation_log (
		request_id TEXT NOT NULL,
		operation  TEXT NOT NULL,
		model      TEXT NOT NULL,
		status     TEXT NOT NULL,
		error_kind TEXT,
		latency_ms INTEGER,
		created_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_generation_request ON generation_log(request_id)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_generation_created ON generation_log(created_at)`)
	return err
}

// Log inserts a generation record. Safe to call on a nil Logger, which
// makes auditing strictly optional for callers.
func (l *Logger) Log(ctx context.Context, rec models.GenerationRecord) error {
	if l == nil || l.db == nil {
		return nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO generation_log
		 (request_id, operation, model, status, error_kind, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Operation, rec.Model, rec.Status, rec.ErrorKind,
		rec.LatencyMs, rec.CreatedAt,
	)
	return err
}

// QueryOpts filter audit queries.
type QueryOpts struct {
	RequestID string
	Operation string
	Since     time.Time
	Limit     int
}

// Query returns generation records matching the given options, newest
// first.
func (l *Logger) Query(ctx context.Context, opts QueryOpts) ([]models.GenerationRecord, error) {
	q := `SELECT request_id, operation, model, status, error_kind, latency_ms, created_at
		FROM generation_log WHERE 1=1`
	var args []any

	if opts.RequestID != "" {
		q += " AND request_id = ?"
		args = append(args, opts.RequestID)
	}
	if opts.Operation != "" {
		q += " AND operation = ?"
		args = append(args, opts.Operation)
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since)
	}

	q += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var records []models.GenerationRecord
	for rows.Next() {
		var rec models.GenerationRecord
		var errorKind sql.NullString
		if err := rows.Scan(&rec.RequestID, &rec.Operation, &rec.Model,
			&rec.Status, &errorKind, &rec.LatencyMs, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		rec.ErrorKind = errorKind.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Stats returns aggregate call counts grouped by operation and day.
func (l *Logger) Stats(ctx context.Context) ([]models.GenerationStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT operation, date(created_at) as day, count(*) as cnt
		 FROM generation_log GROUP BY operation, day ORDER BY day DESC, operation`)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	var stats []models.GenerationStat
	for rows.Next() {
		var s models.GenerationStat
		var day sql.NullString
		if err := rows.Scan(&s.Operation, &day, &s.Count); err != nil {
			return nil, fmt.Errorf("scan audit stat: %w", err)
		}
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes records older than the configured retention period.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -l.cfg.RetentionDays)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM generation_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Logger) retentionLoop() {
	defer l.wg.Done()
	if l.cfg.RetentionDays <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			if n, err := l.Cleanup(context.Background()); err != nil {
				log.Printf("audit retention sweep: %v", err)
			} else if n > 0 {
				log.Printf("audit retention sweep removed %d records", n)
			}
		}
	}
}
