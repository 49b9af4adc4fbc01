package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const (
	statusDone   = "done"
	statusFailed = "failed"
)

// Catalog records per-subject conversion outcomes in a SQLite database so
// an interrupted ingest can resume without redoing finished subjects.
type Catalog struct {
	db *sql.DB
}

// OpenCatalog opens or creates the catalog database at path.
func OpenCatalog(ctx context.Context, path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open catalog: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ingest: open catalog: %w", err)
	}
	c := &Catalog{db: db}
	if err := c.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) createTables(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS subjects (
			dataset    TEXT NOT NULL,
			subject_id INTEGER NOT NULL,
			record     TEXT NOT NULL,
			epochs     INTEGER NOT NULL,
			status     TEXT NOT NULL,
			error      TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL,
			PRIMARY KEY (dataset, subject_id)
		)`)
	if err != nil {
		return fmt.Errorf("ingest: create catalog tables: %w", err)
	}
	return nil
}

// MarkDone records a successful conversion, replacing any earlier outcome
// for the subject.
func (c *Catalog) MarkDone(ctx context.Context, dataset string, s Subject, epochs int) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO subjects (dataset, subject_id, record, epochs, status, error, updated_at)
		VALUES (?, ?, ?, ?, ?, '', ?)
		ON CONFLICT (dataset, subject_id) DO UPDATE SET
			record     = excluded.record,
			epochs     = excluded.epochs,
			status     = excluded.status,
			error      = excluded.error,
			updated_at = excluded.updated_at`,
		dataset, s.ID, s.Record, epochs, statusDone, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("ingest: record subject %d: %w", s.ID, err)
	}
	return nil
}

// MarkFailed records a failed conversion with its error text.
func (c *Catalog) MarkFailed(ctx context.Context, dataset string, s Subject, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO subjects (dataset, subject_id, record, epochs, status, error, updated_at)
		VALUES (?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT (dataset, subject_id) DO UPDATE SET
			record     = excluded.record,
			epochs     = excluded.epochs,
			status     = excluded.status,
			error      = excluded.error,
			updated_at = excluded.updated_at`,
		dataset, s.ID, s.Record, statusFailed, msg, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("ingest: record subject %d: %w", s.ID, err)
	}
	return nil
}

// Done returns the epoch count of every subject already converted for a
// dataset.
func (c *Catalog) Done(ctx context.Context, dataset string) (map[int]int, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT subject_id, epochs FROM subjects
		WHERE dataset = ? AND status = ?`, dataset, statusDone)
	if err != nil {
		return nil, fmt.Errorf("ingest: query catalog: %w", err)
	}
	defer rows.Close()

	done := make(map[int]int)
	for rows.Next() {
		var id, epochs int
		if err := rows.Scan(&id, &epochs); err != nil {
			return nil, fmt.Errorf("ingest: scan catalog row: %w", err)
		}
		done[id] = epochs
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ingest: scan catalog: %w", err)
	}
	return done, nil
}

// Failures returns the error text of every failed subject for a dataset.
func (c *Catalog) Failures(ctx context.Context, dataset string) (map[int]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT subject_id, error FROM subjects
		WHERE dataset = ? AND status = ?`, dataset, statusFailed)
	if err != nil {
		return nil, fmt.Errorf("ingest: query catalog: %w", err)
	}
	defer rows.Close()

	failed := make(map[int]string)
	for rows.Next() {
		var (
			id  int
			msg string
		)
		if err := rows.Scan(&id, &msg); err != nil {
			return nil, fmt.Errorf("ingest: scan catalog row: %w", err)
		}
		failed[id] = msg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ingest: scan catalog: %w", err)
	}
	return failed, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}
