package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/rahul/stepwise/internal/agent"
	"github.com/rahul/stepwise/internal/observability"
	"github.com/rahul/stepwise/internal/session"
)

// searchWindow caps how many recent finished sessions a memory search scans.
const searchWindow = 500

// SQLite keeps one row per session holding the latest full snapshot.
type SQLite struct {
	DB     *sql.DB
	Logger *observability.Logger
}

var _ Store = (*SQLite)(nil)

func NewSQLite(dbPath string, logger *observability.Logger) (*SQLite, error) {
	if logger == nil {
		logger = observability.NewNop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	queries := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			query TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			final_answer TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			snapshot TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_status_updated ON sessions (status, updated_at);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate %s: %w", dbPath, err)
		}
	}

	return &SQLite{DB: db, Logger: logger}, nil
}

func (s *SQLite) Close() error {
	return s.DB.Close()
}

// Upsert writes the full snapshot, replacing any earlier one for the same id.
func (s *SQLite) Upsert(ctx context.Context, sess *session.Session) error {
	data, err := sess.Snapshot()
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}

	var existing string
	err = s.DB.QueryRowContext(ctx, `SELECT snapshot FROM sessions WHERE id = ?`, sess.ID).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("read session %s: %w", sess.ID, err)
	case !json.Valid([]byte(existing)):
		s.Logger.LogSession(sess.ID, "overwriting corrupt snapshot", map[string]any{"bytes": len(existing)})
	}

	query := `
		INSERT INTO sessions (id, query, status, created_at, updated_at, final_answer, summary, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at,
			final_answer = excluded.final_answer,
			summary = excluded.summary,
			snapshot = excluded.snapshot`
	_, err = s.DB.ExecContext(ctx, query,
		sess.ID,
		sess.OriginalQuery,
		string(sess.Status),
		formatTime(sess.CreatedAt),
		formatTime(sess.UpdatedAt),
		finalAnswer(sess),
		sess.SolutionSummary(),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("write session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context, id string) (*session.Session, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	var data string
	err := s.DB.QueryRowContext(ctx, `SELECT snapshot FROM sessions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	sess, err := session.Load([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, id, err)
	}
	return sess, nil
}

// List returns the most recently updated sessions first.
func (s *SQLite) List(ctx context.Context, limit int) ([]Summary, error) {
	query := `SELECT id, query, status, updated_at, summary FROM sessions ORDER BY updated_at DESC LIMIT ?`
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var status, updated string
		if err := rows.Scan(&sum.ID, &sum.Query, &status, &updated, &sum.Summary); err != nil {
			return nil, err
		}
		sum.Status = session.Status(status)
		sum.UpdatedAt = parseTime(updated)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Search finds finished sessions whose query shares keywords with query.
func (s *SQLite) Search(ctx context.Context, query string, limit int) ([]agent.MemoryEntry, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT query, final_answer, summary, updated_at FROM sessions
		 WHERE status = ? ORDER BY updated_at DESC LIMIT ?`,
		string(session.StatusFinished), searchWindow)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []candidate
	for rows.Next() {
		var c candidate
		var updated string
		if err := rows.Scan(&c.query, &c.answer, &c.summary, &updated); err != nil {
			return nil, err
		}
		c.updated = parseTime(updated)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rank(query, candidates, limit), nil
}

// timeLayout has fixed-width fractions so stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
