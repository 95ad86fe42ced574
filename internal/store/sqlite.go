package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/lsewell/trellis/internal/config"
	"github.com/lsewell/trellis/internal/errors"
	"github.com/lsewell/trellis/internal/thought"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// SQLite is the canonical durable Store backed by a single SQLite file.
// Embeddings are stored as JSON arrays; Query is a brute-force cosine scan
// over the (filtered) candidate rows.
type SQLite struct {
	db *sql.DB
}

// Open initializes the SQLite store at baseDir/trellis.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.trellis.
func Open(baseDir string, cfg *config.Config) (*SQLite, error) {
	// Restricted permissions: thought content may be sensitive
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	exportsDir := filepath.Join(baseDir, "exports")
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create exports directory: %w", err)
	}
	_ = os.Chmod(exportsDir, 0700)

	dbPath := filepath.Join(baseDir, "trellis.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	if cfg != nil {
		if cfg.DBMaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.DBMaxOpenConns)
		}
		if cfg.DBMaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.DBMaxIdleConns)
		}
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := getUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS thoughts (
		  id             TEXT PRIMARY KEY,
		  session_id     TEXT NOT NULL,
		  thought_number INTEGER NOT NULL,
		  total_thoughts INTEGER NOT NULL,
		  content        TEXT NOT NULL,
		  branch_from    INTEGER,
		  branch_id      TEXT,
		  next_needed    INTEGER NOT NULL DEFAULT 0,
		  custom_json    TEXT,
		  embedding_json TEXT NOT NULL,
		  created_at_ms  INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_thoughts_session
		ON thoughts(session_id, thought_number, created_at_ms);

		CREATE INDEX IF NOT EXISTS idx_thoughts_session_branch
		ON thoughts(session_id, branch_id);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := setUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

func getUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

func setUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}

// Upsert durably writes one thought record.
func (s *SQLite) Upsert(ctx context.Context, t *thought.Thought) error {
	embJSON, err := json.Marshal(t.Embedding)
	if err != nil {
		return errors.NewStorage("upsert", err)
	}

	var customJSON *string
	if len(t.CustomData) > 0 {
		b, err := json.Marshal(t.CustomData)
		if err != nil {
			return errors.NewStorage("upsert", err)
		}
		str := string(b)
		customJSON = &str
	}

	nextNeeded := 0
	if t.NextThoughtNeeded {
		nextNeeded = 1
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO thoughts(id, session_id, thought_number, total_thoughts, content,
                     branch_from, branch_id, next_needed, custom_json,
                     embedding_json, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  session_id     = excluded.session_id,
  thought_number = excluded.thought_number,
  total_thoughts = excluded.total_thoughts,
  content        = excluded.content,
  branch_from    = excluded.branch_from,
  branch_id      = excluded.branch_id,
  next_needed    = excluded.next_needed,
  custom_json    = excluded.custom_json,
  embedding_json = excluded.embedding_json,
  created_at_ms  = excluded.created_at_ms`,
		t.ID, t.SessionID, t.ThoughtNumber, t.TotalThoughts, t.Content,
		t.BranchFromThought, t.BranchID, nextNeeded, customJSON,
		string(embJSON), t.CreatedAt)
	if err != nil {
		return errors.NewStorage("upsert", err)
	}
	return nil
}

// Get returns all thoughts matching the filter, unranked.
func (s *SQLite) Get(ctx context.Context, f Filter) ([]*thought.Thought, error) {
	query, args := buildSelect(f)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStorage("get", err)
	}
	defer rows.Close()

	var thoughts []*thought.Thought
	for rows.Next() {
		t, err := scanThought(rows)
		if err != nil {
			return nil, errors.NewStorage("get", err)
		}
		thoughts = append(thoughts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage("get", err)
	}
	return thoughts, nil
}

// Query returns up to k thoughts nearest to the embedding, ascending by
// cosine distance, optionally pre-filtered.
func (s *SQLite) Query(ctx context.Context, embedding []float32, k int, f Filter) ([]Match, error) {
	candidates, err := s.Get(ctx, f)
	if err != nil {
		return nil, err
	}
	return rank(embedding, candidates, k), nil
}

// Sessions returns the distinct session IDs present in the collection.
func (s *SQLite) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT session_id FROM thoughts ORDER BY session_id`)
	if err != nil {
		return nil, errors.NewStorage("sessions", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewStorage("sessions", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage("sessions", err)
	}
	return ids, nil
}

// DeleteSession removes all thoughts of a session.
func (s *SQLite) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM thoughts WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, errors.NewStorage("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewStorage("delete", err)
	}
	return int(n), nil
}

const selectColumns = `id, session_id, thought_number, total_thoughts, content,
branch_from, branch_id, next_needed, custom_json, embedding_json, created_at_ms`

// buildSelect translates a Filter into a WHERE clause.
func buildSelect(f Filter) (string, []any) {
	var conds []string
	var args []any

	if f.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.BranchID != nil {
		if *f.BranchID == "" {
			conds = append(conds, "(branch_id IS NULL OR branch_id = '')")
		} else {
			conds = append(conds, "branch_id = ?")
			args = append(args, *f.BranchID)
		}
	}
	if f.BelowThoughtNumber > 0 {
		conds = append(conds, "thought_number < ?")
		args = append(args, f.BelowThoughtNumber)
	}

	query := "SELECT " + selectColumns + " FROM thoughts"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	return query, args
}

func scanThought(rows *sql.Rows) (*thought.Thought, error) {
	var t thought.Thought
	var branchFrom sql.NullInt64
	var branchID, customJSON sql.NullString
	var nextNeeded int
	var embJSON string

	if err := rows.Scan(&t.ID, &t.SessionID, &t.ThoughtNumber, &t.TotalThoughts,
		&t.Content, &branchFrom, &branchID, &nextNeeded, &customJSON,
		&embJSON, &t.CreatedAt); err != nil {
		return nil, err
	}

	if branchFrom.Valid {
		v := int(branchFrom.Int64)
		t.BranchFromThought = &v
	}
	if branchID.Valid && branchID.String != "" {
		t.BranchID = &branchID.String
	}
	t.NextThoughtNeeded = nextNeeded != 0
	if customJSON.Valid && customJSON.String != "" {
		if err := json.Unmarshal([]byte(customJSON.String), &t.CustomData); err != nil {
			return nil, fmt.Errorf("decode custom_json for %s: %w", t.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(embJSON), &t.Embedding); err != nil {
		return nil, fmt.Errorf("decode embedding_json for %s: %w", t.ID, err)
	}

	return &t, nil
}
