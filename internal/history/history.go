// Copyright 2025 Sandlot Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package history persists build outcomes in a local SQLite database so
// hosts can inspect a sandbox's build history across process restarts.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/blindmansion/sandlot/pkg/sandbox"
)

// Store records builds in SQLite. It implements sandbox.BuildRecorder.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Record is one persisted build row.
type Record struct {
	ID            string
	SandboxID     string
	CreatedAt     time.Time
	Success       bool
	Phase         string
	Entry         string
	DurationMS    int64
	WarningCount  int
	IncludedFiles []string
}

// Open creates (or opens) the history database at path and runs
// migrations. WAL mode keeps concurrent readers cheap.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history database path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	connStr := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to history database: %w", err)
	}

	store := &Store{db: db, logger: logger.With("component", "history")}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating history database: %w", err)
	}
	return store, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS builds (
			id TEXT PRIMARY KEY,
			sandbox_id TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			success INTEGER NOT NULL,
			phase TEXT NOT NULL DEFAULT '',
			entry TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			warning_count INTEGER NOT NULL DEFAULT 0,
			included_files TEXT NOT NULL DEFAULT '[]'
		);
		CREATE INDEX IF NOT EXISTS idx_builds_sandbox
			ON builds(sandbox_id, created_at);
	`)
	return err
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Record persists one build outcome. Recording is best-effort: a
// storage failure is logged, never surfaced into the build pipeline.
func (s *Store) Record(ctx context.Context, sandboxID string, result *sandbox.BuildResult) {
	files, err := json.Marshal(result.IncludedFiles)
	if err != nil {
		files = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO builds (id, sandbox_id, success, phase, entry, duration_ms, warning_count, included_files)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		sandboxID,
		boolToInt(result.Success),
		string(result.Phase),
		result.Entry,
		result.Duration.Milliseconds(),
		len(result.Warnings),
		string(files),
	)
	if err != nil {
		s.logger.Warn("recording build failed", "sandbox_id", sandboxID, "error", err)
	}
}

// List returns a sandbox's builds, newest first.
func (s *Store) List(ctx context.Context, sandboxID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sandbox_id, created_at, success, phase, entry, duration_ms, warning_count, included_files
		FROM builds WHERE sandbox_id = ?
		ORDER BY created_at DESC, id LIMIT ?`, sandboxID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var createdAt string
		var success int
		var files string
		if err := rows.Scan(&r.ID, &r.SandboxID, &createdAt, &success, &r.Phase, &r.Entry, &r.DurationMS, &r.WarningCount, &files); err != nil {
			return nil, err
		}
		r.Success = success != 0
		r.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdAt)
		_ = json.Unmarshal([]byte(files), &r.IncludedFiles)
		records = append(records, r)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
