package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/opensandbox/canvas/internal/project"
	"github.com/opensandbox/canvas/pkg/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    template TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'active',
    revision INTEGER NOT NULL DEFAULT 0,
    metadata TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS project_files (
    project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    path TEXT NOT NULL,
    content TEXT NOT NULL,
    PRIMARY KEY (project_id, path)
);

CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id TEXT NOT NULL,
    type TEXT NOT NULL,
    revision INTEGER NOT NULL DEFAULT 0,
    payload TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_events_project ON events(project_id, id);
`

// SQLiteStore is a single-node project store in one SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ project.Store = (*SQLiteStore)(nil)

// OpenSQLiteStore opens (or creates) canvas.db under dataDir.
func OpenSQLiteStore(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "canvas.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteProject(row rowScanner) (*types.Project, error) {
	p := &types.Project{}
	var status, metadata, created, updated string
	if err := row.Scan(&p.ID, &p.Name, &p.Template, &status, &p.Revision, &metadata, &created, &updated); err != nil {
		return nil, err
	}
	p.Status = types.ProjectStatus(status)
	if err := json.Unmarshal([]byte(metadata), &p.Metadata); err != nil {
		return nil, fmt.Errorf("corrupt metadata for %s: %w", p.ID, err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return p, nil
}

func (s *SQLiteStore) CreateProject(ctx context.Context, p *types.Project) error {
	metadata, _ := json.Marshal(p.Metadata)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, template, status, revision, metadata, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Template, string(p.Status), p.Revision, string(metadata), formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*types.Project, error) {
	p, err := scanSQLiteProject(s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", id, project.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context) ([]types.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []types.Project{}
	for rows.Next() {
		p, err := scanSQLiteProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

func (s *SQLiteStore) UpdateProject(ctx context.Context, p *types.Project) error {
	metadata, _ := json.Marshal(p.Metadata)
	p.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, template = ?, status = ?, revision = ?, metadata = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.Template, string(p.Status), p.Revision, string(metadata), formatTime(p.UpdatedAt), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", p.ID, project.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", id, project.ErrNotFound)
	}
	return nil
}

// SaveFiles replaces the project's stored snapshot in one transaction.
func (s *SQLiteStore) SaveFiles(ctx context.Context, id string, files map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE projects SET updated_at = ? WHERE id = ?`, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", id, project.ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM project_files WHERE project_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear project files: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO project_files (project_id, path, content) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for p, content := range files {
		if _, err := stmt.ExecContext(ctx, id, p, content); err != nil {
			return fmt.Errorf("failed to save %s: %w", p, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) LoadFiles(ctx context.Context, id string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, content FROM project_files WHERE project_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load project files: %w", err)
	}
	defer rows.Close()

	files := make(map[string]string)
	for rows.Next() {
		var p, content string
		if err := rows.Scan(&p, &content); err != nil {
			return nil, err
		}
		files[p] = content
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		if _, err := s.GetProject(ctx, id); err != nil {
			return nil, err
		}
	}
	return files, nil
}

func (s *SQLiteStore) LogEvent(ctx context.Context, ev types.ProjectEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (project_id, type, revision, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		ev.ProjectID, ev.Type, ev.Revision, string(data), formatTime(ev.Timestamp))
	return err
}

// ListEvents returns up to limit of a project's most recent events, newest
// first.
func (s *SQLiteStore) ListEvents(ctx context.Context, id string, limit int) ([]types.ProjectEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM events WHERE project_id = ? ORDER BY id DESC LIMIT ?`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []types.ProjectEvent{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var ev types.ProjectEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("corrupt event row: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
