package db

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opensandbox/canvas/internal/project"
	"github.com/opensandbox/canvas/pkg/types"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the PostgreSQL project store.
type Store struct {
	pool *pgxpool.Pool
}

var _ project.Store = (*Store)(nil)

// NewStore creates a new Store with a connection pool.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Migrate runs database migrations.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err = s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	migrations := []struct {
		version  int
		filename string
	}{
		{1, "migrations/001_initial.up.sql"},
		{2, "migrations/002_project_files_size.up.sql"},
	}

	for _, m := range migrations {
		if currentVersion >= m.version {
			continue
		}
		if err := s.applyMigration(ctx, m.version, m.filename); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, version int, filename string) error {
	sql, err := migrationsFS.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read migration file %s: %w", filename, err)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %d: %w", version, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("failed to apply migration %03d: %w", version, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
		return fmt.Errorf("failed to record migration %03d: %w", version, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit migration %03d: %w", version, err)
	}
	return nil
}

// --- Project operations ---

const projectColumns = `id, name, template, status, revision, metadata, created_at, updated_at`

func scanProject(row pgx.Row) (*types.Project, error) {
	p := &types.Project{}
	var status string
	var revision int64
	err := row.Scan(&p.ID, &p.Name, &p.Template, &status, &revision, &p.Metadata, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = types.ProjectStatus(status)
	p.Revision = uint64(revision)
	return p, nil
}

func (s *Store) CreateProject(ctx context.Context, p *types.Project) error {
	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO projects (id, name, template, status, revision, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Name, p.Template, string(p.Status), int64(p.Revision), metadata, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*types.Project, error) {
	p, err := scanProject(s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, project.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

func (s *Store) ListProjects(ctx context.Context) ([]types.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []types.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

func (s *Store) UpdateProject(ctx context.Context, p *types.Project) error {
	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	p.UpdatedAt = time.Now()
	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET name = $2, template = $3, status = $4, revision = $5, metadata = $6, updated_at = $7
		 WHERE id = $1`,
		p.ID, p.Name, p.Template, string(p.Status), int64(p.Revision), metadata, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", p.ID, project.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", id, project.ErrNotFound)
	}
	return nil
}

// --- File snapshots ---

// SaveFiles replaces the project's stored snapshot in one transaction.
func (s *Store) SaveFiles(ctx context.Context, id string, files map[string]string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var size int64
	rows := make([][]any, 0, len(files))
	for p, content := range files {
		size += int64(len(content))
		rows = append(rows, []any{id, p, content})
	}

	tag, err := tx.Exec(ctx,
		`UPDATE projects SET file_count = $2, size_bytes = $3, updated_at = now() WHERE id = $1`,
		id, len(files), size)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", id, project.ErrNotFound)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM project_files WHERE project_id = $1`, id); err != nil {
		return fmt.Errorf("failed to clear project files: %w", err)
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"project_files"},
		[]string{"project_id", "path", "content"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("failed to copy project files: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) LoadFiles(ctx context.Context, id string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT path, content FROM project_files WHERE project_id = $1`, id)
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
		// An empty project and an unknown one look alike here.
		if _, err := s.GetProject(ctx, id); err != nil {
			return nil, err
		}
	}
	return files, nil
}

// --- Event log ---

// LogEvent records an event. Replays of the same event (by project, type,
// revision and timestamp) are ignored, so the sync consumer and direct
// writes can overlap.
func (s *Store) LogEvent(ctx context.Context, ev types.ProjectEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO project_events (project_id, type, revision, event, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (project_id, type, revision, created_at) DO NOTHING`,
		ev.ProjectID, ev.Type, int64(ev.Revision), data, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to log event: %w", err)
	}
	return nil
}

// ListEvents returns up to limit of a project's most recent events, newest
// first.
func (s *Store) ListEvents(ctx context.Context, id string, limit int) ([]types.ProjectEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event FROM project_events WHERE project_id = $1 ORDER BY id DESC LIMIT $2`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []types.ProjectEvent{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var ev types.ProjectEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("corrupt event row: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
