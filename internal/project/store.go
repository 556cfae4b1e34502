package project

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/opensandbox/canvas/pkg/types"
)

// ErrNotFound is returned by stores for unknown projects.
var ErrNotFound = errors.New("project not found")

// Store persists project metadata, the latest file snapshot and an event
// log. Implementations wrap ErrNotFound for unknown projects.
type Store interface {
	CreateProject(ctx context.Context, p *types.Project) error
	GetProject(ctx context.Context, id string) (*types.Project, error)
	ListProjects(ctx context.Context) ([]types.Project, error)
	UpdateProject(ctx context.Context, p *types.Project) error
	DeleteProject(ctx context.Context, id string) error
	SaveFiles(ctx context.Context, id string, files map[string]string) error
	LoadFiles(ctx context.Context, id string) (map[string]string, error)
	LogEvent(ctx context.Context, ev types.ProjectEvent) error
}

// EventLister is implemented by stores that can read their event log back.
type EventLister interface {
	ListEvents(ctx context.Context, id string, limit int) ([]types.ProjectEvent, error)
}

// MemoryStore is a Store that keeps everything in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]types.Project
	files    map[string]map[string]string
	events   []types.ProjectEvent
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]types.Project),
		files:    make(map[string]map[string]string),
	}
}

func (m *MemoryStore) CreateProject(_ context.Context, p *types.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; ok {
		return fmt.Errorf("project %s already exists", p.ID)
	}
	m.projects[p.ID] = *p
	return nil
}

func (m *MemoryStore) GetProject(_ context.Context, id string) (*types.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return &p, nil
}

func (m *MemoryStore) ListProjects(_ context.Context) ([]types.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) UpdateProject(_ context.Context, p *types.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; !ok {
		return fmt.Errorf("%s: %w", p.ID, ErrNotFound)
	}
	p.UpdatedAt = time.Now()
	m.projects[p.ID] = *p
	return nil
}

func (m *MemoryStore) DeleteProject(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	delete(m.projects, id)
	delete(m.files, id)
	return nil
}

func (m *MemoryStore) SaveFiles(_ context.Context, id string, files map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	m.files[id] = copyFiles(files)
	return nil
}

func (m *MemoryStore) LoadFiles(_ context.Context, id string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	files, ok := m.files[id]
	if !ok {
		return nil, fmt.Errorf("files for %s: %w", id, ErrNotFound)
	}
	return copyFiles(files), nil
}

func (m *MemoryStore) LogEvent(_ context.Context, ev types.ProjectEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns the logged events for a project in order.
func (m *MemoryStore) Events(id string) []types.ProjectEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.ProjectEvent
	for _, ev := range m.events {
		if ev.ProjectID == id {
			out = append(out, ev)
		}
	}
	return out
}

// ListEvents returns up to limit of a project's most recent events, newest
// first.
func (m *MemoryStore) ListEvents(_ context.Context, id string, limit int) ([]types.ProjectEvent, error) {
	all := m.Events(id)
	out := make([]types.ProjectEvent, 0, len(all))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func copyFiles(files map[string]string) map[string]string {
	out := make(map[string]string, len(files))
	for p, c := range files {
		out[p] = c
	}
	return out
}
