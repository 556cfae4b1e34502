package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opensandbox/canvas/internal/logging"
	"github.com/opensandbox/canvas/internal/metrics"
	"github.com/opensandbox/canvas/internal/storage"
	"github.com/opensandbox/canvas/internal/template"
	"github.com/opensandbox/canvas/internal/vfs"
	"github.com/opensandbox/canvas/pkg/types"
)

// State is the lifecycle state of a project from the manager's perspective.
type State int

const (
	StateActive State = iota
	StateHibernated
	StateWaking
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateHibernated:
		return "hibernated"
	case StateWaking:
		return "waking"
	default:
		return "unknown"
	}
}

// ErrNoArchive is returned by archive operations when no archive store is
// configured.
var ErrNoArchive = errors.New("archive storage not configured")

// DefaultTemplate seeds projects created without a template or files.
const DefaultTemplate = "blank"

// Listener receives every project event. It is called synchronously, often
// with a session lock held, and must not block or call back into the manager.
type Listener interface {
	OnEvent(ev types.ProjectEvent)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(types.ProjectEvent)

func (f ListenerFunc) OnEvent(ev types.ProjectEvent) { f(ev) }

// entry holds per-project state.
type entry struct {
	mu      sync.Mutex
	state   State
	timer   *time.Timer   // rolling idle timer (nil unless active)
	wakeCh  chan struct{} // closed when wake completes; nil if not waking
	wakeErr error
	session *Session
	dirty   atomic.Bool // files changed since the last save
}

// Config holds configuration for the Manager.
type Config struct {
	Store       Store             // required
	Archive     *storage.Archive  // nil disables archives
	Templates   *template.Registry // nil disables templates
	Pipeline    Pipeline
	IdleTimeout time.Duration
	Listeners   []Listener
}

// Manager tracks live project sessions with a rolling idle timeout. Idle
// sessions are saved to the store and evicted; any later access wakes them.
type Manager struct {
	store       Store
	archive     *storage.Archive
	templates   *template.Registry
	pipeline    Pipeline
	idleTimeout time.Duration
	listeners   []Listener
	log         *zap.Logger

	mu       sync.RWMutex
	projects map[string]*entry
}

// NewManager creates a project manager.
func NewManager(cfg Config) *Manager {
	timeout := cfg.IdleTimeout
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &Manager{
		store:       cfg.Store,
		archive:     cfg.Archive,
		templates:   cfg.Templates,
		pipeline:    cfg.Pipeline,
		idleTimeout: timeout,
		listeners:   cfg.Listeners,
		log:         logging.Named("project"),
		projects:    make(map[string]*entry),
	}
}

// AddListener registers l for all future events.
func (m *Manager) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Create seeds a new project from its template and files (files win) and
// starts a session for it.
func (m *Manager) Create(ctx context.Context, cfg types.ProjectConfig) (*types.Project, error) {
	files := make(map[string]string)
	tmpl := cfg.Template
	if tmpl == "" && len(cfg.Files) == 0 && m.templates != nil {
		tmpl = DefaultTemplate
	}
	if tmpl != "" {
		if m.templates == nil {
			return nil, fmt.Errorf("%w: %q", template.ErrNotFound, tmpl)
		}
		seed, err := m.templates.Files(tmpl)
		if err != nil {
			return nil, err
		}
		files = seed
	}
	for p, content := range cfg.Files {
		files[p] = content
	}
	if _, err := vfs.Load(files); err != nil {
		return nil, err
	}

	name := cfg.Name
	if name == "" {
		name = "Untitled"
	}
	now := time.Now().UTC()
	p := &types.Project{
		ID:        uuid.NewString(),
		Name:      name,
		Template:  tmpl,
		Status:    types.ProjectStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  cfg.Metadata,
	}
	if err := m.store.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	if err := m.store.SaveFiles(ctx, p.ID, files); err != nil {
		_ = m.store.DeleteProject(ctx, p.ID)
		return nil, fmt.Errorf("save project files: %w", err)
	}
	m.emit(types.ProjectEvent{Type: types.EventCreated, ProjectID: p.ID})

	e := &entry{state: StateWaking, wakeCh: make(chan struct{})}
	m.mu.Lock()
	m.projects[p.ID] = e
	m.mu.Unlock()

	s, err := NewSession(p.ID, files, 0, m.pipeline, m.onUpdate(e))
	if err == nil {
		m.activate(p.ID, e, s)
	}
	e.mu.Lock()
	e.wakeErr = err
	close(e.wakeCh)
	e.wakeCh = nil
	e.mu.Unlock()
	if err != nil {
		m.Forget(p.ID)
		return nil, err
	}
	p.Revision = s.Revision()
	m.log.Info("project created", logging.ProjectID(p.ID), zap.String("template", tmpl), zap.Int("files", len(files)))
	return p, nil
}

// Route ensures the project is active, runs fn against its session and
// resets the idle timeout. If the session is hibernated underneath fn, the
// project is woken again and fn retried once.
func (m *Manager) Route(ctx context.Context, id string, fn func(s *Session) error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var s *Session
		s, err = m.ensureActive(ctx, id)
		if err != nil {
			return err
		}
		err = fn(s)
		m.resetTimeout(id)
		if !errors.Is(err, ErrSessionClosed) {
			return err
		}
	}
	return err
}

// Session returns the active session for id, waking it if needed.
func (m *Manager) Session(ctx context.Context, id string) (*Session, error) {
	s, err := m.ensureActive(ctx, id)
	if err != nil {
		return nil, err
	}
	m.resetTimeout(id)
	return s, nil
}

// Touch resets the idle timeout without routing an operation. Long-lived
// preview connections call it to keep their project loaded.
func (m *Manager) Touch(id string) {
	m.resetTimeout(id)
}

// State returns the state of a tracked project.
func (m *Manager) State(id string) (State, bool) {
	m.mu.RLock()
	e, ok := m.projects[id]
	m.mu.RUnlock()
	if !ok {
		return 0, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, true
}

// Get returns project metadata with its live status and revision.
func (m *Manager) Get(ctx context.Context, id string) (*types.Project, error) {
	p, err := m.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	m.decorate(p)
	return p, nil
}

// List returns all projects with their live status.
func (m *Manager) List(ctx context.Context) ([]types.Project, error) {
	projects, err := m.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		m.decorate(&projects[i])
	}
	return projects, nil
}

func (m *Manager) decorate(p *types.Project) {
	m.mu.RLock()
	e, ok := m.projects[p.ID]
	m.mu.RUnlock()
	if !ok {
		p.Status = types.ProjectStatusHibernated
		return
	}
	e.mu.Lock()
	s := e.session
	active := e.state == StateActive
	e.mu.Unlock()
	if active && s != nil {
		p.Status = types.ProjectStatusActive
		p.Revision = s.Revision()
	} else {
		p.Status = types.ProjectStatusHibernated
	}
}

// Delete closes the project's session and removes it from the store and
// the archive.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.Forget(id)
	if err := m.store.DeleteProject(ctx, id); err != nil {
		return err
	}
	if m.archive != nil {
		if err := m.archive.Delete(ctx, id); err != nil {
			m.log.Warn("archive delete failed", logging.ProjectID(id), logging.Err(err))
		}
	}
	m.notify(types.ProjectEvent{Type: types.EventDeleted, ProjectID: id, Timestamp: time.Now().UTC()})
	m.log.Info("project deleted", logging.ProjectID(id))
	return nil
}

// Forget drops a project's session without saving it.
func (m *Manager) Forget(id string) {
	m.mu.Lock()
	e, ok := m.projects[id]
	delete(m.projects, id)
	m.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.session != nil {
		e.session.Close()
		e.session = nil
		metrics.SessionsActive.Dec()
	}
}

// Hibernate saves an active project to the store (and the archive, when
// configured), then evicts its session.
func (m *Manager) Hibernate(ctx context.Context, id string) error {
	m.mu.RLock()
	e, ok := m.projects[id]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateActive || e.session == nil {
		return nil
	}

	s := e.session
	files, revision := s.Snapshot()
	if err := m.persist(ctx, id, files, revision, types.ProjectStatusHibernated); err != nil {
		metrics.HibernationsTotal.WithLabelValues("error").Inc()
		return err
	}
	if m.archive != nil {
		if info, err := m.archive.Save(ctx, id, revision, files); err != nil {
			m.log.Warn("archive on hibernate failed", logging.ProjectID(id), logging.Err(err))
		} else {
			m.log.Debug("archived", logging.ProjectID(id), zap.String("key", info.Key), zap.Int64("size", info.SizeBytes))
		}
	}

	s.Close()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.session = nil
	e.state = StateHibernated
	e.dirty.Store(false)
	metrics.SessionsActive.Dec()
	metrics.HibernationsTotal.WithLabelValues("ok").Inc()

	m.emit(types.ProjectEvent{Type: types.EventHibernated, ProjectID: id, Revision: revision})
	m.log.Info("project hibernated", logging.ProjectID(id), logging.Revision(revision), zap.Int("files", len(files)))
	return nil
}

// Save persists an active project's files without evicting it.
func (m *Manager) Save(ctx context.Context, id string) error {
	m.mu.RLock()
	e, ok := m.projects[id]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s == nil {
		return nil
	}

	e.dirty.Store(false)
	files, revision := s.Snapshot()
	if err := m.persist(ctx, id, files, revision, types.ProjectStatusActive); err != nil {
		e.dirty.Store(true)
		return err
	}
	return nil
}

func (m *Manager) persist(ctx context.Context, id string, files map[string]string, revision uint64, status types.ProjectStatus) error {
	if err := m.store.SaveFiles(ctx, id, files); err != nil {
		return fmt.Errorf("save files for project %s: %w", id, err)
	}
	p, err := m.store.GetProject(ctx, id)
	if err != nil {
		return fmt.Errorf("load project %s: %w", id, err)
	}
	p.Status = status
	p.Revision = revision
	if err := m.store.UpdateProject(ctx, p); err != nil {
		return fmt.Errorf("update project %s: %w", id, err)
	}
	return nil
}

// Archive uploads the project's current files to the archive store.
func (m *Manager) Archive(ctx context.Context, id string) (*storage.ArchiveInfo, error) {
	if m.archive == nil {
		return nil, ErrNoArchive
	}
	var (
		files    map[string]string
		revision uint64
	)
	err := m.Route(ctx, id, func(s *Session) error {
		files, revision = s.Snapshot()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m.archive.Save(ctx, id, revision, files)
}

// RestoreArchive replaces the project's files with its archived snapshot.
func (m *Manager) RestoreArchive(ctx context.Context, id string) (*storage.ArchiveInfo, error) {
	if m.archive == nil {
		return nil, ErrNoArchive
	}
	files, info, err := m.archive.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	err = m.Route(ctx, id, func(s *Session) error {
		return s.Restore(files)
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// ApplyToolCalls applies an agent's batch of commands and returns their
// results with the revision and diagnostics of the resulting build.
func (m *Manager) ApplyToolCalls(ctx context.Context, id string, calls []types.ToolCall) (*types.ToolCallResponse, error) {
	var (
		results []types.ToolResult
		last    Update
	)
	err := m.Route(ctx, id, func(s *Session) error {
		var err error
		results, last, err = s.Apply(calls)
		return err
	})
	if err != nil {
		return nil, err
	}

	failed := 0
	for _, r := range results {
		if !r.OK {
			failed++
		}
	}
	payload, _ := json.Marshal(map[string]int{"calls": len(calls), "failed": failed})
	m.emit(types.ProjectEvent{Type: types.EventToolCalls, ProjectID: id, Revision: last.Revision, Payload: payload})

	return &types.ToolCallResponse{
		Results:     results,
		Revision:    last.Revision,
		Diagnostics: last.Diagnostics,
	}, nil
}

// Close hibernates every active project and stops all timers.
func (m *Manager) Close(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.projects))
	for id := range m.projects {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.Hibernate(ctx, id); err != nil {
			m.log.Error("hibernate on shutdown failed", logging.ProjectID(id), logging.Err(err))
		}
	}

	m.mu.RLock()
	entries := make([]*entry, 0, len(m.projects))
	for _, e := range m.projects {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		e.mu.Unlock()
	}
}

// onUpdate turns compilation outcomes into events and marks the project
// dirty. It runs with the session lock held.
func (m *Manager) onUpdate(e *entry) func(Update) {
	return func(u Update) {
		e.dirty.Store(true)
		wire := u.Wire()
		ev := types.ProjectEvent{
			Type:      types.EventCompiled,
			ProjectID: u.ProjectID,
			Revision:  u.Revision,
			Update:    &wire,
		}
		if u.Err != nil {
			ev.Type = types.EventCompileFailed
		}
		m.emit(ev)
	}
}

// emit logs ev to the store and hands it to every listener.
func (m *Manager) emit(ev types.ProjectEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.LogEvent(ctx, ev); err != nil {
		m.log.Warn("log event failed", logging.ProjectID(ev.ProjectID), zap.String("type", ev.Type), logging.Err(err))
	}
	m.notify(ev)
}

func (m *Manager) notify(ev types.ProjectEvent) {
	m.mu.RLock()
	listeners := m.listeners
	m.mu.RUnlock()
	for _, l := range listeners {
		l.OnEvent(ev)
	}
}

// activate marks e active with s and starts its idle timer.
func (m *Manager) activate(id string, e *entry, s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session = s
	e.state = StateActive
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(m.idleTimeout, func() {
		m.onTimeout(id)
	})
	metrics.SessionsActive.Inc()
}

// ensureActive returns the project's session, waking it if hibernated. Only
// one caller performs a wake; the others wait for it.
func (m *Manager) ensureActive(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	e, ok := m.projects[id]
	m.mu.RUnlock()

	if !ok {
		// Not tracked, e.g. after a restart: look it up in the store.
		if _, err := m.store.GetProject(ctx, id); err != nil {
			return nil, err
		}
		m.mu.Lock()
		if e, ok = m.projects[id]; !ok {
			e = &entry{state: StateHibernated}
			m.projects[id] = e
		}
		m.mu.Unlock()
	}

	e.mu.Lock()
	switch e.state {
	case StateActive:
		s := e.session
		e.mu.Unlock()
		return s, nil

	case StateHibernated:
		e.state = StateWaking
		e.wakeCh = make(chan struct{})
		e.wakeErr = nil
		e.mu.Unlock()

		m.doWake(id, e)

		e.mu.Lock()
		s, err := e.session, e.wakeErr
		e.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("wake project %s: %w", id, err)
		}
		return s, nil

	case StateWaking:
		wakeCh := e.wakeCh
		e.mu.Unlock()

		select {
		case <-wakeCh:
			e.mu.Lock()
			s, err := e.session, e.wakeErr
			e.mu.Unlock()
			if err != nil {
				return nil, fmt.Errorf("wake project %s: %w", id, err)
			}
			return s, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}

	default:
		e.mu.Unlock()
		return nil, fmt.Errorf("project %s in unexpected state: %v", id, e.state)
	}
}

// doWake loads the project's files and starts a session. Files come from
// the store, or from the archive when the store has none.
func (m *Manager) doWake(id string, e *entry) {
	// The wake completes even if the caller gives up waiting.
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var (
		s       *Session
		wakeErr error
	)
	defer func() {
		if s != nil {
			m.activate(id, e, s)
		}
		e.mu.Lock()
		e.wakeErr = wakeErr
		if wakeErr != nil {
			e.state = StateHibernated
		}
		close(e.wakeCh)
		e.wakeCh = nil
		e.mu.Unlock()
	}()

	p, err := m.store.GetProject(ctx, id)
	if err != nil {
		wakeErr = err
		return
	}
	files, err := m.store.LoadFiles(ctx, id)
	if errors.Is(err, ErrNotFound) && m.archive != nil {
		files, _, err = m.archive.Load(ctx, id)
	}
	if err != nil {
		wakeErr = fmt.Errorf("load files: %w", err)
		return
	}

	s, wakeErr = NewSession(id, files, p.Revision, m.pipeline, m.onUpdate(e))
	if wakeErr != nil {
		return
	}
	m.emit(types.ProjectEvent{Type: types.EventWoken, ProjectID: id, Revision: p.Revision})
	m.log.Info("project woken", logging.ProjectID(id), logging.Revision(p.Revision), zap.Int("files", len(files)))
}

// resetTimeout restarts the rolling idle timer of an active project.
func (m *Manager) resetTimeout(id string) {
	m.mu.RLock()
	e, ok := m.projects[id]
	m.mu.RUnlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateActive {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(m.idleTimeout, func() {
		m.onTimeout(id)
	})
}

// onTimeout is called when a project has been idle for the timeout.
func (m *Manager) onTimeout(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := m.Hibernate(ctx, id); err != nil {
		m.log.Error("hibernate on idle failed, keeping session", logging.ProjectID(id), logging.Err(err))
		m.resetTimeout(id)
	}
}
