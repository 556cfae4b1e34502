package project

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensandbox/canvas/internal/storage"
	"github.com/opensandbox/canvas/internal/template"
	"github.com/opensandbox/canvas/internal/vfs"
	"github.com/opensandbox/canvas/pkg/types"
)

type recorder struct {
	mu     sync.Mutex
	events []types.ProjectEvent
}

func (r *recorder) OnEvent(ev types.ProjectEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func newTestManager(t *testing.T, idle time.Duration) (*Manager, *MemoryStore, *recorder) {
	t.Helper()
	store := NewMemoryStore()
	archive, err := storage.NewArchive(storage.NewMemoryBlobs())
	require.NoError(t, err)
	rec := &recorder{}
	m := NewManager(Config{
		Store:       store,
		Archive:     archive,
		Templates:   template.NewRegistry(),
		Pipeline:    testPipeline(),
		IdleTimeout: idle,
		Listeners:   []Listener{rec},
	})
	t.Cleanup(func() { m.Close(context.Background()) })
	return m, store, rec
}

func TestManagerCreate(t *testing.T) {
	ctx := context.Background()
	m, store, rec := newTestManager(t, time.Hour)

	p, err := m.Create(ctx, types.ProjectConfig{Name: "Demo", Template: "react"})
	require.NoError(t, err)
	assert.Equal(t, "Demo", p.Name)
	assert.Equal(t, uint64(1), p.Revision)

	state, ok := m.State(p.ID)
	require.True(t, ok)
	assert.Equal(t, StateActive, state)

	files, err := store.LoadFiles(ctx, p.ID)
	require.NoError(t, err)
	assert.Contains(t, files, "/components/Button.jsx")
	assert.Equal(t, []string{types.EventCreated, types.EventCompiled}, rec.types())
	assert.Len(t, store.Events(p.ID), 2)

	s, err := m.Session(ctx, p.ID)
	require.NoError(t, err)
	u := s.Last()
	require.NoError(t, u.Err)
	assert.Empty(t, u.Diagnostics)
	assert.Contains(t, u.Artifact.ImportMap, "react")
}

func TestManagerCreateDefaults(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, time.Hour)

	p, err := m.Create(ctx, types.ProjectConfig{})
	require.NoError(t, err)
	assert.Equal(t, "Untitled", p.Name)
	assert.Equal(t, DefaultTemplate, p.Template)

	p, err = m.Create(ctx, types.ProjectConfig{Files: map[string]string{"/App.jsx": "export default 1"}})
	require.NoError(t, err)
	assert.Empty(t, p.Template)

	_, err = m.Create(ctx, types.ProjectConfig{Template: "nope"})
	assert.Error(t, err)

	_, err = m.Create(ctx, types.ProjectConfig{Files: map[string]string{"/a": "file", "/a/b": "clash"}})
	assert.True(t, errors.Is(err, vfs.ErrInvalidSnapshot))
}

func TestManagerHibernateAndWake(t *testing.T) {
	ctx := context.Background()
	m, store, rec := newTestManager(t, time.Hour)

	p, err := m.Create(ctx, types.ProjectConfig{Files: map[string]string{"/App.jsx": "export default 1"}})
	require.NoError(t, err)

	err = m.Route(ctx, p.ID, func(s *Session) error {
		return s.Update(func(fsys *vfs.FileSystem) error {
			return fsys.Update("/App.jsx", "export default 2")
		})
	})
	require.NoError(t, err)

	require.NoError(t, m.Hibernate(ctx, p.ID))
	state, _ := m.State(p.ID)
	assert.Equal(t, StateHibernated, state)

	stored, err := store.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ProjectStatusHibernated, stored.Status)
	assert.Equal(t, uint64(2), stored.Revision)

	got, err := m.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ProjectStatusHibernated, got.Status)

	var content string
	err = m.Route(ctx, p.ID, func(s *Session) error {
		return s.View(func(fsys *vfs.FileSystem) error {
			var err error
			content, err = fsys.Read("/App.jsx")
			return err
		})
	})
	require.NoError(t, err)
	assert.Equal(t, "export default 2", content)

	got, err = m.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ProjectStatusActive, got.Status)
	assert.Equal(t, uint64(3), got.Revision)
	assert.Contains(t, rec.types(), types.EventHibernated)
	assert.Contains(t, rec.types(), types.EventWoken)
}

func TestManagerIdleTimeout(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, 20*time.Millisecond)

	p, err := m.Create(ctx, types.ProjectConfig{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		state, _ := m.State(p.ID)
		return state == StateHibernated
	}, 2*time.Second, 10*time.Millisecond)

	s, err := m.Session(ctx, p.ID)
	require.NoError(t, err)
	assert.NotNil(t, s.Last().Artifact)
}

func TestManagerWakeUntracked(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager(t, time.Hour)

	p, err := m.Create(ctx, types.ProjectConfig{})
	require.NoError(t, err)
	require.NoError(t, m.Hibernate(ctx, p.ID))

	// A fresh manager over the same store, as after a restart.
	fresh := NewManager(Config{Store: store, Pipeline: testPipeline(), IdleTimeout: time.Hour})
	defer fresh.Close(ctx)
	_, ok := fresh.State(p.ID)
	assert.False(t, ok)

	s, err := fresh.Session(ctx, p.ID)
	require.NoError(t, err)
	assert.NotNil(t, s.Last().Artifact)

	_, err = fresh.Session(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestManagerDelete(t *testing.T) {
	ctx := context.Background()
	m, _, rec := newTestManager(t, time.Hour)

	p, err := m.Create(ctx, types.ProjectConfig{})
	require.NoError(t, err)
	require.NoError(t, m.Delete(ctx, p.ID))

	_, err = m.Get(ctx, p.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, ok := m.State(p.ID)
	assert.False(t, ok)
	assert.Contains(t, rec.types(), types.EventDeleted)
	assert.True(t, errors.Is(m.Delete(ctx, p.ID), ErrNotFound))
}

func TestManagerArchiveRestore(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, time.Hour)

	p, err := m.Create(ctx, types.ProjectConfig{Files: map[string]string{"/App.jsx": "export default 1"}})
	require.NoError(t, err)

	info, err := m.Archive(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.ArchiveKey(p.ID), info.Key)

	require.NoError(t, m.Route(ctx, p.ID, func(s *Session) error {
		return s.Update(func(fsys *vfs.FileSystem) error {
			return fsys.Create("/Extra.jsx", "export default 2")
		})
	}))

	_, err = m.RestoreArchive(ctx, p.ID)
	require.NoError(t, err)

	s, err := m.Session(ctx, p.ID)
	require.NoError(t, err)
	files, _ := s.Snapshot()
	assert.Equal(t, map[string]string{"/App.jsx": "export default 1"}, files)
}

func TestAutosaver(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager(t, time.Hour)
	a := NewAutosaver(m, time.Hour)

	p, err := m.Create(ctx, types.ProjectConfig{Files: map[string]string{"/App.jsx": "export default 1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, a.SaveDirty())
	assert.Equal(t, 0, a.SaveDirty())

	require.NoError(t, m.Route(ctx, p.ID, func(s *Session) error {
		return s.Update(func(fsys *vfs.FileSystem) error {
			return fsys.Update("/App.jsx", "export default 5")
		})
	}))
	assert.Equal(t, 1, a.SaveDirty())

	files, err := store.LoadFiles(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "export default 5", files["/App.jsx"])
	stored, _ := store.GetProject(ctx, p.ID)
	assert.Equal(t, types.ProjectStatusActive, stored.Status)
}

func TestManagerApplyToolCalls(t *testing.T) {
	ctx := context.Background()
	m, store, rec := newTestManager(t, time.Hour)

	p, err := m.Create(ctx, types.ProjectConfig{Files: map[string]string{
		"/App.jsx": "export default function App() { return null }",
	}})
	require.NoError(t, err)

	resp, err := m.ApplyToolCalls(ctx, p.ID, []types.ToolCall{
		{Tool: types.ToolEditor, Command: "create", Path: "/components/Badge.jsx", FileText: "export default () => null"},
		{Tool: types.ToolEditor, Command: "str_replace", Path: "/App.jsx", OldStr: "missing", NewStr: "x"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Results[0].OK)
	assert.False(t, resp.Results[1].OK)
	assert.Equal(t, uint64(2), resp.Revision)

	evs := store.Events(p.ID)
	last := evs[len(evs)-1]
	assert.Equal(t, types.EventToolCalls, last.Type)
	assert.JSONEq(t, `{"calls":2,"failed":1}`, string(last.Payload))
	assert.Contains(t, rec.types(), types.EventToolCalls)

	_, err = m.ApplyToolCalls(ctx, "missing", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}
