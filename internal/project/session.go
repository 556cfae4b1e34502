// Package project runs live projects: each session owns one virtual file
// system and recompiles its preview once per batch of changes.
package project

import (
	"errors"
	"sync"
	"time"

	"github.com/opensandbox/canvas/internal/graph"
	"github.com/opensandbox/canvas/internal/metrics"
	"github.com/opensandbox/canvas/internal/preview"
	"github.com/opensandbox/canvas/internal/toolcall"
	"github.com/opensandbox/canvas/internal/transform"
	"github.com/opensandbox/canvas/internal/vfs"
	"github.com/opensandbox/canvas/pkg/types"
)

// ErrSessionClosed is returned for mutations on a session that has been
// hibernated or deleted.
var ErrSessionClosed = errors.New("session closed")

// Pipeline is the compile configuration shared by all sessions.
type Pipeline struct {
	Transformer *transform.Transformer
	Blobs       *preview.BlobStore
	CDN         preview.CDNPolicy
	// Entry overrides the conventional entry candidates when set.
	Entry string
}

// Update is the outcome of one compilation pass.
type Update struct {
	ProjectID   string
	Revision    uint64
	Artifact    *preview.Artifact
	Err         error
	Diagnostics []types.Diagnostic
	Changes     vfs.ChangeSet
	Duration    time.Duration
}

// Wire converts the update to its API form.
func (u Update) Wire() types.PreviewUpdate {
	out := types.PreviewUpdate{
		ProjectID:   u.ProjectID,
		Revision:    u.Revision,
		Diagnostics: u.Diagnostics,
	}
	if u.Artifact != nil {
		out.Artifact = u.Artifact.Wire()
	}
	if u.Err != nil {
		out.Error = u.Err.Error()
	}
	return out
}

// Session is one loaded project. Every operation holds the session mutex,
// so mutations, the recompilation they trigger and reads never interleave.
type Session struct {
	mu          sync.Mutex
	id          string
	entry       string
	fs          *vfs.FileSystem
	builder     *graph.Builder
	asm         *preview.Assembler
	revision    uint64
	last        Update
	onUpdate    func(Update)
	unsubscribe func()
	closed      bool
}

// NewSession loads files into a new file system and compiles it once.
// revision continues the project's revision counter. onUpdate, if non-nil,
// receives every compilation outcome while the session mutex is held.
func NewSession(id string, files map[string]string, revision uint64, p Pipeline, onUpdate func(Update)) (*Session, error) {
	fsys, err := vfs.Load(files)
	if err != nil {
		return nil, err
	}
	s := &Session{
		id:       id,
		entry:    p.Entry,
		fs:       fsys,
		builder:  graph.NewBuilder(p.Transformer),
		asm:      preview.NewAssembler(p.Blobs, p.CDN),
		revision: revision,
		onUpdate: onUpdate,
	}
	s.unsubscribe = fsys.Subscribe(s.recompile)

	s.mu.Lock()
	s.recompile(vfs.ChangeSet{{Kind: vfs.ChangeReset, Path: "/"}})
	s.mu.Unlock()
	return s, nil
}

// ID returns the project ID.
func (s *Session) ID() string { return s.id }

// recompile runs one full pass over the current file system. It is called
// by the file system once per outermost batch, with s.mu held.
func (s *Session) recompile(cs vfs.ChangeSet) {
	if s.closed {
		return
	}
	start := time.Now()
	s.revision++
	u := Update{ProjectID: s.id, Revision: s.revision, Changes: cs}

	g, _ := s.builder.Build(s.entry, s.fs)
	if g != nil {
		metrics.ModulesPerGraph.Observe(float64(g.Len()))
	}
	art, err := s.asm.Assemble(g, s.revision)
	if err != nil {
		u.Err = err
	} else {
		u.Artifact = art
		u.Diagnostics = art.Diagnostics
	}
	u.Duration = time.Since(start)

	result := "ok"
	switch {
	case errors.Is(err, preview.ErrNoEntryPoint):
		result = "no_entry"
	case err != nil:
		result = "error"
	case len(u.Diagnostics) > 0:
		result = "diagnostics"
	}
	metrics.CompileDuration.WithLabelValues(result).Observe(u.Duration.Seconds())
	metrics.CompilesTotal.WithLabelValues(result).Inc()
	for _, d := range u.Diagnostics {
		metrics.DiagnosticsTotal.WithLabelValues(string(d.Kind)).Inc()
	}

	s.last = u
	if s.onUpdate != nil {
		s.onUpdate(u)
	}
}

// Update runs fn against the file system inside one batch. However many
// mutations fn makes, they trigger a single recompilation when fn returns.
// Mutations made before fn fails are kept.
func (s *Session) Update(fn func(fsys *vfs.FileSystem) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return s.fs.Batch(func() error { return fn(s.fs) })
}

// View runs fn with read access to the file system.
func (s *Session) View(fn func(fsys *vfs.FileSystem) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.fs)
}

// Apply runs agent tool calls as one batch and returns their results with
// the revision current afterwards.
func (s *Session) Apply(calls []types.ToolCall) ([]types.ToolResult, Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, Update{}, ErrSessionClosed
	}
	results := toolcall.Apply(s.fs, calls...)
	return results, s.last, nil
}

// Snapshot serializes the file system and reports the revision it belongs to.
func (s *Session) Snapshot() (map[string]string, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fs.Serialize(), s.revision
}

// Restore replaces the whole file system with snapshot. On error the
// current state is left untouched.
func (s *Session) Restore(snapshot map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return s.fs.Deserialize(snapshot)
}

// Last returns the most recent compilation outcome.
func (s *Session) Last() Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Revision returns the current revision.
func (s *Session) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Close stops recompilation and releases the session's blobs.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.unsubscribe()
	s.asm.Release()
}
