package project

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensandbox/canvas/internal/preview"
	"github.com/opensandbox/canvas/internal/transform"
	"github.com/opensandbox/canvas/internal/vfs"
	"github.com/opensandbox/canvas/pkg/types"
)

func testPipeline() Pipeline {
	return Pipeline{
		Transformer: transform.New(transform.Options{}),
		Blobs:       preview.NewBlobStore("http://localhost:8080"),
		CDN:         preview.DefaultCDN(),
	}
}

func TestSessionInitialCompile(t *testing.T) {
	var updates []Update
	s, err := NewSession("p1", map[string]string{
		"/App.jsx": "export default function App() { return null }",
	}, 0, testPipeline(), func(u Update) { updates = append(updates, u) })
	require.NoError(t, err)
	defer s.Close()

	require.Len(t, updates, 1)
	u := s.Last()
	assert.Equal(t, uint64(1), u.Revision)
	require.NoError(t, u.Err)
	require.NotNil(t, u.Artifact)
	assert.Equal(t, "/App.jsx", u.Artifact.Entry.Path)
	assert.Equal(t, vfs.ChangeReset, u.Changes[0].Kind)
}

func TestSessionBatchRecompilesOnce(t *testing.T) {
	count := 0
	s, err := NewSession("p1", nil, 0, testPipeline(), func(Update) { count++ })
	require.NoError(t, err)
	defer s.Close()
	assert.True(t, errors.Is(s.Last().Err, preview.ErrNoEntryPoint))

	err = s.Update(func(fsys *vfs.FileSystem) error {
		if err := fsys.Create("/App.jsx", "import B from './B'\nexport default function App() { return <B /> }\n"); err != nil {
			return err
		}
		return fsys.Create("/B.jsx", "export default function B() { return null }")
	})
	require.NoError(t, err)

	assert.Equal(t, 2, count)
	u := s.Last()
	assert.Equal(t, uint64(2), u.Revision)
	require.NotNil(t, u.Artifact)
	assert.Len(t, u.Artifact.Blobs, 2)
	assert.Len(t, u.Changes, 2)
}

func TestSessionApply(t *testing.T) {
	s, err := NewSession("p1", map[string]string{"/App.jsx": "export default 1"}, 10, testPipeline(), nil)
	require.NoError(t, err)
	defer s.Close()

	calls := []types.ToolCall{
		{Tool: types.ToolEditor, Command: "create", Path: "/components/Card.jsx", FileText: "export default 2"},
		{Tool: types.ToolEditor, Command: "str_replace", Path: "/App.jsx", OldStr: "1", NewStr: "3"},
		{Tool: types.ToolEditor, Command: "str_replace", Path: "/App.jsx", OldStr: "missing", NewStr: "x"},
	}
	results, u, err := s.Apply(calls)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[0].OK)
	assert.True(t, results[1].OK)
	assert.False(t, results[2].OK)
	assert.Equal(t, uint64(12), u.Revision)
}

func TestSessionRestore(t *testing.T) {
	s, err := NewSession("p1", map[string]string{"/App.jsx": "export default 1"}, 0, testPipeline(), nil)
	require.NoError(t, err)
	defer s.Close()

	err = s.Restore(map[string]string{"relative.js": "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, vfs.ErrInvalidSnapshot))
	assert.Equal(t, uint64(1), s.Revision())

	require.NoError(t, s.Restore(map[string]string{"/App.tsx": "export default function App(): null { return null }"}))
	assert.Equal(t, uint64(2), s.Revision())
	assert.Equal(t, "/App.tsx", s.Last().Artifact.Entry.Path)

	files, rev := s.Snapshot()
	assert.Equal(t, uint64(2), rev)
	assert.Len(t, files, 1)
}

func TestSessionClosed(t *testing.T) {
	blobs := preview.NewBlobStore("http://localhost:8080")
	p := testPipeline()
	p.Blobs = blobs
	s, err := NewSession("p1", map[string]string{"/App.jsx": "export default 1"}, 0, p, nil)
	require.NoError(t, err)
	require.Equal(t, 1, blobs.Len())

	s.Close()
	s.Close()
	assert.Zero(t, blobs.Len())
	assert.ErrorIs(t, s.Update(func(*vfs.FileSystem) error { return nil }), ErrSessionClosed)
	_, _, err = s.Apply(nil)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestUpdateWire(t *testing.T) {
	u := Update{ProjectID: "p1", Revision: 3, Err: preview.ErrNoEntryPoint}
	w := u.Wire()
	assert.Equal(t, "no entry point", w.Error)
	assert.Nil(t, w.Artifact)
}
