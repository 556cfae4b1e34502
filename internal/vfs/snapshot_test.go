package vfs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeRoundTrip(t *testing.T) {
	fsys := New()
	files := map[string]string{
		"/App.jsx":               "import B from './components/Button'",
		"/components/Button.jsx": "export default function B() {}",
		"/styles/site.css":       "body { margin: 0 }",
	}
	for p, c := range files {
		require.NoError(t, fsys.Create(p, c))
	}

	snap := fsys.Serialize()
	assert.Equal(t, files, snap)

	restored, err := Load(snap)
	require.NoError(t, err)
	assert.Equal(t, snap, restored.Serialize())
	assert.ElementsMatch(t, fsys.Files(), restored.Files())
}

func TestDeserializeRejectsBadKeys(t *testing.T) {
	fsys := New()
	require.NoError(t, fsys.Create("/keep.js", "x"))

	err := fsys.Deserialize(map[string]string{
		"relative.js": "",
		"/a//b.js":    "",
		"/ok.js":      "",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSnapshot))
	assert.Contains(t, err.Error(), "relative.js")
	assert.Contains(t, err.Error(), "/a//b.js")

	// Untouched on failure.
	assert.Equal(t, []string{"/keep.js"}, fsys.Files())
}

func TestDeserializeRejectsFileDirClash(t *testing.T) {
	fsys := New()
	err := fsys.Deserialize(map[string]string{
		"/a":      "file",
		"/a/b.js": "child",
	})
	assert.True(t, errors.Is(err, ErrInvalidSnapshot), "got %v", err)
}

func TestDeserializeEmitsReset(t *testing.T) {
	fsys := New()
	var got []ChangeSet
	fsys.Subscribe(func(cs ChangeSet) { got = append(got, cs) })

	require.NoError(t, fsys.Deserialize(map[string]string{"/App.jsx": ""}))
	require.Len(t, got, 1)
	assert.Equal(t, ChangeSet{{Kind: ChangeReset, Path: "/"}}, got[0])
}
