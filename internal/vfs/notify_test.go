package vfs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeOutsideBatch(t *testing.T) {
	fsys := New()
	var sets []ChangeSet
	unsubscribe := fsys.Subscribe(func(cs ChangeSet) { sets = append(sets, cs) })

	require.NoError(t, fsys.Create("/App.jsx", ""))
	require.Len(t, sets, 1)
	assert.Equal(t, ChangeSet{{Kind: ChangeCreated, Path: "/App.jsx"}}, sets[0])

	unsubscribe()
	require.NoError(t, fsys.Update("/App.jsx", "x"))
	assert.Len(t, sets, 1)
}

func TestBatchCoalesces(t *testing.T) {
	fsys := New()
	require.NoError(t, fsys.Create("/App.jsx", ""))

	var sets []ChangeSet
	fsys.Subscribe(func(cs ChangeSet) { sets = append(sets, cs) })

	err := fsys.Batch(func() error {
		if err := fsys.Update("/App.jsx", "1"); err != nil {
			return err
		}
		if err := fsys.Update("/App.jsx", "2"); err != nil {
			return err
		}
		return fsys.Batch(func() error {
			return fsys.Create("/lib/util.js", "")
		})
	})
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, ChangeSet{
		{Kind: ChangeUpdated, Path: "/App.jsx"},
		{Kind: ChangeCreated, Path: "/lib"},
		{Kind: ChangeCreated, Path: "/lib/util.js"},
	}, sets[0])
	assert.Equal(t, []string{"/App.jsx", "/lib", "/lib/util.js"}, sets[0].Paths())
}

func TestFailedOperationsEmitNothing(t *testing.T) {
	fsys := New()
	require.NoError(t, fsys.Create("/App.jsx", ""))

	calls := 0
	fsys.Subscribe(func(ChangeSet) { calls++ })

	assert.Error(t, fsys.Create("/App.jsx", ""))
	assert.Error(t, fsys.Delete("/missing"))

	err := fsys.Batch(func() error { return nil })
	require.NoError(t, err)
	assert.Zero(t, calls)

	boom := errors.New("boom")
	err = fsys.Batch(func() error {
		_ = fsys.Update("/App.jsx", "x")
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRenameChange(t *testing.T) {
	fsys := New()
	require.NoError(t, fsys.Create("/old.js", ""))

	var got ChangeSet
	fsys.Subscribe(func(cs ChangeSet) { got = cs })
	require.NoError(t, fsys.Rename("/old.js", "new.js"))
	assert.Equal(t, ChangeSet{{Kind: ChangeRenamed, Path: "/new.js", OldPath: "/old.js"}}, got)
}
