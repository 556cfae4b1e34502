package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensandbox/canvas/internal/project"
	"github.com/opensandbox/canvas/pkg/types"
)

var _ project.Store = (*SnapshotCache)(nil)

// unreachable returns a client whose every command fails fast.
func unreachable() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestFallsThroughWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	inner := project.NewMemoryStore()
	require.NoError(t, inner.CreateProject(ctx, &types.Project{ID: "p1"}))

	c := NewSnapshotCacheWithClient(unreachable(), inner, time.Minute)
	defer c.Close()

	files := map[string]string{"/App.jsx": "export default 1"}
	require.NoError(t, c.SaveFiles(ctx, "p1", files))

	got, err := c.LoadFiles(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, files, got)

	p, err := c.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)

	require.NoError(t, c.DeleteProject(ctx, "p1"))
	_, err = c.LoadFiles(ctx, "p1")
	assert.ErrorIs(t, err, project.ErrNotFound)
}

func TestSaveErrorPropagates(t *testing.T) {
	c := NewSnapshotCacheWithClient(unreachable(), project.NewMemoryStore(), 0)
	defer c.Close()
	err := c.SaveFiles(context.Background(), "missing", map[string]string{})
	assert.ErrorIs(t, err, project.ErrNotFound)
}

func TestNewSnapshotCacheErrors(t *testing.T) {
	_, err := NewSnapshotCache("not a url", project.NewMemoryStore(), time.Minute)
	assert.Error(t, err)
}
