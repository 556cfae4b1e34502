package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensandbox/canvas/pkg/types"
)

func TestClientRequests(t *testing.T) {
	var gotKey, gotPath, gotQuery, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("path")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/projects":
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(types.Project{ID: "p1", Name: "Demo"})
		case r.Method == http.MethodPut:
			json.NewEncoder(w).Encode(map[string]uint64{"revision": 7})
		case r.URL.Path == "/projects/missing":
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "missing: project not found"})
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret")
	ctx := context.Background()

	p, err := c.CreateProject(ctx, types.ProjectConfig{Name: "Demo"})
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, "secret", gotKey)
	assert.JSONEq(t, `{"name":"Demo"}`, gotBody)

	rev, err := c.WriteFile(ctx, "p1", "/components/Card.jsx", "export default 1")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), rev)
	assert.Equal(t, "/projects/p1/files", gotPath)
	assert.Equal(t, "/components/Card.jsx", gotQuery)
	assert.Equal(t, "export default 1", gotBody)

	require.NoError(t, c.MoveFile(ctx, "p1", "/a.jsx", "/b.jsx"))
	assert.JSONEq(t, `{"from":"/a.jsx","to":"/b.jsx"}`, gotBody)

	_, err = c.GetProject(ctx, "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "missing: project not found")
}
