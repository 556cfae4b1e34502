package preview

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensandbox/canvas/internal/graph"
	"github.com/opensandbox/canvas/internal/transform"
	"github.com/opensandbox/canvas/internal/vfs"
)

const publicURL = "http://localhost:8080"

func buildGraph(t *testing.T, files map[string]string) *graph.Graph {
	t.Helper()
	fsys, err := vfs.Load(files)
	require.NoError(t, err)
	g, err := graph.NewBuilder(transform.New(transform.Options{})).Build("", fsys)
	require.NoError(t, err)
	return g
}

func TestSplitPackage(t *testing.T) {
	tests := []struct {
		spec, name, sub string
	}{
		{"react", "react", ""},
		{"react/jsx-runtime", "react", "/jsx-runtime"},
		{"@acme/ui", "@acme/ui", ""},
		{"@acme/ui/button/index.js", "@acme/ui", "/button/index.js"},
	}
	for _, tt := range tests {
		name, sub := SplitPackage(tt.spec)
		if name != tt.name || sub != tt.sub {
			t.Errorf("SplitPackage(%q) = %q, %q; want %q, %q", tt.spec, name, sub, tt.name, tt.sub)
		}
	}
}

func TestCDNPolicy(t *testing.T) {
	cdn := DefaultCDN()
	assert.Equal(t, "https://esm.sh/react@19", cdn.URL("react"))
	assert.Equal(t, "https://esm.sh/react-dom@19/client", cdn.URL("react-dom/client"))
	assert.Equal(t, "https://esm.sh/lodash", cdn.URL("lodash"))

	custom := CDNPolicy{BaseURL: "https://cdn.jsdelivr.net/npm", Versions: map[string]string{"@acme/ui": "2.1.0"}}
	assert.Equal(t, "https://cdn.jsdelivr.net/npm/@acme/ui@2.1.0/button", custom.URL("@acme/ui/button"))
}

func TestBlobStoreRefcount(t *testing.T) {
	s := NewBlobStore(publicURL + "/")
	h := s.Acquire("/App.jsx", "code")
	assert.Equal(t, h, s.Acquire("/App.jsx", "code"))
	assert.Equal(t, 2, s.Refs(h))
	assert.Equal(t, publicURL+"/blobs/"+string(h)+".js", s.URL(h))

	other := s.Acquire("/Other.jsx", "code")
	assert.NotEqual(t, h, other)

	s.Release(h)
	code, ok := s.Get(h)
	require.True(t, ok)
	assert.Equal(t, "code", code)

	s.Release(h)
	_, ok = s.Get(h)
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())

	s.Release(h)
	assert.Equal(t, 1, s.Len())
}

func TestSingleModuleArtifact(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"/App.jsx": "export default function App(){return null}",
	})
	store := NewBlobStore(publicURL)
	art, err := NewAssembler(store, DefaultCDN()).Assemble(g, 1)
	require.NoError(t, err)

	assert.Len(t, art.Blobs, 1)
	assert.Empty(t, art.ImportMap)
	assert.Empty(t, art.Diagnostics)
	assert.Equal(t, "/App.jsx", art.Entry.Path)
	assert.True(t, strings.HasPrefix(art.Entry.URL, publicURL+"/blobs/"))
	assert.Equal(t, 1, store.Len())
}

func TestBareSpecifierArtifact(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"/App.jsx": "import React from 'react'\nexport default function App() { return React.createElement('div') }\n",
	})
	art, err := NewAssembler(NewBlobStore(publicURL), DefaultCDN()).Assemble(g, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"react": "https://esm.sh/react@19"}, art.ImportMap)
	assert.Len(t, art.Blobs, 1)
}

func TestLocalImportsRewritten(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"/App.jsx":               "import Button from './components/Button'\nexport default function App() { return <Button /> }\n",
		"/components/Button.jsx": "import App from '../App'\nexport default function Button() { return <button>{String(!!App)}</button> }\n",
	})
	store := NewBlobStore(publicURL)
	art, err := NewAssembler(store, DefaultCDN()).Assemble(g, 1)
	require.NoError(t, err)
	require.Len(t, art.Blobs, 2)

	button := art.Blobs[1]
	assert.Equal(t, "/components/Button.jsx", button.Path)
	assert.Equal(t, button.URL, art.ImportMap["@/components/Button.jsx"])
	assert.Equal(t, art.Entry.URL, art.ImportMap["@/App.jsx"])
	assert.Contains(t, art.ImportMap, "react/jsx-runtime")

	app, ok := store.Get(art.Entry.Handle)
	require.True(t, ok)
	assert.Contains(t, app, `"@/components/Button.jsx"`)
	assert.Contains(t, app, `"react/jsx-runtime"`)
	assert.NotContains(t, app, "canvas-import:")
}

func TestMissingModuleArtifact(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"/App.jsx": "import Missing from './components/Missing.jsx'\nexport default function App() { return Missing }\n",
	})
	art, err := NewAssembler(NewBlobStore(publicURL), DefaultCDN()).Assemble(g, 1)
	require.NoError(t, err)
	require.Len(t, art.Diagnostics, 1)
	require.Len(t, art.Blobs, 2)
	assert.Equal(t, art.Blobs[1].URL, art.ImportMap["@/components/Missing.jsx"])
}

func TestPartialFailureArtifact(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"/App.jsx":             "import Good from './components/Good.jsx'\nimport Bad from './components/Bad.jsx'\nexport default function App() { return [Good, Bad] }\n",
		"/components/Good.jsx": "export default function Good() { return null }",
		"/components/Bad.jsx":  "export default function Bad( {\n",
	})
	art, err := NewAssembler(NewBlobStore(publicURL), DefaultCDN()).Assemble(g, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, art.ImportMap["@/components/Good.jsx"])
	assert.NotEmpty(t, art.ImportMap["@/components/Bad.jsx"])
	assert.Len(t, art.Diagnostics, 1)
}

func TestBrokenImportsStillLink(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"/App.jsx":             "import { Button } from './components/Button'\nimport Bad from './Bad'\nimport Good from './components/Good.jsx'\nexport default function App() { return [Button, Bad, Good] }\n",
		"/Bad.jsx":             "export default function Bad( {\n",
		"/components/Good.jsx": "export default function Good() { return null }",
	})
	store := NewBlobStore(publicURL)
	art, err := NewAssembler(store, DefaultCDN()).Assemble(g, 1)
	require.NoError(t, err)

	handles := make(map[string]Handle)
	for _, b := range art.Blobs {
		handles[b.Path] = b.Handle
	}
	button, ok := store.Get(handles["/components/Button"])
	require.True(t, ok)
	assert.Contains(t, button, "export default function MissingModule")
	assert.Contains(t, button, "__canvasNoop as Button")

	bad, ok := store.Get(handles["/Bad.jsx"])
	require.True(t, ok)
	assert.Contains(t, bad, "export default function BrokenModule()")
}

func TestPreviousArtifactReleased(t *testing.T) {
	fsys, err := vfs.Load(map[string]string{
		"/App.jsx":   "import Hello from './Hello'\nexport default function App() { return Hello }\n",
		"/Hello.jsx": "export default 'hello'",
	})
	require.NoError(t, err)
	b := graph.NewBuilder(transform.New(transform.Options{}))
	store := NewBlobStore(publicURL)
	asm := NewAssembler(store, DefaultCDN())

	g, err := b.Build("", fsys)
	require.NoError(t, err)
	first, err := asm.Assemble(g, 1)
	require.NoError(t, err)

	// Same input: same handles, no growth.
	g, err = b.Build("", fsys)
	require.NoError(t, err)
	again, err := asm.Assemble(g, 2)
	require.NoError(t, err)
	assert.Equal(t, first.Blobs, again.Blobs)
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, 1, store.Refs(first.Entry.Handle))

	require.NoError(t, fsys.Update("/Hello.jsx", "export default 'bye'"))
	g, err = b.Build("", fsys)
	require.NoError(t, err)
	next, err := asm.Assemble(g, 3)
	require.NoError(t, err)

	assert.Equal(t, first.Entry.Handle, next.Entry.Handle)
	assert.NotEqual(t, first.Blobs[1].Handle, next.Blobs[1].Handle)
	assert.Zero(t, store.Refs(first.Blobs[1].Handle))
	assert.Equal(t, 2, store.Len())
	assert.Same(t, next, asm.Current())
}

func TestNoEntryPoint(t *testing.T) {
	store := NewBlobStore(publicURL)
	asm := NewAssembler(store, DefaultCDN())
	_, err := asm.Assemble(buildGraph(t, map[string]string{"/App.jsx": "export default 1"}), 1)
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	g, err := graph.NewBuilder(transform.New(transform.Options{})).Build("", vfs.New())
	require.Error(t, err)
	art, err := asm.Assemble(g, 2)
	assert.Nil(t, art)
	assert.True(t, errors.Is(err, ErrNoEntryPoint))
	assert.Nil(t, asm.Current())
	assert.Zero(t, store.Len())
}

func TestFullRebuildIsIdentical(t *testing.T) {
	files := map[string]string{
		"/App.jsx":          "import B from './components/B'\nexport default function App() { return <B /> }\n",
		"/components/B.jsx": "import App from '../App'\nexport default function B() { return <p>{typeof App}</p> }\n",
	}
	a, err := NewAssembler(NewBlobStore(publicURL), DefaultCDN()).Assemble(buildGraph(t, files), 1)
	require.NoError(t, err)
	b, err := NewAssembler(NewBlobStore(publicURL), DefaultCDN()).Assemble(buildGraph(t, files), 1)
	require.NoError(t, err)
	assert.Equal(t, a.Blobs, b.Blobs)
	assert.Equal(t, a.ImportMap, b.ImportMap)
}

func TestRenderDocument(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"/App.jsx": "import Missing from './Missing'\nexport default function App() { return <div>{Missing}</div> }\n",
	})
	art, err := NewAssembler(NewBlobStore(publicURL), DefaultCDN()).Assemble(g, 1)
	require.NoError(t, err)

	var buf bytes.Buffer
	doc := Document{Title: "Demo <1>", CDN: DefaultCDN(), LiveURL: "ws://localhost:8080/preview/p1/ws"}
	require.NoError(t, doc.Render(&buf, art))
	out := buf.String()

	assert.Contains(t, out, `<script type="importmap">{"imports":{`)
	assert.Contains(t, out, `"react-dom/client":"https://esm.sh/react-dom@19/client"`)
	assert.Contains(t, out, `"@/Missing":`)
	assert.Contains(t, out, "Demo &lt;1&gt;")
	assert.Contains(t, out, "/App.jsx: cannot resolve")
	assert.Contains(t, out, "new WebSocket(")
	assert.Regexp(t, `revision >\s+1\s`, out)
}

func TestRenderEmpty(t *testing.T) {
	var buf bytes.Buffer
	doc := Document{LiveURL: "ws://localhost:8080/preview/p1/ws?token=t"}
	require.NoError(t, doc.RenderEmpty(&buf, 4, "Nothing to preview yet", nil))
	out := buf.String()
	assert.Contains(t, out, "<title>Preview</title>")
	assert.Contains(t, out, "Nothing to preview yet")
	assert.Regexp(t, `revision >\s+4\s`, out)
	assert.NotContains(t, out, "<pre>")
}
