package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensandbox/canvas/internal/transform"
	"github.com/opensandbox/canvas/internal/vfs"
	"github.com/opensandbox/canvas/pkg/types"
)

func project(t *testing.T, files map[string]string) *vfs.FileSystem {
	t.Helper()
	fsys, err := vfs.Load(files)
	require.NoError(t, err)
	return fsys
}

func build(t *testing.T, files map[string]string) *Graph {
	t.Helper()
	g, err := NewBuilder(transform.New(transform.Options{})).Build("", project(t, files))
	require.NoError(t, err)
	return g
}

func paths(mods []*ModuleRecord) []string {
	var out []string
	for _, m := range mods {
		out = append(out, m.Path)
	}
	return out
}

func TestSingleModule(t *testing.T) {
	g := build(t, map[string]string{
		"/App.jsx": "export default function App(){return null}",
	})
	assert.Equal(t, "/App.jsx", g.Entry)
	assert.Equal(t, 1, g.Len())
	assert.Empty(t, g.Diagnostics())
	assert.Empty(t, g.External)
	assert.Empty(t, g.Stubs)
}

func TestCycleSafety(t *testing.T) {
	g := build(t, map[string]string{
		"/App.js": "import { a } from './a'\nexport default function App() { return a }\n",
		"/a.js":   "import { b } from './b'\nexport const a = () => b\n",
		"/b.js":   "import { a } from './a'\nimport App from './App'\nexport const b = () => [a, App]\n",
	})
	assert.Equal(t, []string{"/App.js", "/a.js", "/b.js"}, paths(g.Modules))
	assert.Empty(t, g.Diagnostics())

	b, ok := g.Module("/b.js")
	require.True(t, ok)
	assert.Equal(t, []ResolvedImport{
		{Specifier: "./a", Class: Local, Target: "/a.js", Names: []string{"a"}},
		{Specifier: "./App", Class: Local, Target: "/App.js", Names: []string{"default"}},
	}, b.Imports)
}

func TestResolutionOrder(t *testing.T) {
	g := build(t, map[string]string{
		"/App.js": `import Nav from './components'
import { cn } from '@/lib/util'
import data from './data.json'
import './styles/site.css'
export default function App() { return [Nav, cn, data] }
`,
		"/components/index.jsx": "export default function Nav() { return null }",
		"/lib/util.ts":          "export const cn = (...c: string[]) => c.join(' ')",
		"/lib/util.js":          "export const cn = 1",
		"/data.json":            `{"n": 1}`,
		"/styles/site.css":      "body { margin: 0 }",
	})
	require.Empty(t, g.Diagnostics())

	app, _ := g.Module("/App.js")
	var targets []string
	for _, imp := range app.Imports {
		targets = append(targets, imp.Target)
	}
	assert.Equal(t, []string{"/components/index.jsx", "/lib/util.js", "/data.json", "/styles/site.css"}, targets)

	css, ok := g.Module("/styles/site.css")
	require.True(t, ok)
	assert.True(t, css.Style)
	assert.NotZero(t, css.Version)
}

func TestPartialFailureIsolation(t *testing.T) {
	g := build(t, map[string]string{
		"/App.jsx":             "import Good from './components/Good.jsx'\nimport Bad from './components/Bad.jsx'\nexport default function App() { return [Good, Bad] }\n",
		"/components/Good.jsx": "export default function Good() { return null }",
		"/components/Bad.jsx":  "export default function Bad( {\n",
	})
	good, ok := g.Module("/components/Good.jsx")
	require.True(t, ok)
	assert.Empty(t, good.Errors)
	assert.NotEmpty(t, good.Code)

	bad, ok := g.Module("/components/Bad.jsx")
	require.True(t, ok)
	require.Len(t, bad.Errors, 1)
	assert.Equal(t, types.DiagnosticParse, bad.Errors[0].Kind)
	assert.Contains(t, bad.Code, "export default function BrokenModule()")
}

func TestStubsAndPlaceholdersExportRequestedNames(t *testing.T) {
	g := build(t, map[string]string{
		"/App.jsx": `import { Button } from './components/Button'
import Bad, { Title } from './components/Bad.jsx'
import { Card } from './components/Card.jsx'
export default function App() { return [Button, Bad, Title, Card] }
`,
		"/components/Bad.jsx":  "export default function Bad( {\n",
		"/components/Card.jsx": "import Icon, { Star } from './Icon'\nexport const Card = () => [Icon, Star]\n",
	})

	require.Len(t, g.Stubs, 2)
	button, ok := g.Module("/components/Button")
	require.True(t, ok)
	assert.True(t, button.Stub)
	assert.Contains(t, button.Code, "export default function MissingModule")
	assert.Contains(t, button.Code, "__canvasNoop as Button")

	icon, ok := g.Module("/components/Icon")
	require.True(t, ok)
	assert.Contains(t, icon.Code, "export default function MissingModule")
	assert.Contains(t, icon.Code, "__canvasNoop as Star")
	assert.NotContains(t, icon.Code, "__canvasNoop as Button")

	bad, ok := g.Module("/components/Bad.jsx")
	require.True(t, ok)
	assert.Contains(t, bad.Code, "console.error(")
	assert.Contains(t, bad.Code, "export default function BrokenModule()")
	assert.Contains(t, bad.Code, "__canvasNoop as Title")
	assert.NotContains(t, bad.Code, "__canvasNoop as default")

	card, _ := g.Module("/components/Card.jsx")
	assert.NotContains(t, card.Code, "__canvasNoop")
}

func TestMissingImport(t *testing.T) {
	g := build(t, map[string]string{
		"/App.jsx": "import Missing from './components/Missing.jsx'\nexport default function App() { return Missing }\n",
	})
	diags := g.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, types.DiagnosticMissing, diags[0].Kind)
	assert.Equal(t, "/App.jsx", diags[0].Path)
	assert.Equal(t, "./components/Missing.jsx", diags[0].Specifier)

	require.Len(t, g.Stubs, 1)
	assert.Equal(t, "/components/Missing.jsx", g.Stubs[0].Path)
	assert.Contains(t, g.Stubs[0].Code, "export default function MissingModule")
	assert.Equal(t, 1, g.Len())
}

func TestExternalSpecifiers(t *testing.T) {
	g := build(t, map[string]string{
		"/App.js": `import React from 'react'
import { motion } from 'framer-motion'
import { Button } from '@acme/ui/button'
import confetti from 'https://cdn.example.com/confetti.js'
import Card from './Card'
export default function App() { return [React, motion, Button, confetti, Card] }
`,
		"/Card.js": "import React from 'react'\nexport default function Card() { return React }\n",
	})
	assert.Equal(t, []string{"react", "framer-motion", "@acme/ui/button"}, g.External)

	app, _ := g.Module("/App.js")
	assert.Equal(t, URL, app.Imports[3].Class)
	assert.Empty(t, g.Diagnostics())
}

func TestDynamicImportFlagged(t *testing.T) {
	g := build(t, map[string]string{
		"/App.js":  "export default function App() { return import('./Lazy') }\n",
		"/Lazy.js": "export default 1",
	})
	assert.Equal(t, 1, g.Len())
	diags := g.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, types.DiagnosticUnsupported, diags[0].Kind)
	_, walked := g.Module("/Lazy.js")
	assert.False(t, walked)
}

func TestEntry(t *testing.T) {
	b := NewBuilder(transform.New(transform.Options{}))

	g, err := b.Build("", vfs.New())
	assert.True(t, errors.Is(err, ErrEntryNotFound))
	assert.True(t, g.EntryNotFound)

	fsys := project(t, map[string]string{"/App.tsx": "export default function App(): null { return null }"})
	g, err = b.Build("", fsys)
	require.NoError(t, err)
	assert.Equal(t, "/App.tsx", g.Entry)

	g, err = b.Build("/App", fsys)
	require.NoError(t, err)
	assert.Equal(t, "/App.tsx", g.Entry)

	_, err = b.Build("/Main.jsx", fsys)
	assert.True(t, errors.Is(err, ErrEntryNotFound))
}

func TestRebuildIsStable(t *testing.T) {
	fsys := project(t, map[string]string{
		"/App.jsx":          "import B from './components/B'\nexport default function App() { return <B /> }\n",
		"/components/B.jsx": "export default function B() { return <p>b</p> }\n",
	})
	b := NewBuilder(transform.New(transform.Options{}))
	first, err := b.Build("", fsys)
	require.NoError(t, err)

	fresh, err := NewBuilder(transform.New(transform.Options{})).Build("", fsys)
	require.NoError(t, err)
	second, err := b.Build("", fsys)
	require.NoError(t, err)

	for i := range first.Modules {
		assert.Equal(t, first.Modules[i].Code, second.Modules[i].Code)
		assert.Equal(t, fresh.Modules[i].Code, second.Modules[i].Code)
	}
}
