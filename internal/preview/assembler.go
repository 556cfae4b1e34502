// Package preview turns a module graph into an artifact a browser can run:
// one blob per module plus an import map that binds local keys to blob URLs
// and bare packages to a CDN.
package preview

import (
	"errors"
	"strings"

	"github.com/opensandbox/canvas/internal/graph"
	"github.com/opensandbox/canvas/internal/transform"
	"github.com/opensandbox/canvas/pkg/types"
)

// ErrNoEntryPoint is returned when the graph has no entry module.
var ErrNoEntryPoint = errors.New("no entry point")

// BlobHandle binds a module path to its blob.
type BlobHandle struct {
	Path   string
	Handle Handle
	URL    string
}

// Artifact is the output of one assembly. It is immutable once returned.
type Artifact struct {
	Revision    uint64
	Entry       BlobHandle
	ImportMap   map[string]string
	Blobs       []BlobHandle
	Styles      []string
	Diagnostics []types.Diagnostic
}

// Wire converts the artifact to its API form.
func (a *Artifact) Wire() *types.Artifact {
	out := &types.Artifact{
		Revision:    a.Revision,
		Entry:       wireRef(a.Entry),
		ImportMap:   types.ImportMap{Imports: a.ImportMap},
		Styles:      a.Styles,
		Diagnostics: a.Diagnostics,
	}
	for _, b := range a.Blobs {
		out.Blobs = append(out.Blobs, wireRef(b))
	}
	return out
}

func wireRef(b BlobHandle) types.BlobRef {
	return types.BlobRef{Path: b.Path, Handle: string(b.Handle), URL: b.URL}
}

// LocalKey is the import map key for a project module. Keys do not depend on
// any handle, so modules that import each other in a cycle still get stable
// content addresses.
func LocalKey(path string) string {
	return "@/" + strings.TrimPrefix(path, "/")
}

// Assembler builds artifacts for one project and owns the blob references of
// the latest one. It is not safe for concurrent use.
type Assembler struct {
	store   *BlobStore
	cdn     CDNPolicy
	current *Artifact
}

// NewAssembler returns an Assembler storing blobs in store.
func NewAssembler(store *BlobStore, cdn CDNPolicy) *Assembler {
	return &Assembler{store: store, cdn: cdn}
}

// Assemble builds the artifact for g. The previous artifact's blobs are
// released only after the new artifact holds its own references. When g has
// no entry point the previous artifact is released and ErrNoEntryPoint is
// returned.
func (a *Assembler) Assemble(g *graph.Graph, revision uint64) (*Artifact, error) {
	if g == nil || g.EntryNotFound {
		a.Release()
		return nil, ErrNoEntryPoint
	}

	art := &Artifact{
		Revision:    revision,
		ImportMap:   make(map[string]string),
		Diagnostics: g.Diagnostics(),
	}
	handles := make(map[string]BlobHandle)
	var imported []string

	modules := append(append([]*graph.ModuleRecord(nil), g.Modules...), g.Stubs...)
	for _, m := range modules {
		code := transform.Rewrite(m.Code, importsOf(m), func(imp transform.Import) string {
			ri := find(m.Imports, imp.Specifier)
			switch ri.Class {
			case graph.Local, graph.Missing:
				imported = append(imported, ri.Target)
				return LocalKey(ri.Target)
			case graph.External:
				art.ImportMap[ri.Specifier] = a.cdn.URL(ri.Specifier)
			}
			return ri.Specifier
		})

		h := a.store.Acquire(m.Path, code)
		bh := BlobHandle{Path: m.Path, Handle: h, URL: a.store.URL(h)}
		handles[m.Path] = bh
		art.Blobs = append(art.Blobs, bh)
		if m.Style {
			art.Styles = append(art.Styles, m.Path)
		}
	}

	for _, p := range imported {
		if bh, ok := handles[p]; ok {
			art.ImportMap[LocalKey(p)] = bh.URL
		}
	}
	art.Entry = handles[g.Entry]

	prev := a.current
	a.current = art
	a.release(prev)
	return art, nil
}

// Current returns the latest artifact, or nil.
func (a *Assembler) Current() *Artifact {
	return a.current
}

// Release drops the references held by the current artifact.
func (a *Assembler) Release() {
	prev := a.current
	a.current = nil
	a.release(prev)
}

func (a *Assembler) release(art *Artifact) {
	if art == nil {
		return
	}
	for _, b := range art.Blobs {
		a.store.Release(b.Handle)
	}
}

func importsOf(m *graph.ModuleRecord) []transform.Import {
	out := make([]transform.Import, len(m.Imports))
	for i, ri := range m.Imports {
		out[i] = transform.Import{Specifier: ri.Specifier}
	}
	return out
}

// find returns how spec was resolved, preferring a static resolution when the
// same specifier is also loaded dynamically.
func find(imports []graph.ResolvedImport, spec string) graph.ResolvedImport {
	found := graph.ResolvedImport{Specifier: spec, Class: graph.Unsupported}
	for _, ri := range imports {
		if ri.Specifier != spec {
			continue
		}
		if ri.Class != graph.Unsupported {
			return ri
		}
		found = ri
	}
	return found
}
