// Package graph walks the static imports of a project from its entry module
// and produces the set of compiled modules reachable from it.
package graph

import (
	"github.com/opensandbox/canvas/pkg/types"
)

// ImportClass says how an import was resolved.
type ImportClass string

const (
	// Local imports point at a module in the project.
	Local ImportClass = "local"
	// External imports name a package served from the CDN.
	External ImportClass = "external"
	// URL imports are absolute URLs left for the browser.
	URL ImportClass = "url"
	// Missing imports point at a project path with no file; they are bound
	// to a stub module.
	Missing ImportClass = "missing"
	// Unsupported imports are dynamic import() or require() calls. They are
	// not walked and keep their specifier.
	Unsupported ImportClass = "unsupported"
)

// ResolvedImport is one import of a module after resolution. Target is the
// module path for Local imports and the stub path for Missing ones. Names are
// the bindings taken from the target, "default" included.
type ResolvedImport struct {
	Specifier string
	Class     ImportClass
	Target    string
	Names     []string
}

// ModuleRecord is one compiled module. Code still carries import tokens; the
// assembler rewrites them.
type ModuleRecord struct {
	Path    string
	Version uint64
	Code    string
	Imports []ResolvedImport
	Errors  []types.Diagnostic
	Style   bool
	Stub    bool

	// broken is set when the source failed to compile and Code is a
	// placeholder.
	broken bool
}

// Graph is the result of one build pass. Modules are in first-visited order.
type Graph struct {
	Entry         string
	EntryNotFound bool
	Modules       []*ModuleRecord
	Stubs         []*ModuleRecord
	External      []string

	byPath map[string]*ModuleRecord
	bare   map[string]bool
}

func newGraph() *Graph {
	return &Graph{byPath: make(map[string]*ModuleRecord), bare: make(map[string]bool)}
}

// Module returns the record for path, stubs included.
func (g *Graph) Module(path string) (*ModuleRecord, bool) {
	m, ok := g.byPath[path]
	return m, ok
}

// Len is the number of real modules.
func (g *Graph) Len() int { return len(g.Modules) }

// Diagnostics collects the errors of every module in graph order.
func (g *Graph) Diagnostics() []types.Diagnostic {
	var out []types.Diagnostic
	for _, m := range g.Modules {
		out = append(out, m.Errors...)
	}
	return out
}

func (g *Graph) add(m *ModuleRecord) {
	g.byPath[m.Path] = m
	if m.Stub {
		g.Stubs = append(g.Stubs, m)
		return
	}
	g.Modules = append(g.Modules, m)
}

func (g *Graph) external(spec string) {
	if !g.bare[spec] {
		g.bare[spec] = true
		g.External = append(g.External, spec)
	}
}
