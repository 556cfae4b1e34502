package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/opensandbox/canvas/internal/transform"
	"github.com/opensandbox/canvas/internal/vpath"
	"github.com/opensandbox/canvas/pkg/types"
)

// ErrEntryNotFound is returned when the entry path resolves to no file.
var ErrEntryNotFound = errors.New("entry not found")

// Builder builds module graphs. It remembers the transform results of its
// previous pass, keyed by path and content, so unchanged files are not
// recompiled. A Builder is not safe for concurrent use.
type Builder struct {
	tr    *transform.Transformer
	cache map[uint64]*transform.Result
}

// NewBuilder returns a Builder compiling with tr.
func NewBuilder(tr *transform.Transformer) *Builder {
	return &Builder{tr: tr, cache: make(map[uint64]*transform.Result)}
}

// Build walks imports breadth-first from entry. An empty entry tries
// EntryCandidates. Missing and cyclic imports never fail a build; only an
// unresolvable entry does, in which case the returned graph has
// EntryNotFound set and the error wraps ErrEntryNotFound.
func (b *Builder) Build(entry string, src Source) (*Graph, error) {
	g := newGraph()

	start, ok := b.findEntry(entry, src)
	if !ok {
		g.Entry = entry
		g.EntryNotFound = true
		if entry == "" {
			return g, fmt.Errorf("%w: none of %s exist", ErrEntryNotFound, strings.Join(EntryCandidates, ", "))
		}
		return g, fmt.Errorf("%w: %s", ErrEntryNotFound, entry)
	}
	g.Entry = start

	next := make(map[uint64]*transform.Result)
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		rec, res := b.compile(p, src, next)
		for _, imp := range res.Imports {
			ri := b.resolve(g, rec, imp, src)
			rec.Imports = append(rec.Imports, ri)
			if ri.Class == Local && !visited[ri.Target] {
				visited[ri.Target] = true
				queue = append(queue, ri.Target)
			}
		}
		g.add(rec)
	}

	b.cache = next
	link(g)
	return g, nil
}

// link regenerates the code of stubs and of modules that failed to compile so
// they export every name their importers take from them.
func link(g *Graph) {
	wanted := make(map[string][]string)
	for _, m := range g.Modules {
		for _, imp := range m.Imports {
			if imp.Class == Local || imp.Class == Missing {
				wanted[imp.Target] = append(wanted[imp.Target], imp.Names...)
			}
		}
	}
	for _, m := range g.Modules {
		if m.broken {
			m.Code = transform.Placeholder(m.Errors, wanted[m.Path]...)
		}
	}
	for _, m := range g.Stubs {
		m.Code = stubCode(m.Path, wanted[m.Path])
	}
}

func (b *Builder) findEntry(entry string, src Source) (string, bool) {
	if entry == "" {
		for _, c := range EntryCandidates {
			if isFile(src, c) {
				return c, true
			}
		}
		return "", false
	}
	p, err := vpath.Normalize(entry)
	if err != nil {
		return "", false
	}
	return resolveFile(src, p)
}

func cacheKey(path, source string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(path)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(source)
	return d.Sum64()
}

// compile transforms p, reusing the previous pass's result when the content
// is unchanged, and records the result in next.
func (b *Builder) compile(p string, src Source, next map[uint64]*transform.Result) (*ModuleRecord, *transform.Result) {
	rec := &ModuleRecord{Path: p}

	var res *transform.Result
	source, err := src.Read(p)
	if err != nil {
		diag := types.Diagnostic{Kind: types.DiagnosticParse, Path: p, Message: err.Error()}
		res = &transform.Result{Path: p, Code: transform.Placeholder([]types.Diagnostic{diag}), Diagnostics: []types.Diagnostic{diag}}
		rec.broken = true
	} else {
		if info, err := src.Stat(p); err == nil {
			rec.Version = info.Version
		}
		key := cacheKey(p, source)
		var ok bool
		if res, ok = next[key]; !ok {
			if res, ok = b.cache[key]; !ok {
				res = b.tr.Transform(p, source)
			}
		}
		next[key] = res
	}

	rec.Code = res.Code
	rec.Style = res.Style
	rec.broken = rec.broken || res.Failed()
	rec.Errors = append(rec.Errors, res.Diagnostics...)
	return rec, res
}

func (b *Builder) resolve(g *Graph, rec *ModuleRecord, imp transform.Import, src Source) ResolvedImport {
	ri := ResolvedImport{Specifier: imp.Specifier, Names: imp.Names}

	if imp.Kind != transform.ImportStatic {
		ri.Class = Unsupported
		rec.Errors = append(rec.Errors, types.Diagnostic{
			Kind:      types.DiagnosticUnsupported,
			Path:      rec.Path,
			Specifier: imp.Specifier,
			Message:   fmt.Sprintf("%s of %q is not supported; only static imports are resolved", imp.Kind, imp.Specifier),
		})
		return ri
	}

	kind, p, err := classify(rec.Path, imp.Specifier)
	switch kind {
	case specURL:
		ri.Class = URL
		return ri
	case specBare:
		ri.Class = External
		g.external(imp.Specifier)
		return ri
	}

	if err == nil {
		if target, ok := resolveFile(src, p); ok {
			ri.Class = Local
			ri.Target = target
			return ri
		}
	} else {
		p = imp.Specifier
	}

	ri.Class = Missing
	ri.Target = p
	rec.Errors = append(rec.Errors, types.Diagnostic{
		Kind:      types.DiagnosticMissing,
		Path:      rec.Path,
		Specifier: imp.Specifier,
		Message:   fmt.Sprintf("cannot resolve %q from %s", imp.Specifier, rec.Path),
	})
	if _, ok := g.byPath[p]; !ok {
		g.add(stub(p))
	}
	return ri
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func stub(p string) *ModuleRecord {
	return &ModuleRecord{
		Path: p,
		Stub: true,
		Code: stubCode(p, nil),
	}
}

func stubCode(p string, names []string) string {
	return fmt.Sprintf("console.warn(%s);\nexport default function MissingModule() { return null; }\n%s",
		jsString("missing module "+p), transform.NoopExports(names))
}
