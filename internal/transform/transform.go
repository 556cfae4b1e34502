// Package transform compiles one project file into a standalone browser ES
// module.
//
// Every import in the output is replaced by an opaque token literal so that a
// later stage can point it at a blob URL, a CDN URL or a stub without parsing
// the code again. The verbatim specifiers are returned alongside in source
// order.
package transform

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/opensandbox/canvas/internal/vpath"
	"github.com/opensandbox/canvas/pkg/types"
)

// ImportKind tells static imports apart from runtime-evaluated ones.
type ImportKind string

const (
	ImportStatic  ImportKind = "static"
	ImportDynamic ImportKind = "dynamic"
	ImportRequire ImportKind = "require"
)

// Import is one import found in a file. Names lists the bindings the file
// takes from the imported module, "default" for a default import; a
// namespace or side-effect import requests none.
type Import struct {
	Specifier string
	Kind      ImportKind
	Names     []string
}

// Token is the placeholder emitted into the compiled code for this import.
func (i Import) Token() string { return Token(i.Specifier) }

// Result is the output of a single transform. Code is always executable: when
// the source does not parse, it is a placeholder that reports the problem at
// runtime and exports a no-op default component.
type Result struct {
	Path        string
	Code        string
	Imports     []Import
	Diagnostics []types.Diagnostic
	Style       bool
}

// Failed reports whether the source could not be compiled.
func (r *Result) Failed() bool {
	for _, d := range r.Diagnostics {
		if d.Kind == types.DiagnosticParse {
			return true
		}
	}
	return false
}

// Options tune the generated code.
type Options struct {
	// JSXImportSource is the package providing the automatic JSX runtime.
	JSXImportSource string
	// Target is the ECMAScript version of the output.
	Target api.Target
}

// Transformer compiles files. It holds no per-file state and is safe for
// concurrent use.
type Transformer struct {
	opts Options
}

// New returns a Transformer. Zero-valued options get defaults.
func New(opts Options) *Transformer {
	if opts.JSXImportSource == "" {
		opts.JSXImportSource = "react"
	}
	if opts.Target == api.DefaultTarget {
		opts.Target = api.ES2020
	}
	return &Transformer{opts: opts}
}

var loaders = map[string]api.Loader{
	".js":   api.LoaderJSX,
	".mjs":  api.LoaderJSX,
	".jsx":  api.LoaderJSX,
	".ts":   api.LoaderTS,
	".mts":  api.LoaderTS,
	".tsx":  api.LoaderTSX,
	".json": api.LoaderJSON,
}

// Supported reports whether files with the extension of path can be compiled.
func Supported(path string) bool {
	ext := vpath.Ext(path)
	_, ok := loaders[ext]
	return ok || ext == ".css"
}

// Transform compiles source, which was read from path. It never returns an
// error; problems are reported as diagnostics on the result.
func (t *Transformer) Transform(path, source string) *Result {
	ext := vpath.Ext(path)
	if ext == ".css" {
		return t.transformCSS(path, source)
	}
	loader, ok := loaders[ext]
	if !ok {
		return failed(path, types.Diagnostic{
			Kind:    types.DiagnosticParse,
			Path:    path,
			Message: fmt.Sprintf("unsupported file type %q", ext),
		})
	}
	return t.build(path, source, loader)
}

func (t *Transformer) build(path, source string, loader api.Loader) *Result {
	result := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   source,
			Sourcefile: path,
			Loader:     loader,
			ResolveDir: vpath.Dir(path),
		},
		AbsWorkingDir:   "/",
		Bundle:          true,
		Write:           false,
		Format:          api.FormatESModule,
		Platform:        api.PlatformBrowser,
		Target:          t.opts.Target,
		JSX:             api.JSXAutomatic,
		JSXImportSource: t.opts.JSXImportSource,
		TreeShaking:     api.TreeShakingFalse,
		Charset:         api.CharsetUTF8,
		Sourcemap:       api.SourceMapInline,
		Metafile:        true,
		TsconfigRaw:     "{}",
		LogLevel:        api.LogLevelSilent,
		Plugins:         []api.Plugin{externalize},
	})

	if len(result.Errors) > 0 {
		diags := make([]types.Diagnostic, 0, len(result.Errors))
		for _, m := range result.Errors {
			diags = append(diags, diagnostic(path, m))
		}
		return failed(path, diags...)
	}
	if len(result.OutputFiles) == 0 {
		return failed(path, types.Diagnostic{Kind: types.DiagnosticParse, Path: path, Message: "no output produced"})
	}

	imports, err := importsFromMetafile(result.Metafile)
	if err != nil {
		return failed(path, types.Diagnostic{Kind: types.DiagnosticParse, Path: path, Message: err.Error()})
	}
	code := string(result.OutputFiles[0].Contents)
	requested := requestedNames(code)
	for i := range imports {
		if imports[i].Kind == ImportStatic {
			imports[i].Names = requested[imports[i].Token()]
		}
	}
	return &Result{
		Path:    path,
		Code:    code,
		Imports: imports,
	}
}

// externalize keeps every import out of the bundle, replacing its path with a
// token that carries the original specifier.
var externalize = api.Plugin{
	Name: "canvas-externalize",
	Setup: func(build api.PluginBuild) {
		build.OnResolve(api.OnResolveOptions{Filter: ".*"}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
			if args.Kind == api.ResolveEntryPoint {
				return api.OnResolveResult{}, nil
			}
			return api.OnResolveResult{Path: Token(args.Path), External: true}, nil
		})
	},
}

type metafile struct {
	Inputs map[string]struct {
		Imports []struct {
			Path string `json:"path"`
			Kind string `json:"kind"`
		} `json:"imports"`
	} `json:"inputs"`
}

// importsFromMetafile reads the import records esbuild found while parsing.
// The file being compiled is the only input, so its records are in source
// order.
func importsFromMetafile(raw string) ([]Import, error) {
	var meta metafile
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("read metafile: %w", err)
	}

	type key struct {
		spec string
		kind ImportKind
	}
	var out []Import
	seen := make(map[key]bool)
	for _, input := range meta.Inputs {
		for _, rec := range input.Imports {
			spec, ok := DecodeToken(rec.Path)
			if !ok {
				continue
			}
			k := key{spec, importKind(rec.Kind)}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, Import{Specifier: spec, Kind: k.kind})
		}
	}
	return out, nil
}

func importKind(kind string) ImportKind {
	switch kind {
	case "dynamic-import":
		return ImportDynamic
	case "require-call", "require-resolve":
		return ImportRequire
	default:
		return ImportStatic
	}
}

func diagnostic(path string, m api.Message) types.Diagnostic {
	d := types.Diagnostic{Kind: types.DiagnosticParse, Path: path, Message: m.Text}
	if m.Location != nil {
		d.Line = m.Location.Line
		d.Column = m.Location.Column + 1
	}
	return d
}

func failed(path string, diags ...types.Diagnostic) *Result {
	return &Result{Path: path, Code: Placeholder(diags), Diagnostics: diags}
}

// Placeholder is a module body that logs diagnostics when executed. It
// default-exports a component rendering nothing and exports a no-op under
// each of names, so importers of a broken file still link.
func Placeholder(diags []types.Diagnostic, names ...string) string {
	var b strings.Builder
	for _, d := range diags {
		fmt.Fprintf(&b, "console.error(%s);\n", jsString(Format(d)))
	}
	b.WriteString("export default function BrokenModule() { return null; }\n")
	b.WriteString(NoopExports(names))
	return b.String()
}

// Format renders a diagnostic as path:line:column: message.
func Format(d types.Diagnostic) string {
	loc := d.Path
	if d.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", d.Path, d.Line, d.Column)
	}
	return loc + ": " + d.Message
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
