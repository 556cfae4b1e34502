package graph

import (
	"strings"

	"github.com/opensandbox/canvas/internal/vfs"
	"github.com/opensandbox/canvas/internal/vpath"
)

// Extensions tried, in order, when an import omits one.
var Extensions = []string{".jsx", ".tsx", ".js", ".ts", ".json", ".css"}

// EntryCandidates are tried in order when no entry path is given.
var EntryCandidates = []string{"/App.jsx", "/App.tsx", "/App.js", "/App.ts"}

// Source is the read-only file system view a build reads from.
type Source interface {
	Read(path string) (string, error)
	Stat(path string) (vfs.Info, error)
}

type specKind int

const (
	specBare specKind = iota
	specPath
	specURL
)

// classify returns the kind of spec and, for project paths, the path it
// names before extension inference. "@/x" is an alias for "/x".
func classify(importer, spec string) (specKind, string, error) {
	switch {
	case strings.HasPrefix(spec, "//") || strings.Contains(spec, "://") ||
		strings.HasPrefix(spec, "data:") || strings.HasPrefix(spec, "blob:"):
		return specURL, "", nil
	case strings.HasPrefix(spec, "@/"):
		p, err := vpath.Normalize(spec[1:])
		return specPath, p, err
	case vpath.IsRelative(spec) || vpath.IsAbs(spec):
		p, err := vpath.Resolve(importer, spec)
		return specPath, p, err
	}
	return specBare, "", nil
}

func isFile(src Source, p string) bool {
	info, err := src.Stat(p)
	return err == nil && !info.IsDir()
}

// resolveFile finds the file p refers to: p itself, p with an inferred
// extension, or an index file inside directory p.
func resolveFile(src Source, p string) (string, bool) {
	if isFile(src, p) {
		return p, true
	}
	for _, ext := range Extensions {
		if isFile(src, p+ext) {
			return p + ext, true
		}
	}
	if p == vpath.Root {
		return findIndex(src, "/index")
	}
	return findIndex(src, p+"/index")
}

func findIndex(src Source, base string) (string, bool) {
	for _, ext := range Extensions {
		if isFile(src, base+ext) {
			return base + ext, true
		}
	}
	return "", false
}
