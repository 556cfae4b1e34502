package vfs

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/opensandbox/canvas/internal/vpath"
)

// Serialize returns every file as a flat path to content map. Directories are
// implied by file paths.
func (fsys *FileSystem) Serialize() map[string]string {
	out := make(map[string]string)
	for p, n := range fsys.nodes {
		if n.kind == KindFile {
			out[p] = n.content
		}
	}
	return out
}

// Deserialize replaces the whole tree with snapshot. Keys must be canonical
// file paths; every bad key is reported. On error the current tree is left
// untouched. On success a single reset change is delivered.
//
// Map order is not stable, so rebuilt directories list their children in
// lexical order.
func (fsys *FileSystem) Deserialize(snapshot map[string]string) error {
	const op = "deserialize"

	paths := make([]string, 0, len(snapshot))
	for p := range snapshot {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var result *multierror.Error
	for _, p := range paths {
		if p == vpath.Root || !vpath.IsCanonical(p) {
			result = multierror.Append(result, fmt.Errorf("%q: not a canonical file path", p))
		}
	}
	if result != nil {
		return pathErr(op, vpath.Root, fmt.Errorf("%w: %w", ErrInvalidSnapshot, result.ErrorOrNil()))
	}

	next := newArena()
	v, now := fsys.tick()
	for _, p := range paths {
		if err := next.checkParents(p); err != nil {
			result = multierror.Append(result, fmt.Errorf("%q: %w", p, err))
			continue
		}
		if _, ok := next[p]; ok {
			result = multierror.Append(result, fmt.Errorf("%q: file and directory share a path", p))
			continue
		}
		next.mkdirs(vpath.Dir(p), v, now)
		next.insert(&node{kind: KindFile, path: p, content: snapshot[p], version: v, modTime: now})
	}
	if result != nil {
		return pathErr(op, vpath.Root, fmt.Errorf("%w: %w", ErrInvalidSnapshot, result.ErrorOrNil()))
	}

	fsys.nodes = next
	fsys.emit(Change{Kind: ChangeReset, Path: vpath.Root})
	return nil
}

// Load builds a file system from a snapshot.
func Load(snapshot map[string]string) (*FileSystem, error) {
	fsys := New()
	if err := fsys.Deserialize(snapshot); err != nil {
		return nil, err
	}
	return fsys, nil
}
