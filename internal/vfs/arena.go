package vfs

import (
	"fmt"
	"strings"
	"time"

	"github.com/opensandbox/canvas/internal/vpath"
)

type arena map[string]*node

func newArena() arena {
	return arena{vpath.Root: {kind: KindDir, path: vpath.Root}}
}

// checkParents verifies that no ancestor of p is a file. The root is always a
// directory and every ancestor of an existing node is a directory, so the
// nearest existing ancestor decides.
func (a arena) checkParents(p string) error {
	for dir := vpath.Dir(p); ; dir = vpath.Dir(dir) {
		n, ok := a[dir]
		if !ok {
			continue
		}
		if n.kind != KindDir {
			return fmt.Errorf("%w: %s is a file", ErrInvalidPath, dir)
		}
		return nil
	}
}

// mkdirs creates dir and any missing ancestors, returning the created paths
// from the top down. Callers run checkParents first.
func (a arena) mkdirs(dir string, version uint64, now time.Time) []string {
	if _, ok := a[dir]; ok {
		return nil
	}
	created := a.mkdirs(vpath.Dir(dir), version, now)
	a.insert(&node{kind: KindDir, path: dir, version: version, modTime: now})
	return append(created, dir)
}

func (a arena) insert(n *node) {
	a[n.path] = n
	parent := a[vpath.Dir(n.path)]
	parent.children = append(parent.children, vpath.Base(n.path))
}

// detach removes p from its parent's child list.
func (a arena) detach(p string) {
	parent := a[vpath.Dir(p)]
	name := vpath.Base(p)
	for i, c := range parent.children {
		if c == name {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			return
		}
	}
}

// subtree returns p and all its descendants in depth-first listing order.
func (a arena) subtree(p string) []string {
	out := []string{p}
	n := a[p]
	if n == nil || n.kind != KindDir {
		return out
	}
	for _, name := range n.children {
		out = append(out, a.subtree(vpath.Child(p, name))...)
	}
	return out
}

// rekey moves every node under from so that it lives under to.
func (a arena) rekey(from, to string) {
	for _, old := range a.subtree(from) {
		n := a[old]
		delete(a, old)
		n.path = to + strings.TrimPrefix(old, from)
		a[n.path] = n
	}
}
