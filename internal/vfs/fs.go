// Package vfs is the in-memory project file system.
//
// Nodes live in a flat arena keyed by canonical path. Directories keep their
// children as an ordered list of names, so listing order is insertion order
// and a node's name always matches its position in the tree. A FileSystem is
// not safe for concurrent use; callers serialize access.
package vfs

import (
	"strings"
	"time"

	"github.com/opensandbox/canvas/internal/vpath"
)

// Kind distinguishes files from directories.
type Kind int

const (
	KindFile Kind = iota + 1
	KindDir
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "directory"
	}
	return "unknown"
}

// Info describes a node. Version increases on every create or update and is
// drawn from a clock shared by the whole file system.
type Info struct {
	Path    string
	Name    string
	Kind    Kind
	Size    int
	Version uint64
	ModTime time.Time
}

func (i Info) IsDir() bool { return i.Kind == KindDir }

type node struct {
	kind     Kind
	path     string
	content  string
	version  uint64
	modTime  time.Time
	children []string
}

func (n *node) info() Info {
	return Info{
		Path:    n.path,
		Name:    vpath.Base(n.path),
		Kind:    n.kind,
		Size:    len(n.content),
		Version: n.version,
		ModTime: n.modTime,
	}
}

// FileSystem is a tree of files and directories rooted at "/".
type FileSystem struct {
	nodes arena
	clock uint64
	now   func() time.Time

	depth     int
	pending   []Change
	listeners []listener
	nextID    int
}

// New returns an empty file system containing only the root directory.
func New() *FileSystem {
	return &FileSystem{nodes: newArena(), now: time.Now}
}

func (fsys *FileSystem) tick() (uint64, time.Time) {
	fsys.clock++
	return fsys.clock, fsys.now()
}

func clean(op, p string) (string, error) {
	n, err := vpath.Normalize(p)
	if err != nil {
		return "", pathErr(op, p, err)
	}
	return n, nil
}

// Create adds a file. Missing parent directories are created. It fails with
// ErrPathConflict if p exists and ErrInvalidPath if an ancestor is a file.
func (fsys *FileSystem) Create(p, content string) error {
	const op = "create"
	p, err := clean(op, p)
	if err != nil {
		return err
	}
	if _, ok := fsys.nodes[p]; ok {
		return pathErr(op, p, ErrPathConflict)
	}
	if err := fsys.nodes.checkParents(p); err != nil {
		return pathErr(op, p, err)
	}

	v, now := fsys.tick()
	for _, dir := range fsys.nodes.mkdirs(vpath.Dir(p), v, now) {
		fsys.emit(Change{Kind: ChangeCreated, Path: dir})
	}
	fsys.nodes.insert(&node{kind: KindFile, path: p, content: content, version: v, modTime: now})
	fsys.emit(Change{Kind: ChangeCreated, Path: p})
	return nil
}

// Read returns a file's content.
func (fsys *FileSystem) Read(p string) (string, error) {
	const op = "read"
	n, err := fsys.file(op, p)
	if err != nil {
		return "", err
	}
	return n.content, nil
}

// Update replaces a file's content and bumps its version.
func (fsys *FileSystem) Update(p, content string) error {
	const op = "update"
	n, err := fsys.file(op, p)
	if err != nil {
		return err
	}
	n.version, n.modTime = fsys.tick()
	n.content = content
	fsys.emit(Change{Kind: ChangeUpdated, Path: n.path})
	return nil
}

// Write creates p or overwrites it if it is already a file.
func (fsys *FileSystem) Write(p, content string) error {
	cp, err := clean("write", p)
	if err != nil {
		return err
	}
	if n, ok := fsys.nodes[cp]; ok && n.kind == KindFile {
		return fsys.Update(cp, content)
	}
	return fsys.Create(cp, content)
}

func (fsys *FileSystem) file(op, p string) (*node, error) {
	p, err := clean(op, p)
	if err != nil {
		return nil, err
	}
	n, ok := fsys.nodes[p]
	if !ok {
		return nil, pathErr(op, p, ErrNotFound)
	}
	if n.kind == KindDir {
		return nil, pathErr(op, p, ErrIsADirectory)
	}
	return n, nil
}

// Mkdir creates a directory along with any missing parents. It fails with
// ErrPathConflict if p already exists.
func (fsys *FileSystem) Mkdir(p string) error {
	const op = "mkdir"
	p, err := clean(op, p)
	if err != nil {
		return err
	}
	if _, ok := fsys.nodes[p]; ok {
		return pathErr(op, p, ErrPathConflict)
	}
	return fsys.MkdirAll(p)
}

// MkdirAll creates p and any missing parents. Existing directories are not an
// error; an existing file anywhere along p is.
func (fsys *FileSystem) MkdirAll(p string) error {
	const op = "mkdir"
	p, err := clean(op, p)
	if err != nil {
		return err
	}
	if n, ok := fsys.nodes[p]; ok {
		if n.kind != KindDir {
			return pathErr(op, p, ErrNotADirectory)
		}
		return nil
	}
	if err := fsys.nodes.checkParents(p); err != nil {
		return pathErr(op, p, err)
	}
	v, now := fsys.tick()
	for _, dir := range fsys.nodes.mkdirs(p, v, now) {
		fsys.emit(Change{Kind: ChangeCreated, Path: dir})
	}
	return nil
}

// Delete removes a file or a directory with everything beneath it.
func (fsys *FileSystem) Delete(p string) error {
	const op = "delete"
	p, err := clean(op, p)
	if err != nil {
		return err
	}
	if p == vpath.Root {
		return pathErr(op, p, ErrInvalidOperation)
	}
	if _, ok := fsys.nodes[p]; !ok {
		return pathErr(op, p, ErrNotFound)
	}
	fsys.nodes.detach(p)
	for _, sub := range fsys.nodes.subtree(p) {
		delete(fsys.nodes, sub)
	}
	fsys.emit(Change{Kind: ChangeDeleted, Path: p})
	return nil
}

// Rename gives p a new name within the same parent, keeping its position in
// the parent's listing.
func (fsys *FileSystem) Rename(p, newName string) error {
	const op = "rename"
	p, err := clean(op, p)
	if err != nil {
		return err
	}
	if p == vpath.Root {
		return pathErr(op, p, ErrInvalidOperation)
	}
	if !vpath.ValidName(newName) {
		return pathErr(op, newName, ErrInvalidPath)
	}
	if _, ok := fsys.nodes[p]; !ok {
		return pathErr(op, p, ErrNotFound)
	}
	dst := vpath.Child(vpath.Dir(p), newName)
	if _, ok := fsys.nodes[dst]; ok {
		return pathErr(op, dst, ErrPathConflict)
	}

	parent := fsys.nodes[vpath.Dir(p)]
	old := vpath.Base(p)
	for i, name := range parent.children {
		if name == old {
			parent.children[i] = newName
			break
		}
	}
	fsys.nodes.rekey(p, dst)
	fsys.emit(Change{Kind: ChangeRenamed, Path: dst, OldPath: p})
	return nil
}

// Move relocates p into the directory newParent, keeping its name. It is
// appended to the end of the new parent's listing.
func (fsys *FileSystem) Move(p, newParent string) error {
	const op = "move"
	p, err := clean(op, p)
	if err != nil {
		return err
	}
	newParent, err = clean(op, newParent)
	if err != nil {
		return err
	}
	if p == vpath.Root {
		return pathErr(op, p, ErrInvalidOperation)
	}
	if _, ok := fsys.nodes[p]; !ok {
		return pathErr(op, p, ErrNotFound)
	}
	dir, ok := fsys.nodes[newParent]
	if !ok {
		return pathErr(op, newParent, ErrNotFound)
	}
	if dir.kind != KindDir {
		return pathErr(op, newParent, ErrNotADirectory)
	}
	if vpath.HasPrefix(newParent, p) {
		return pathErr(op, newParent, ErrInvalidOperation)
	}
	dst := vpath.Child(newParent, vpath.Base(p))
	if _, ok := fsys.nodes[dst]; ok {
		return pathErr(op, dst, ErrPathConflict)
	}

	fsys.nodes.detach(p)
	dir.children = append(dir.children, vpath.Base(p))
	fsys.nodes.rekey(p, dst)
	fsys.emit(Change{Kind: ChangeRenamed, Path: dst, OldPath: p})
	return nil
}

// List returns the names of a directory's children in insertion order.
func (fsys *FileSystem) List(p string) ([]string, error) {
	const op = "list"
	p, err := clean(op, p)
	if err != nil {
		return nil, err
	}
	n, ok := fsys.nodes[p]
	if !ok {
		return nil, pathErr(op, p, ErrNotFound)
	}
	if n.kind != KindDir {
		return nil, pathErr(op, p, ErrNotADirectory)
	}
	return append([]string(nil), n.children...), nil
}

// Stat describes the node at p.
func (fsys *FileSystem) Stat(p string) (Info, error) {
	const op = "stat"
	p, err := clean(op, p)
	if err != nil {
		return Info{}, err
	}
	n, ok := fsys.nodes[p]
	if !ok {
		return Info{}, pathErr(op, p, ErrNotFound)
	}
	return n.info(), nil
}

// Exists reports whether p names a node. Invalid paths do not exist.
func (fsys *FileSystem) Exists(p string) bool {
	p, err := vpath.Normalize(p)
	if err != nil {
		return false
	}
	_, ok := fsys.nodes[p]
	return ok
}

// Files returns every file path in depth-first listing order.
func (fsys *FileSystem) Files() []string {
	var out []string
	for _, p := range fsys.nodes.subtree(vpath.Root) {
		if fsys.nodes[p].kind == KindFile {
			out = append(out, p)
		}
	}
	return out
}

// Len reports the number of nodes, the root included.
func (fsys *FileSystem) Len() int {
	return len(fsys.nodes)
}

// Tree renders the hierarchy as an indented listing, directories suffixed
// with "/".
func (fsys *FileSystem) Tree() string {
	var b strings.Builder
	for _, p := range fsys.nodes.subtree(vpath.Root) {
		if p == vpath.Root {
			b.WriteString("/\n")
			continue
		}
		b.WriteString(strings.Repeat("  ", len(vpath.Split(p))-1))
		b.WriteString(vpath.Base(p))
		if fsys.nodes[p].kind == KindDir {
			b.WriteString("/")
		}
		b.WriteString("\n")
	}
	return b.String()
}
