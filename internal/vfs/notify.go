package vfs

// ChangeKind describes what happened to a path.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
	ChangeRenamed ChangeKind = "renamed"
	ChangeReset   ChangeKind = "reset"
)

// Change is a single mutation. OldPath is set for renames and moves.
type Change struct {
	Kind    ChangeKind `json:"kind"`
	Path    string     `json:"path"`
	OldPath string     `json:"oldPath,omitempty"`
}

// ChangeSet is the coalesced set of changes delivered once per batch.
type ChangeSet []Change

// Paths returns every path touched by the set, old paths included.
func (cs ChangeSet) Paths() []string {
	seen := make(map[string]bool, len(cs))
	var out []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, c := range cs {
		add(c.OldPath)
		add(c.Path)
	}
	return out
}

type listener struct {
	id int
	fn func(ChangeSet)
}

// Subscribe registers fn to receive change sets. Listeners run synchronously,
// in registration order, when the outermost batch completes. The returned func
// removes the listener.
func (fsys *FileSystem) Subscribe(fn func(ChangeSet)) (unsubscribe func()) {
	fsys.nextID++
	id := fsys.nextID
	fsys.listeners = append(fsys.listeners, listener{id: id, fn: fn})
	return func() {
		for i, l := range fsys.listeners {
			if l.id == id {
				fsys.listeners = append(fsys.listeners[:i], fsys.listeners[i+1:]...)
				return
			}
		}
	}
}

// Batch runs fn with notifications held back. Mutations made inside fn, and
// inside any nested Batch, are delivered as one ChangeSet when the outermost
// batch returns, whether or not fn failed. A batch with no successful
// mutations delivers nothing.
func (fsys *FileSystem) Batch(fn func() error) error {
	fsys.depth++
	defer func() {
		fsys.depth--
		if fsys.depth == 0 {
			fsys.flush()
		}
	}()
	return fn()
}

func (fsys *FileSystem) emit(c Change) {
	fsys.pending = append(fsys.pending, c)
	if fsys.depth == 0 {
		fsys.flush()
	}
}

func (fsys *FileSystem) flush() {
	if len(fsys.pending) == 0 {
		return
	}
	cs := coalesce(fsys.pending)
	fsys.pending = nil

	listeners := append([]listener(nil), fsys.listeners...)
	for _, l := range listeners {
		l.fn(cs)
	}
}

// coalesce drops repeated changes, keeping the first occurrence in order.
// Repeated updates to one path collapse into a single update.
func coalesce(changes []Change) ChangeSet {
	seen := make(map[Change]bool, len(changes))
	out := make(ChangeSet, 0, len(changes))
	for _, c := range changes {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
