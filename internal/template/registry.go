// Package template holds the starter projects new projects can be seeded from.
package template

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/opensandbox/canvas/internal/vpath"
	"github.com/opensandbox/canvas/pkg/types"
)

// ErrNotFound is returned for unknown template names.
var ErrNotFound = errors.New("template not found")

//go:embed all:starters
var startersFS embed.FS

var defaults = []struct {
	name        string
	entry       string
	description string
}{
	{"blank", "/App.jsx", "A single component"},
	{"react", "/App.jsx", "Stateful component with a child component and a stylesheet"},
	{"typescript", "/App.tsx", "TypeScript component using the @/ import alias"},
}

type entry struct {
	tmpl  types.Template
	files map[string]string
}

// Registry stores templates and their files in memory.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*entry // keyed by name
}

// NewRegistry creates a new template registry with the built-in starters.
func NewRegistry() *Registry {
	r := &Registry{
		templates: make(map[string]*entry),
	}

	now := time.Now()
	for _, d := range defaults {
		files, err := embedded(d.name)
		if err != nil {
			panic(fmt.Sprintf("template: built-in starter %s: %v", d.name, err))
		}
		r.templates[d.name] = &entry{
			tmpl: types.Template{
				ID:          d.name,
				Name:        d.name,
				Description: d.description,
				Entry:       d.entry,
				CreatedAt:   now,
			},
			files: files,
		}
	}

	return r
}

func embedded(name string) (map[string]string, error) {
	sub, err := fs.Sub(startersFS, "starters/"+name)
	if err != nil {
		return nil, err
	}
	return readTree(sub)
}

// Get returns a template by name.
func (r *Registry) Get(name string) (*types.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	t := e.tmpl
	t.Files = len(e.files)
	return &t, nil
}

// Files returns a copy of a template's files keyed by absolute path.
func (r *Registry) Files(name string) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	out := make(map[string]string, len(e.files))
	for p, content := range e.files {
		out[p] = content
	}
	return out, nil
}

// List returns all templates sorted by name.
func (r *Registry) List() []types.Template {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]types.Template, 0, len(r.templates))
	for _, e := range r.templates {
		t := e.tmpl
		t.Files = len(e.files)
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Register adds or replaces a template. Paths are normalized; an invalid
// path rejects the whole template.
func (r *Registry) Register(t types.Template, files map[string]string) error {
	clean := make(map[string]string, len(files))
	for p, content := range files {
		np, err := vpath.Normalize(p)
		if err != nil {
			return fmt.Errorf("template %q: %w", t.Name, err)
		}
		clean[np] = content
	}
	if t.ID == "" {
		t.ID = t.Name
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.Name] = &entry{tmpl: t, files: clean}
	return nil
}

// Delete removes a template by name.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.templates[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(r.templates, name)
	return nil
}
