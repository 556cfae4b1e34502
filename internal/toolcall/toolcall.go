// Package toolcall applies the agent's file-edit commands to a project file
// system.
package toolcall

import (
	"errors"
	"fmt"
	"strings"

	"github.com/opensandbox/canvas/internal/metrics"
	"github.com/opensandbox/canvas/internal/vfs"
	"github.com/opensandbox/canvas/internal/vpath"
	"github.com/opensandbox/canvas/pkg/types"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrNoMatch        = errors.New("old_str not found")
	ErrAmbiguous      = errors.New("old_str is not unique")
	ErrLineRange      = errors.New("line out of range")
)

// Apply runs calls in order inside one batch, so listeners see a single
// change set however many files were touched. A failing call does not stop
// the ones after it.
func Apply(fsys *vfs.FileSystem, calls ...types.ToolCall) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))
	_ = fsys.Batch(func() error {
		for i, call := range calls {
			results[i] = applyOne(fsys, call)
		}
		return nil
	})
	return results
}

func applyOne(fsys *vfs.FileSystem, call types.ToolCall) types.ToolResult {
	out, paths, err := dispatch(fsys, call)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ToolCallsTotal.WithLabelValues(call.Tool, call.Command, status).Inc()
	if err != nil {
		return types.ToolResult{Paths: paths, Error: err.Error()}
	}
	return types.ToolResult{OK: true, Paths: paths, Output: out}
}

func dispatch(fsys *vfs.FileSystem, call types.ToolCall) (string, []string, error) {
	p, err := vpath.Normalize(call.Path)
	if err != nil {
		return "", nil, &vfs.PathError{Op: call.Command, Path: call.Path, Err: err}
	}

	switch call.Tool + "." + call.Command {
	case types.ToolEditor + ".view":
		out, err := view(fsys, p, call.ViewRange)
		return out, []string{p}, err
	case types.ToolEditor + ".create":
		return create(fsys, p, call.FileText)
	case types.ToolEditor + ".str_replace":
		return replace(fsys, p, call.OldStr, call.NewStr)
	case types.ToolEditor + ".insert":
		return insert(fsys, p, call.InsertLine, call.NewStr)
	case types.ToolFileManager + ".rename":
		return rename(fsys, p, call.NewPath)
	case types.ToolFileManager + ".delete":
		if err := fsys.Delete(p); err != nil {
			return "", []string{p}, err
		}
		return "deleted " + p, []string{p}, nil
	}
	return "", nil, fmt.Errorf("%w: %s %s", ErrUnknownCommand, call.Tool, call.Command)
}

func view(fsys *vfs.FileSystem, p string, viewRange []int) (string, error) {
	info, err := fsys.Stat(p)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		names, err := fsys.List(p)
		if err != nil {
			return "", err
		}
		var b strings.Builder
		for _, name := range names {
			b.WriteString(name)
			if child, err := fsys.Stat(vpath.Child(p, name)); err == nil && child.IsDir() {
				b.WriteString("/")
			}
			b.WriteString("\n")
		}
		return b.String(), nil
	}

	content, err := fsys.Read(p)
	if err != nil {
		return "", err
	}
	lines := strings.Split(content, "\n")
	start, end := 1, len(lines)
	if len(viewRange) == 2 {
		start = viewRange[0]
		if viewRange[1] != -1 {
			end = viewRange[1]
		}
		if start < 1 || end > len(lines) || start > end {
			return "", fmt.Errorf("%w: view range %v of %d lines", ErrLineRange, viewRange, len(lines))
		}
	}
	var b strings.Builder
	for i := start; i <= end; i++ {
		fmt.Fprintf(&b, "%d\t%s\n", i, lines[i-1])
	}
	return b.String(), nil
}

func create(fsys *vfs.FileSystem, p, text string) (string, []string, error) {
	existed := fsys.Exists(p)
	if err := fsys.Write(p, text); err != nil {
		return "", []string{p}, err
	}
	if existed {
		return "overwrote " + p, []string{p}, nil
	}
	return "created " + p, []string{p}, nil
}

func replace(fsys *vfs.FileSystem, p, oldStr, newStr string) (string, []string, error) {
	content, err := fsys.Read(p)
	if err != nil {
		return "", []string{p}, err
	}
	if oldStr == "" {
		return "", []string{p}, fmt.Errorf("%w: old_str is empty", ErrNoMatch)
	}
	switch n := strings.Count(content, oldStr); n {
	case 0:
		return "", []string{p}, fmt.Errorf("%w in %s", ErrNoMatch, p)
	case 1:
	default:
		return "", []string{p}, fmt.Errorf("%w: %d matches in %s", ErrAmbiguous, n, p)
	}
	if err := fsys.Update(p, strings.Replace(content, oldStr, newStr, 1)); err != nil {
		return "", []string{p}, err
	}
	return "replaced text in " + p, []string{p}, nil
}

// insert places text after line n; n == 0 inserts at the top.
func insert(fsys *vfs.FileSystem, p string, n int, text string) (string, []string, error) {
	content, err := fsys.Read(p)
	if err != nil {
		return "", []string{p}, err
	}
	lines := strings.Split(content, "\n")
	if n < 0 || n > len(lines) {
		return "", []string{p}, fmt.Errorf("%w: insert_line %d of %d lines", ErrLineRange, n, len(lines))
	}
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:n]...)
	out = append(out, strings.Split(text, "\n")...)
	out = append(out, lines[n:]...)
	if err := fsys.Update(p, strings.Join(out, "\n")); err != nil {
		return "", []string{p}, err
	}
	return fmt.Sprintf("inserted after line %d of %s", n, p), []string{p}, nil
}

// Move renames or moves the node at from to the absolute path to, creating
// missing parent directories.
func Move(fsys *vfs.FileSystem, from, to string) error {
	p, err := vpath.Normalize(from)
	if err != nil {
		return &vfs.PathError{Op: "rename", Path: from, Err: err}
	}
	_, _, err = rename(fsys, p, to)
	return err
}

// rename moves p to the absolute path newPath, creating missing parent
// directories. All checks run before the tree is touched.
func rename(fsys *vfs.FileSystem, p, newPath string) (string, []string, error) {
	const op = "rename"
	dst, err := vpath.Normalize(newPath)
	if err != nil {
		return "", []string{p}, &vfs.PathError{Op: op, Path: newPath, Err: err}
	}
	paths := []string{p, dst}
	switch {
	case !fsys.Exists(p):
		return "", paths, &vfs.PathError{Op: op, Path: p, Err: vfs.ErrNotFound}
	case p == vpath.Root || vpath.HasPrefix(dst, p):
		return "", paths, &vfs.PathError{Op: op, Path: dst, Err: vfs.ErrInvalidOperation}
	case fsys.Exists(dst):
		return "", paths, &vfs.PathError{Op: op, Path: dst, Err: vfs.ErrPathConflict}
	}

	dir, name := vpath.Dir(dst), vpath.Base(dst)
	if err := fsys.MkdirAll(dir); err != nil {
		return "", paths, err
	}
	if vpath.Dir(p) == dir {
		return "renamed " + p + " to " + dst, paths, fsys.Rename(p, name)
	}

	// Move then rename unless the intermediate path is taken, in which case
	// rename in place first.
	if !fsys.Exists(vpath.Child(dir, vpath.Base(p))) {
		if err := fsys.Move(p, dir); err != nil {
			return "", paths, err
		}
		if name != vpath.Base(p) {
			if err := fsys.Rename(vpath.Child(dir, vpath.Base(p)), name); err != nil {
				return "", paths, err
			}
		}
		return "renamed " + p + " to " + dst, paths, nil
	}
	interim := vpath.Child(vpath.Dir(p), name)
	if fsys.Exists(interim) {
		return "", paths, &vfs.PathError{Op: op, Path: interim, Err: vfs.ErrPathConflict}
	}
	if err := fsys.Rename(p, name); err != nil {
		return "", paths, err
	}
	if err := fsys.Move(interim, dir); err != nil {
		return "", paths, err
	}
	return "renamed " + p + " to " + dst, paths, nil
}
