// Package vpath normalizes and resolves slash-separated virtual paths.
//
// Every path handed to the virtual file system is canonical: absolute, no "."
// or ".." segments, no duplicate or trailing slashes. The root is "/".
package vpath

import (
	"errors"
	"fmt"
	"strings"
)

// Root is the canonical root path.
const Root = "/"

// ErrInvalid is returned for paths that cannot be made canonical.
var ErrInvalid = errors.New("invalid path")

// Normalize returns the canonical form of p. Relative input is treated as
// relative to the root, so "App.jsx" and "./App.jsx" both become "/App.jsx".
func Normalize(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalid)
	}
	if strings.ContainsRune(p, 0) {
		return "", fmt.Errorf("%w: %q contains NUL", ErrInvalid, p)
	}

	segs := make([]string, 0, strings.Count(p, "/")+1)
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(segs) == 0 {
				return "", fmt.Errorf("%w: %q escapes the root", ErrInvalid, p)
			}
			segs = segs[:len(segs)-1]
		default:
			segs = append(segs, seg)
		}
	}
	return "/" + strings.Join(segs, "/"), nil
}

// MustNormalize is Normalize for inputs known to be valid (literals, tests).
func MustNormalize(p string) string {
	n, err := Normalize(p)
	if err != nil {
		panic(err)
	}
	return n
}

// IsCanonical reports whether p is already in canonical form.
func IsCanonical(p string) bool {
	n, err := Normalize(p)
	return err == nil && n == p
}

// Join joins elements and normalizes the result.
func Join(elem ...string) (string, error) {
	return Normalize(strings.Join(elem, "/"))
}

// Child builds the path of a named child of a canonical directory path.
func Child(dir, name string) string {
	if dir == Root {
		return Root + name
	}
	return dir + "/" + name
}

// Dir returns the parent directory of a canonical path. Dir("/") is "/".
func Dir(p string) string {
	i := strings.LastIndexByte(p, '/')
	if i <= 0 {
		return Root
	}
	return p[:i]
}

// Base returns the last segment of a canonical path. Base("/") is "".
func Base(p string) string {
	return p[strings.LastIndexByte(p, '/')+1:]
}

// Ext returns the extension of the last segment including the dot, or "".
func Ext(p string) string {
	base := Base(p)
	i := strings.LastIndexByte(base, '.')
	if i <= 0 {
		return ""
	}
	return base[i:]
}

// TrimExt removes Ext(p) from p.
func TrimExt(p string) string {
	return strings.TrimSuffix(p, Ext(p))
}

// Split returns the segments of a canonical path. Split("/") is empty.
func Split(p string) []string {
	if p == Root {
		return nil
	}
	return strings.Split(strings.TrimPrefix(p, "/"), "/")
}

// IsRelative reports whether spec is a "./" or "../" style reference.
func IsRelative(spec string) bool {
	return spec == "." || spec == ".." ||
		strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../")
}

// IsAbs reports whether spec starts at the root.
func IsAbs(spec string) bool {
	return strings.HasPrefix(spec, "/")
}

// Resolve resolves spec against the directory containing fromFile.
// Absolute specs ignore fromFile.
func Resolve(fromFile, spec string) (string, error) {
	if IsAbs(spec) {
		return Normalize(spec)
	}
	return Normalize(Dir(fromFile) + "/" + spec)
}

// HasPrefix reports whether p equals dir or lies beneath it.
func HasPrefix(p, dir string) bool {
	if dir == Root {
		return true
	}
	return p == dir || strings.HasPrefix(p, dir+"/")
}

// ValidName reports whether name can be used as a single path segment.
func ValidName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, "/\x00")
}
