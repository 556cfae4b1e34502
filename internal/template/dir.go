package template

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
)

// MaxFileSize is the largest file LoadDir reads into a project.
const MaxFileSize = 1 << 20

var skipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
	"build":        true,
}

// LoadDir reads a directory on disk into a project file map keyed by
// absolute virtual path. Dependency and VCS directories, dotfiles and files
// over MaxFileSize are skipped.
func LoadDir(dir string) (map[string]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return readTree(os.DirFS(dir))
}

func readTree(fsys fs.FS) (map[string]string, error) {
	files := make(map[string]string)
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if p != "." && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if skipDirs[name] {
				return fs.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() || info.Size() > MaxFileSize {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		files[path.Join("/", p)] = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
