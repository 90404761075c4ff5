package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
)

// Dir is a set backed by a directory. When Only is non-empty the set is
// limited to those names even if the directory holds more files.
type Dir struct {
	Root string
	Only []string
}

// NewDir returns a set over root, optionally limited to names.
func NewDir(root string, names ...string) *Dir {
	return &Dir{Root: root, Only: names}
}

func (d *Dir) allowed(name string) bool {
	return len(d.Only) == 0 || slices.Contains(d.Only, name)
}

func (d *Dir) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if !filepath.IsLocal(name) || !d.allowed(name) {
		return nil, notFound(name)
	}
	f, err := os.Open(filepath.Join(d.Root, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, err
	}
	if info, err := f.Stat(); err != nil || info.IsDir() {
		f.Close()
		if err != nil {
			return nil, err
		}
		return nil, notFound(name)
	}
	return f, nil
}

func (d *Dir) Names(context.Context) ([]string, error) {
	var out []string
	err := filepath.WalkDir(d.Root, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.Root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.allowed(rel) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.Root, err)
	}
	sort.Strings(out)
	return out, nil
}
