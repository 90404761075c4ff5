package config

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Loader is the interface for a format-specific job loader.
type Loader interface {
	// Load reads every job defined in the given files.
	Load(ctx context.Context, paths ...string) ([]*Job, error)
	// Extensions lists the file extensions the loader understands,
	// including the leading dot.
	Extensions() []string
}

// Loaders dispatches to a Loader by file extension.
type Loaders struct {
	byExt map[string]Loader
}

// NewLoaders registers each loader under its extensions. It panics when two
// loaders claim the same extension, as that is a wiring bug.
func NewLoaders(loaders ...Loader) *Loaders {
	l := &Loaders{byExt: make(map[string]Loader)}
	for _, ld := range loaders {
		for _, ext := range ld.Extensions() {
			if _, exists := l.byExt[ext]; exists {
				panic(fmt.Sprintf("loader for extension '%s' already registered", ext))
			}
			l.byExt[ext] = ld
		}
	}
	return l
}

// Extensions returns every registered extension, sorted.
func (l *Loaders) Extensions() []string {
	exts := make([]string, 0, len(l.byExt))
	for ext := range l.byExt {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// Load reads all jobs from paths, each with the loader for its extension.
// Job names must be unique across all files.
func (l *Loaders) Load(ctx context.Context, paths ...string) ([]*Job, error) {
	var jobs []*Job
	seen := make(map[string]string)
	for _, path := range paths {
		ext := strings.ToLower(filepath.Ext(path))
		ld, ok := l.byExt[ext]
		if !ok {
			return nil, fmt.Errorf("no loader for %q files: %s", ext, path)
		}
		loaded, err := ld.Load(ctx, path)
		if err != nil {
			return nil, err
		}
		for _, j := range loaded {
			if prev, dup := seen[j.Name]; dup {
				return nil, fmt.Errorf("job %q defined in both %s and %s", j.Name, prev, path)
			}
			seen[j.Name] = path
		}
		jobs = append(jobs, loaded...)
	}
	return jobs, nil
}
