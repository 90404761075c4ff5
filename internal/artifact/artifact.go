// Package artifact gives parsers uniform read access to the files an attempt
// left behind, wherever the execution environment put them.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
)

// ErrNotFound is returned when a set does not contain the named artifact.
var ErrNotFound = errors.New("artifact not found")

// Set is a read-only collection of named artifacts.
type Set interface {
	// Open returns the content of name, or an error wrapping ErrNotFound.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Names lists the artifacts in the set, sorted.
	Names(ctx context.Context) ([]string, error)
}

// Has reports whether the set contains name.
func Has(ctx context.Context, s Set, name string) (bool, error) {
	rc, err := s.Open(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, rc.Close()
}

// ReadAll reads the whole of name.
func ReadAll(ctx context.Context, s Set, name string) ([]byte, error) {
	rc, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func notFound(name string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, name)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
