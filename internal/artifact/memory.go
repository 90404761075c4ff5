package artifact

import (
	"bytes"
	"context"
	"io"
)

// Memory is an in-memory set, used by tests and by callers that already hold
// the retrieved files.
type Memory map[string][]byte

func (m Memory) Open(_ context.Context, name string) (io.ReadCloser, error) {
	data, ok := m[name]
	if !ok {
		return nil, notFound(name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m Memory) Names(context.Context) ([]string, error) {
	return sortedKeys(m), nil
}
