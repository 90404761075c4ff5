package resultparse

import (
	"fmt"
	"log/slog"

	"github.com/specialistvlad/asegrid/internal/config"
)

// Registry maps parser names, as set in a job's options, to parsers.
type Registry struct {
	all map[string]Parser
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{all: make(map[string]Parser)}
}

// DefaultRegistry returns a registry holding the built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(config.ParserMinimal, Minimal{})
	r.Register(config.ParserChecked, Checked{})
	return r
}

// Register adds a parser under name.
func (r *Registry) Register(name string, p Parser) {
	if _, exists := r.all[name]; exists {
		panic(fmt.Sprintf("parser with name '%s' already registered", name))
	}
	slog.Debug("Registering parser.", "name", name)
	r.all[name] = p
}

// Get returns the parser registered under name.
func (r *Registry) Get(name string) (Parser, error) {
	p, ok := r.all[name]
	if !ok {
		return nil, fmt.Errorf("no parser registered as %q (known: %v)", name, r.Names())
	}
	return p, nil
}

// Names lists the registered parser names, sorted.
func (r *Registry) Names() []string {
	return sortedKeys(r.all)
}
