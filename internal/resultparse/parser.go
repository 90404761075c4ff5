// Package resultparse turns the artifacts an attempt left behind into either
// a result record or a failure classification.
//
// Parsers never return a plain error for something the attempt did: every
// outcome other than success is an *exitcode.Failure, so the restart
// controller can route it.
package resultparse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/specialistvlad/asegrid/internal/artifact"
	"github.com/specialistvlad/asegrid/internal/config"
	"github.com/specialistvlad/asegrid/internal/exitcode"
	"github.com/specialistvlad/asegrid/internal/pyjson"
	"github.com/specialistvlad/asegrid/internal/structure"
)

// Expected describes what the attempt was asked to produce.
type Expected struct {
	Files config.Files
	// Relax is set when the script ran an optimizer.
	Relax bool
}

// Parser inspects the artifacts of one attempt.
type Parser interface {
	Parse(ctx context.Context, set artifact.Set, exp Expected) (*Record, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(ctx context.Context, set artifact.Set, exp Expected) (*Record, error)

func (f ParserFunc) Parse(ctx context.Context, set artifact.Set, exp Expected) (*Record, error) {
	return f(ctx, set, exp)
}

// loadResults decodes the results file. The file must hold a JSON object;
// the non-finite numbers Python writes are accepted.
func loadResults(ctx context.Context, set artifact.Set, name string) (map[string]any, error) {
	data, err := artifact.ReadAll(ctx, set, name)
	if err != nil {
		return nil, err
	}
	v, err := pyjson.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	out, ok := v.(map[string]any)
	if !ok || out == nil {
		return nil, fmt.Errorf("decode %s: not an object", name)
	}
	return out, nil
}

func readStructure(ctx context.Context, set artifact.Set, name string) (*structure.Structure, error) {
	data, err := artifact.ReadAll(ctx, set, name)
	if err != nil {
		return nil, err
	}
	return structure.UnmarshalASE(data)
}

// readStderr returns the scheduler stderr content; a missing file reads as
// empty.
func readStderr(ctx context.Context, set artifact.Set, name string) (string, error) {
	data, err := artifact.ReadAll(ctx, set, name)
	if errors.Is(err, artifact.ErrNotFound) {
		return "", nil
	}
	return string(data), err
}

func warnings(stderr string) []string {
	if strings.TrimSpace(stderr) == "" {
		return nil
	}
	return []string{stderr}
}

func unexpected(err error) *exitcode.Failure {
	f := exitcode.New(exitcode.Unexpected)
	f.Detail = err.Error()
	return f
}
