package resultparse

import (
	"errors"
	"fmt"
	"slices"

	"github.com/specialistvlad/asegrid/internal/pyjson"
	"github.com/specialistvlad/asegrid/internal/structure"
	"gonum.org/v1/gonum/mat"
)

// ErrNotNumeric is returned when an array holds something other than numbers
// or is not rectangular.
var ErrNotNumeric = errors.New("array is not a numeric matrix")

// Record is a successful parse. Every key of the results mapping ends up in
// exactly one of Parameters and Arrays.
type Record struct {
	Parameters map[string]any
	Arrays     map[string]Array
	// Structure is the output structure, when one was produced.
	Structure *structure.Structure
	// Trajectory holds one structure per completed relaxation step.
	Trajectory []*structure.Structure
	// Warnings carries the process's standard error, when non-empty.
	Warnings []string
}

// ParameterNames returns the scalar keys, sorted.
func (r *Record) ParameterNames() []string {
	return sortedKeys(r.Parameters)
}

// ArrayNames returns the array keys, sorted.
func (r *Record) ArrayNames() []string {
	return sortedKeys(r.Arrays)
}

// sortedKeys returns the keys of m in ascending order (nil when m is empty).
func sortedKeys[V any](m map[string]V) []string {
	var keys []string
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Array is a sequence-valued result, kept as decoded.
type Array struct {
	Values []any
}

// Shape returns the dimensions of the array, following the first element at
// each level.
func (a Array) Shape() []int {
	var shape []int
	var cur any = a.Values
	for {
		seq, ok := cur.([]any)
		if !ok {
			return shape
		}
		shape = append(shape, len(seq))
		if len(seq) == 0 {
			return shape
		}
		cur = seq[0]
	}
}

// Vector returns a one-dimensional numeric array as floats.
func (a Array) Vector() ([]float64, error) {
	out := make([]float64, len(a.Values))
	for i, v := range a.Values {
		f, ok := pyjson.Float(v)
		if !ok {
			return nil, fmt.Errorf("%w: element %d is %T", ErrNotNumeric, i, v)
		}
		out[i] = f
	}
	return out, nil
}

// Dense returns a two-dimensional numeric array as a matrix.
func (a Array) Dense() (*mat.Dense, error) {
	if len(a.Values) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrNotNumeric)
	}
	var cols int
	var data []float64
	for i, row := range a.Values {
		vec, err := (Array{Values: asSlice(row)}).Vector()
		if err != nil {
			return nil, fmt.Errorf("%w: row %d", ErrNotNumeric, i)
		}
		if i == 0 {
			cols = len(vec)
		}
		if len(vec) != cols || cols == 0 {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrNotNumeric, i, len(vec), cols)
		}
		data = append(data, vec...)
	}
	return mat.NewDense(len(a.Values), cols, data), nil
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

// partition moves every sequence-valued entry of results into an array
// record. Nested mappings stay in the parameters untouched.
func partition(results map[string]any) (map[string]any, map[string]Array) {
	params := make(map[string]any, len(results))
	arrays := make(map[string]Array)
	for k, v := range results {
		if seq, ok := v.([]any); ok {
			arrays[k] = Array{Values: seq}
			continue
		}
		params[k] = v
	}
	return params, arrays
}
