// Package structure holds the atomic configurations exchanged with the
// generated script and the k-point mesh that accompanies them.
package structure

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidStructure is returned when a structure's fields disagree.
var ErrInvalidStructure = errors.New("invalid structure")

// Structure is one atomic configuration. Positions are Cartesian, in
// Angstrom; Cell rows are the lattice vectors.
type Structure struct {
	Symbols   []string
	Positions [][3]float64
	Cell      [3][3]float64
	PBC       [3]bool
}

// Len returns the number of atoms.
func (s *Structure) Len() int {
	return len(s.Symbols)
}

// Validate checks that every atom has a known symbol and a position.
func (s *Structure) Validate() error {
	if len(s.Symbols) != len(s.Positions) {
		return fmt.Errorf("%w: %d symbols but %d positions", ErrInvalidStructure, len(s.Symbols), len(s.Positions))
	}
	for i, sym := range s.Symbols {
		if AtomicNumber(sym) == 0 {
			return fmt.Errorf("%w: atom %d has unknown symbol %q", ErrInvalidStructure, i, sym)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (s *Structure) Clone() *Structure {
	if s == nil {
		return nil
	}
	return &Structure{
		Symbols:   slices.Clone(s.Symbols),
		Positions: slices.Clone(s.Positions),
		Cell:      s.Cell,
		PBC:       s.PBC,
	}
}

// Formula returns the chemical formula in order of first appearance,
// e.g. "H2O".
func (s *Structure) Formula() string {
	var order []string
	counts := map[string]int{}
	for _, sym := range s.Symbols {
		if counts[sym] == 0 {
			order = append(order, sym)
		}
		counts[sym]++
	}
	var out []byte
	for _, sym := range order {
		out = append(out, sym...)
		if n := counts[sym]; n > 1 {
			out = fmt.Appendf(out, "%d", n)
		}
	}
	return string(out)
}

// Mesh is a Monkhorst-Pack style k-point grid.
type Mesh struct {
	Size   [3]int
	Offset [3]float64
}

// Validate rejects non-positive grid sizes.
func (m Mesh) Validate() error {
	for i, n := range m.Size {
		if n <= 0 {
			return fmt.Errorf("k-point mesh axis %d has size %d", i, n)
		}
	}
	return nil
}
