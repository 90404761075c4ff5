package config

import (
	"fmt"

	"github.com/specialistvlad/asegrid/internal/structure"
)

// MeshFrom builds a k-point mesh from loader input. A nil size means no
// mesh was given.
func MeshFrom(size []int, offset []float64) (*structure.Mesh, error) {
	if size == nil {
		if offset != nil {
			return nil, fmt.Errorf("%w: kpoints_offset given without kpoints", ErrInvalidJob)
		}
		return nil, nil
	}
	if len(size) != 3 {
		return nil, fmt.Errorf("%w: kpoints needs 3 values, got %d", ErrInvalidJob, len(size))
	}
	m := &structure.Mesh{Size: [3]int(size)}
	if offset != nil {
		if len(offset) != 3 {
			return nil, fmt.Errorf("%w: kpoints_offset needs 3 values, got %d", ErrInvalidJob, len(offset))
		}
		m.Offset = [3]float64(offset)
	}
	return m, nil
}

// StructureFrom builds an inline structure from loader input. A nil pbc
// means fully periodic when a cell is given and non-periodic otherwise.
func StructureFrom(symbols []string, positions, cell [][]float64, pbc []bool) (*structure.Structure, error) {
	s := &structure.Structure{Symbols: symbols}
	for i, p := range positions {
		if len(p) != 3 {
			return nil, fmt.Errorf("%w: position %d has %d components", ErrInvalidJob, i, len(p))
		}
		s.Positions = append(s.Positions, [3]float64(p))
	}
	if cell != nil {
		if len(cell) != 3 {
			return nil, fmt.Errorf("%w: cell needs 3 vectors, got %d", ErrInvalidJob, len(cell))
		}
		for i, v := range cell {
			if len(v) != 3 {
				return nil, fmt.Errorf("%w: cell vector %d has %d components", ErrInvalidJob, i, len(v))
			}
			s.Cell[i] = [3]float64(v)
		}
	}
	switch {
	case pbc != nil:
		if len(pbc) != 3 {
			return nil, fmt.Errorf("%w: pbc needs 3 flags, got %d", ErrInvalidJob, len(pbc))
		}
		s.PBC = [3]bool(pbc)
	case cell != nil:
		s.PBC = [3]bool{true, true, true}
	}
	return s, nil
}
