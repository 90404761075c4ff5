package structure

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/specialistvlad/asegrid/internal/pyjson"
)

// ErrMalformedFile is returned when an ASE JSON document cannot be decoded
// into a structure.
var ErrMalformedFile = errors.New("malformed ASE JSON structure")

// writerUser is recorded as the author of every written row.
const writerUser = "asegrid"

// rowNamespace seeds the content-derived unique_id of written rows.
var rowNamespace = uuid.MustParse("6f1c5c0e-4a51-4e8e-9d39-2b7e0e4a8a11")

// ndarray is ASE's JSON encoding of a numpy array: [shape, dtype, flat].
type ndarray struct {
	Shape []int
	DType string
	Flat  []any
}

func (a ndarray) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"__ndarray__": []any{a.Shape, a.DType, a.Flat}})
}

type cellObject struct {
	Array   ndarray `json:"array"`
	PBC     ndarray `json:"pbc"`
	ObjType string  `json:"__ase_objtype__"`
}

// row mirrors the field order ASE itself writes.
type row struct {
	Cell      cellObject `json:"cell"`
	CTime     float64    `json:"ctime"`
	MTime     float64    `json:"mtime"`
	Numbers   ndarray    `json:"numbers"`
	PBC       ndarray    `json:"pbc"`
	Positions ndarray    `json:"positions"`
	UniqueID  string     `json:"unique_id"`
	User      string     `json:"user"`
}

type database struct {
	Row    row   `json:"1"`
	IDs    []int `json:"ids"`
	NextID int   `json:"nextid"`
}

// MarshalASE encodes s as a single-row ASE JSON database, the format
// ase.io.read and Atoms.write use for ".json" files. Output is
// deterministic for a given structure.
func MarshalASE(s *Structure) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	nums := make([]any, len(s.Symbols))
	for i, sym := range s.Symbols {
		nums[i] = AtomicNumber(sym)
	}
	pos := make([]any, 0, 3*len(s.Positions))
	for _, p := range s.Positions {
		pos = append(pos, p[0], p[1], p[2])
	}
	cell := make([]any, 0, 9)
	for _, v := range s.Cell {
		cell = append(cell, v[0], v[1], v[2])
	}
	pbc := []any{s.PBC[0], s.PBC[1], s.PBC[2]}

	r := row{
		Cell: cellObject{
			Array:   ndarray{Shape: []int{3, 3}, DType: "float64", Flat: cell},
			PBC:     ndarray{Shape: []int{3}, DType: "bool", Flat: pbc},
			ObjType: "cell",
		},
		Numbers:   ndarray{Shape: []int{len(nums)}, DType: "int64", Flat: nums},
		PBC:       ndarray{Shape: []int{3}, DType: "bool", Flat: pbc},
		Positions: ndarray{Shape: []int{len(s.Positions), 3}, DType: "float64", Flat: pos},
		User:      writerUser,
	}

	// The id is a hash of the row content so identical inputs give
	// byte-identical files.
	content, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encoding structure: %w", err)
	}
	r.UniqueID = strings.ReplaceAll(uuid.NewSHA1(rowNamespace, content).String(), "-", "")

	out, err := json.MarshalIndent(database{Row: r, IDs: []int{1}, NextID: 2}, "", " ")
	if err != nil {
		return nil, fmt.Errorf("encoding structure: %w", err)
	}
	return append(out, '\n'), nil
}

// UnmarshalASE decodes a structure from an ASE JSON file. Both the database
// layout ASE writes ({"1": {...}, "ids": [...]}) and a bare row are
// accepted. For a multi-row database the last id wins, matching
// ase.io.read's default index. The bare NaN and Infinity tokens ASE's
// encoder writes are accepted.
func UnmarshalASE(data []byte) (*Structure, error) {
	data = pyjson.Normalize(data)
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFile, err)
	}

	rawRow := json.RawMessage(data)
	if idsRaw, ok := top["ids"]; ok {
		var ids []int
		if err := json.Unmarshal(idsRaw, &ids); err != nil || len(ids) == 0 {
			return nil, fmt.Errorf("%w: bad ids list", ErrMalformedFile)
		}
		r, ok := top[fmt.Sprint(ids[len(ids)-1])]
		if !ok {
			return nil, fmt.Errorf("%w: row %d missing", ErrMalformedFile, ids[len(ids)-1])
		}
		rawRow = r
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(rawRow, &fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFile, err)
	}

	s := &Structure{}

	nums, err := decodeNumbers(fields["numbers"])
	if err != nil {
		return nil, fmt.Errorf("%w: numbers: %w", ErrMalformedFile, err)
	}
	for _, z := range nums {
		sym := Symbol(int(z))
		if sym == "" {
			return nil, fmt.Errorf("%w: atomic number %v out of range", ErrMalformedFile, z)
		}
		s.Symbols = append(s.Symbols, sym)
	}

	pos, err := decodeNumbers(fields["positions"])
	if err != nil {
		return nil, fmt.Errorf("%w: positions: %w", ErrMalformedFile, err)
	}
	if len(pos) != 3*len(nums) {
		return nil, fmt.Errorf("%w: %d position values for %d atoms", ErrMalformedFile, len(pos), len(nums))
	}
	for i := 0; i < len(pos); i += 3 {
		s.Positions = append(s.Positions, [3]float64{pos[i], pos[i+1], pos[i+2]})
	}

	if raw, ok := fields["cell"]; ok {
		cell, err := decodeCell(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: cell: %w", ErrMalformedFile, err)
		}
		s.Cell = cell
	}

	if raw, ok := fields["pbc"]; ok {
		pbc, err := decodePBC(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: pbc: %w", ErrMalformedFile, err)
		}
		s.PBC = pbc
	}

	return s, nil
}

func decodeCell(raw json.RawMessage) ([3][3]float64, error) {
	var cell [3][3]float64
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		if inner, ok := obj["array"]; ok {
			raw = inner
		}
	}
	flat, err := decodeNumbers(raw)
	if err != nil {
		return cell, err
	}
	switch len(flat) {
	case 9:
		for i := 0; i < 9; i++ {
			cell[i/3][i%3] = flat[i]
		}
	case 3:
		// Orthorhombic cells may be stored as their three lengths.
		for i := 0; i < 3; i++ {
			cell[i][i] = flat[i]
		}
	case 0:
	default:
		return cell, fmt.Errorf("%d values", len(flat))
	}
	return cell, nil
}

func decodePBC(raw json.RawMessage) ([3]bool, error) {
	var pbc [3]bool
	var single bool
	if err := json.Unmarshal(raw, &single); err == nil {
		return [3]bool{single, single, single}, nil
	}
	flat, err := flatten(raw)
	if err != nil {
		return pbc, err
	}
	if len(flat) != 3 {
		return pbc, fmt.Errorf("%d values", len(flat))
	}
	for i, v := range flat {
		switch b := v.(type) {
		case bool:
			pbc[i] = b
		case int64:
			pbc[i] = b != 0
		case float64:
			pbc[i] = b != 0
		default:
			return pbc, fmt.Errorf("value %v is not a flag", v)
		}
	}
	return pbc, nil
}

func decodeNumbers(raw json.RawMessage) ([]float64, error) {
	if len(raw) == 0 {
		return nil, errors.New("missing")
	}
	flat, err := flatten(raw)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(flat))
	for i, v := range flat {
		f, ok := pyjson.Float(v)
		if !ok {
			return nil, fmt.Errorf("value %v is not a number", v)
		}
		out[i] = f
	}
	return out, nil
}

// flatten accepts either an ndarray object or a (nested) JSON list and
// returns its elements in row-major order.
func flatten(raw json.RawMessage) ([]any, error) {
	v, err := pyjson.Unmarshal(raw)
	if err != nil {
		return nil, err
	}
	if obj, ok := v.(map[string]any); ok {
		nd, ok := obj["__ndarray__"].([]any)
		if !ok || len(nd) != 3 {
			return nil, errors.New("object is not an ndarray")
		}
		flat, ok := nd[2].([]any)
		if !ok {
			return nil, errors.New("ndarray data is not a list")
		}
		return flat, nil
	}
	var out []any
	var walk func(any)
	walk = func(x any) {
		if l, ok := x.([]any); ok {
			for _, e := range l {
				walk(e)
			}
			return
		}
		out = append(out, x)
	}
	walk(v)
	return out, nil
}
