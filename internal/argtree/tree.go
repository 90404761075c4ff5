package argtree

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// FunctionKey marks a mapping that stands for an inline call. Its sibling key
// ArgsKey holds the call's arguments.
const (
	FunctionKey = "@function"
	ArgsKey     = "args"
)

// ErrBadArgument is returned when a tree has a shape that cannot be rendered
// as call arguments.
var ErrBadArgument = errors.New("bad argument")

// Value is a node of an argument tree.
type Value interface {
	isValue()
}

// String is a string literal. It renders double-quoted.
type String string

// Expr is a raw expression in the target script (a variable name, for
// example). It renders verbatim.
type Expr string

// Bool is a boolean literal.
type Bool bool

// None is the null literal.
type None struct{}

// Number is a numeric literal. It keeps the canonical text chosen when it was
// built, so integers stay integers and floats keep a decimal point.
type Number struct {
	text  string
	value float64
}

// Sequence is an ordered list of values.
type Sequence []Value

// Invocation is an inline call `Function(args)`.
type Invocation struct {
	Function string
	Args     Value
}

func (String) isValue()     {}
func (Expr) isValue()       {}
func (Bool) isValue()       {}
func (None) isValue()       {}
func (Number) isValue()     {}
func (Sequence) isValue()   {}
func (Invocation) isValue() {}
func (*Mapping) isValue()   {}

// Int builds an integer literal.
func Int(i int64) Number {
	return Number{text: strconv.FormatInt(i, 10), value: float64(i)}
}

// Float builds a floating point literal.
func Float(f float64) Number {
	return Number{text: formatFloat(f), value: f}
}

// Float64 returns the numeric value.
func (n Number) Float64() float64 { return n.value }

// String returns the literal text.
func (n Number) String() string { return n.text }

// formatFloat mirrors the shortest round-trip repr used by the script
// interpreter: decimal notation with a trailing ".0" for integral values,
// exponent notation outside [1e-4, 1e16).
func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "float('inf')"
	case math.IsInf(f, -1):
		return "-float('inf')"
	case math.IsNaN(f):
		return "float('nan')"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if f == math.Trunc(f) {
		s += ".0"
	}
	return s
}

// Entry is one key/value pair of a Mapping.
type Entry struct {
	Key   string
	Value Value
}

// Mapping is an insertion-ordered, immutable set of entries.
type Mapping struct {
	entries []Entry
}

// NewMapping builds a mapping from entries. A later duplicate key replaces
// the earlier value in place.
func NewMapping(entries ...Entry) *Mapping {
	m := &Mapping{}
	for _, e := range entries {
		m.set(e.Key, e.Value)
	}
	return m
}

func (m *Mapping) set(key string, v Value) {
	for i := range m.entries {
		if m.entries[i].Key == key {
			m.entries[i].Value = v
			return
		}
	}
	m.entries = append(m.entries, Entry{Key: key, Value: v})
}

// Len returns the number of entries. A nil mapping is empty.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Keys returns the keys in insertion order.
func (m *Mapping) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, len(m.entries))
	for i, e := range m.entries {
		keys[i] = e.Key
	}
	return keys
}

// Entries returns a copy of the entries in insertion order.
func (m *Mapping) Entries() []Entry {
	if m == nil {
		return nil
	}
	return append([]Entry(nil), m.entries...)
}

// Get looks up a key.
func (m *Mapping) Get(key string) (Value, bool) {
	if m == nil {
		return nil, false
	}
	for _, e := range m.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Lookup walks nested mappings along path.
func (m *Mapping) Lookup(path ...string) (Value, bool) {
	var cur Value = m
	for _, key := range path {
		mm, ok := cur.(*Mapping)
		if !ok {
			return nil, false
		}
		if cur, ok = mm.Get(key); !ok {
			return nil, false
		}
	}
	return cur, true
}

// With returns a copy of m with key set to v. An existing key keeps its
// position.
func (m *Mapping) With(key string, v Value) *Mapping {
	out := &Mapping{entries: m.Entries()}
	out.set(key, v)
	return out
}

// Without returns a copy of m without key.
func (m *Mapping) Without(key string) *Mapping {
	out := &Mapping{}
	for _, e := range m.Entries() {
		if e.Key != key {
			out.entries = append(out.entries, e)
		}
	}
	return out
}

// SetPath returns a copy of m with the value at path replaced by v.
// Intermediate nodes that are missing or are not mappings become empty
// mappings.
func (m *Mapping) SetPath(v Value, path ...string) *Mapping {
	if len(path) == 0 {
		return m
	}
	if len(path) == 1 {
		return m.With(path[0], v)
	}
	child, _ := m.Get(path[0])
	cm, ok := child.(*Mapping)
	if !ok {
		cm = &Mapping{}
	}
	return m.With(path[0], cm.SetPath(v, path[1:]...))
}

// Object builds the node for a mapping literal read from a configuration
// file. A mapping carrying FunctionKey becomes an Invocation; any other
// mapping is returned as *Mapping.
func Object(entries []Entry) (Value, error) {
	m := NewMapping(entries...)
	fn, ok := m.Get(FunctionKey)
	if !ok {
		return m, nil
	}
	name, ok := fn.(String)
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: %q must be a non-empty string", ErrBadArgument, FunctionKey)
	}
	for _, k := range m.Keys() {
		if k != FunctionKey && k != ArgsKey {
			return nil, fmt.Errorf("%w: unexpected key %q next to %q", ErrBadArgument, k, FunctionKey)
		}
	}
	args, _ := m.Get(ArgsKey)
	return Invocation{Function: string(name), Args: args}, nil
}

// Positional marks the bare strings of a top-level argument sequence as
// expressions, so `["atoms"]` renders as `atoms` rather than `"atoms"`.
// Any other value is returned unchanged.
func Positional(v Value) Value {
	seq, ok := v.(Sequence)
	if !ok {
		return v
	}
	out := make(Sequence, len(seq))
	for i, el := range seq {
		if s, ok := el.(String); ok {
			out[i] = Expr(s)
			continue
		}
		out[i] = el
	}
	return out
}

// IsNone reports whether v is absent or the null literal.
func IsNone(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(None)
	return ok
}
