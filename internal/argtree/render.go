package argtree

import (
	"fmt"
	"strconv"
	"strings"
)

// Render turns a tree into call-argument text.
//
//   - a mapping renders as `key=value, ...` in insertion order
//   - a sequence renders its elements comma-joined; mapping elements are
//     flattened to `key=value` pairs
//   - an invocation renders as `name(args)`
//   - a scalar renders as its literal
//
// A nil tree renders as the empty string.
func Render(v Value) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case *Mapping:
		return renderKeywords(t)
	case Sequence:
		parts := make([]string, 0, len(t))
		for i, el := range t {
			var (
				s   string
				err error
			)
			switch e := el.(type) {
			case *Mapping:
				s, err = renderKeywords(e)
			case Sequence:
				err = fmt.Errorf("%w: element %d is a nested sequence", ErrBadArgument, i)
			default:
				s, err = Literal(e)
			}
			if err != nil {
				return "", err
			}
			if s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", "), nil
	default:
		return Literal(v)
	}
}

func renderKeywords(m *Mapping) (string, error) {
	parts := make([]string, 0, m.Len())
	for _, e := range m.Entries() {
		lit, err := Literal(e.Value)
		if err != nil {
			return "", fmt.Errorf("argument %q: %w", e.Key, err)
		}
		parts = append(parts, e.Key+"="+lit)
	}
	return strings.Join(parts, ", "), nil
}

// Literal renders a value in value position: nested mappings become dict
// literals and nested sequences become list literals.
func Literal(v Value) (string, error) {
	switch t := v.(type) {
	case nil, None:
		return "None", nil
	case String:
		return strconv.Quote(string(t)), nil
	case Expr:
		return string(t), nil
	case Bool:
		if t {
			return "True", nil
		}
		return "False", nil
	case Number:
		if t.text == "" {
			return "0", nil
		}
		return t.text, nil
	case Invocation:
		args, err := Render(t.Args)
		if err != nil {
			return "", fmt.Errorf("call %s: %w", t.Function, err)
		}
		return t.Function + "(" + args + ")", nil
	case *Mapping:
		parts := make([]string, 0, t.Len())
		for _, e := range t.Entries() {
			lit, err := Literal(e.Value)
			if err != nil {
				return "", fmt.Errorf("key %q: %w", e.Key, err)
			}
			parts = append(parts, strconv.Quote(e.Key)+": "+lit)
		}
		return "{" + strings.Join(parts, ", ") + "}", nil
	case Sequence:
		parts := make([]string, 0, len(t))
		for _, el := range t {
			lit, err := Literal(el)
			if err != nil {
				return "", err
			}
			parts = append(parts, lit)
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	default:
		return "", fmt.Errorf("%w: unsupported node %T", ErrBadArgument, v)
	}
}
