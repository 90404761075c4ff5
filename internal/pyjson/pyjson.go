// Package pyjson decodes the JSON dialect Python's json module and ASE write
// by default. It differs from standard JSON only in the bare NaN, Infinity
// and -Infinity number tokens, which encoding/json rejects.
package pyjson

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
)

// markerPrefix starts the string a non-finite token is rewritten to. A NUL
// never appears in text Python's encoder leaves unescaped.
const markerPrefix = "\x00"

var tokens = []struct {
	text  string
	value float64
}{
	// -Infinity comes first so Infinity does not match its tail.
	{"-Infinity", math.Inf(-1)},
	{"Infinity", math.Inf(1)},
	{"NaN", math.NaN()},
}

// Normalize rewrites the non-finite tokens found outside strings into
// marker strings, so encoding/json accepts the document. The input is
// returned unchanged when it holds none.
func Normalize(data []byte) []byte {
	var out []byte
	inString, escaped := false, false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
		} else if c == '"' {
			inString = true
		} else if tok, ok := nonFinite(data[i:]); ok {
			if out == nil {
				out = append(make([]byte, 0, len(data)+16), data[:i]...)
			}
			out = append(out, `"\u0000`+tok+`"`...)
			i += len(tok) - 1
			continue
		}
		if out != nil {
			out = append(out, c)
		}
	}
	if out == nil {
		return data
	}
	return out
}

func nonFinite(b []byte) (string, bool) {
	for _, t := range tokens {
		if bytes.HasPrefix(b, []byte(t.text)) {
			return t.text, true
		}
	}
	return "", false
}

// Unmarshal decodes one document into generic values: map[string]any,
// []any, string, bool, nil, int64 for integral literals and float64 for
// every other number, non-finite ones included.
func Unmarshal(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(Normalize(data)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return restore(v), nil
}

func restore(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = restore(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = restore(e)
		}
		return x
	case json.Number:
		return number(x)
	case string:
		if f, ok := marker(x); ok {
			return f
		}
		return x
	default:
		return v
	}
}

func number(n json.Number) any {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return i
		}
	}
	f, err := n.Float64()
	if err != nil {
		// Out of range for float64 as well; keep the text.
		return s
	}
	return f
}

func marker(s string) (float64, bool) {
	if !strings.HasPrefix(s, markerPrefix) {
		return 0, false
	}
	for _, t := range tokens {
		if s[len(markerPrefix):] == t.text {
			return t.value, true
		}
	}
	return 0, false
}

// Float converts a decoded number to float64.
func Float(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
