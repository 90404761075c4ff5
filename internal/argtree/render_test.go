package argtree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_Invocation(t *testing.T) {
	t.Parallel()

	v, err := Object([]Entry{
		{Key: FunctionKey, Value: String("h2gpts")},
		{Key: ArgsKey, Value: NewMapping(Entry{Key: "h", Value: Float(0.18)})},
	})
	require.NoError(t, err)

	out, err := Render(v)
	require.NoError(t, err)
	assert.Equal(t, "h2gpts(h=0.18)", out)
}

func TestRender_Cases(t *testing.T) {
	t.Parallel()

	pw, err := Object([]Entry{
		{Key: FunctionKey, Value: String("PW")},
		{Key: ArgsKey, Value: NewMapping(Entry{Key: "ecut", Value: Int(300)})},
	})
	require.NoError(t, err)

	cases := []struct {
		name string
		in   Value
		want string
	}{
		{name: "nil", in: nil, want: ""},
		{name: "empty mapping", in: NewMapping(), want: ""},
		{name: "empty sequence", in: Sequence{}, want: ""},
		{name: "string scalar", in: String("fd"), want: `"fd"`},
		{name: "bool scalar", in: Bool(true), want: "True"},
		{name: "int scalar", in: Int(300), want: "300"},
		{
			name: "mapping keeps insertion order",
			in: NewMapping(
				Entry{Key: "zeta", Value: Int(1)},
				Entry{Key: "alpha", Value: String("x")},
				Entry{Key: "txt", Value: None{}},
			),
			want: `zeta=1, alpha="x", txt=None`,
		},
		{
			name: "invocation as mapping value",
			in:   NewMapping(Entry{Key: "mode", Value: pw}, Entry{Key: "xc", Value: String("PBE")}),
			want: `mode=PW(ecut=300), xc="PBE"`,
		},
		{
			name: "nested mapping becomes dict literal",
			in: NewMapping(Entry{Key: "occupations", Value: NewMapping(
				Entry{Key: "name", Value: String("fermi-dirac")},
				Entry{Key: "width", Value: Float(0.05)},
			)}),
			want: `occupations={"name": "fermi-dirac", "width": 0.05}`,
		},
		{
			name: "nested sequence becomes list literal",
			in:   NewMapping(Entry{Key: "cell_cv", Value: Sequence{Sequence{Float(4), Int(0)}, Sequence{Int(0), Float(4)}}}),
			want: "cell_cv=[[4.0, 0], [0, 4.0]]",
		},
		{
			name: "sequence flattens mappings",
			in:   Positional(Sequence{String("atoms"), NewMapping(Entry{Key: "apply_constraint", Value: Bool(false)})}),
			want: "atoms, apply_constraint=False",
		},
		{
			name: "sequence with invocation",
			in:   Sequence{pw},
			want: "PW(ecut=300)",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Render(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRender_NestedSequenceElementIsBadArgument(t *testing.T) {
	t.Parallel()

	_, err := Render(Sequence{String("a"), Sequence{Int(1)}})
	require.ErrorIs(t, err, ErrBadArgument)
}

func TestObject_RejectsMalformedMarker(t *testing.T) {
	t.Parallel()

	_, err := Object([]Entry{{Key: FunctionKey, Value: Int(3)}})
	require.ErrorIs(t, err, ErrBadArgument)

	_, err = Object([]Entry{
		{Key: FunctionKey, Value: String("PW")},
		{Key: "ecut", Value: Int(300)},
	})
	require.ErrorIs(t, err, ErrBadArgument)
}

func TestFloat_Formatting(t *testing.T) {
	t.Parallel()

	cases := map[float64]string{
		0.18:   "0.18",
		1e-9:   "1e-09",
		300:    "300.0",
		-0.5:   "-0.5",
		1.5e-5: "1.5e-05",
		1e16:   "1e+16",
		0:      "0.0",
	}
	for in, want := range cases {
		assert.Equal(t, want, Float(in).String(), "formatting %v", in)
	}
}

// splitTopLevel is a tiny call-argument grammar: it splits on commas that are
// outside brackets and string literals.
func splitTopLevel(s string) []string {
	var (
		parts   []string
		depth   int
		inQuote bool
		start   int
	)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\' && inQuote:
			i++
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '[' || c == '{' || c == '(':
			depth++
		case c == ']' || c == '}' || c == ')':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	if strings.TrimSpace(s[start:]) != "" {
		parts = append(parts, strings.TrimSpace(s[start:]))
	}
	return parts
}

func TestRender_RoundTripPreservesPairs(t *testing.T) {
	t.Parallel()

	in := NewMapping(
		Entry{Key: "xc", Value: String("PBE, with comma")},
		Entry{Key: "h", Value: Float(0.2)},
		Entry{Key: "nbands", Value: Int(-8)},
		Entry{Key: "spinpol", Value: Bool(false)},
		Entry{Key: "convergence", Value: NewMapping(
			Entry{Key: "energy", Value: Float(1e-9)},
			Entry{Key: "density", Value: Float(1e-4)},
		)},
	)
	out, err := Render(in)
	require.NoError(t, err)

	parts := splitTopLevel(out)
	require.Len(t, parts, in.Len())
	for i, e := range in.Entries() {
		key, lit, found := strings.Cut(parts[i], "=")
		require.True(t, found, "part %q has no '='", parts[i])
		assert.Equal(t, e.Key, key)
		want, err := Literal(e.Value)
		require.NoError(t, err)
		assert.Equal(t, want, lit)
	}
}
