package restart

import (
	"context"
	"slices"

	"github.com/specialistvlad/asegrid/internal/argtree"
	"github.com/specialistvlad/asegrid/internal/ctxlog"
	"github.com/specialistvlad/asegrid/internal/exitcode"
)

// Action is what a handler decided.
type Action int

const (
	Stop Action = iota
	Retry
)

func (a Action) String() string {
	if a == Retry {
		return "retry"
	}
	return "stop"
}

// Handler reacts to one classification. It may change the state the next
// attempt starts from.
type Handler struct {
	Code exitcode.Code
	Name string
	Fn   func(ctx context.Context, st *State, f *exitcode.Failure) Action
}

// Mixing damping for SCF failures. Each failure halves the current beta, so
// repeated failures compound.
const (
	DefaultMixerBeta = 0.05
	DampingFactor    = 0.5
	mixerHistory     = 5
	mixerWeight      = 50.0
)

// DefaultHandlers returns the handler table in priority order.
func DefaultHandlers() []Handler {
	return []Handler{
		{Code: exitcode.BackendDataMissing, Name: "missing_data", Fn: handleDataMissing},
		{Code: exitcode.RelaxNotComplete, Name: "relax_not_complete", Fn: handleRelaxNotComplete},
		{Code: exitcode.SCFNotComplete, Name: "scf_not_complete", Fn: handleSCFNotComplete},
		{Code: exitcode.Unexpected, Name: "unexpected", Fn: handleUnexpected},
	}
}

func handleDataMissing(ctx context.Context, _ *State, f *exitcode.Failure) Action {
	ctxlog.FromContext(ctx).Error("Backend data files are missing, not restarting.", "detail", f.Detail)
	return Stop
}

func handleRelaxNotComplete(ctx context.Context, st *State, f *exitcode.Failure) Action {
	logger := ctxlog.FromContext(ctx)
	if last := f.LastStep(); last != nil {
		st.Structure = last.Clone()
		logger.Info("Restarting relaxation from the last completed step.", "steps", len(f.Trajectory))
	} else {
		logger.Info("Restarting relaxation from the same structure.")
	}
	return Retry
}

func handleSCFNotComplete(ctx context.Context, st *State, _ *exitcode.Failure) Action {
	beta := currentBeta(st.Parameters)
	next := beta * DampingFactor

	v, _ := st.Parameters.Lookup("calculator", "args", "mixer")
	mixer, ok := v.(argtree.Invocation)
	if ok {
		mixer, ok = withBeta(mixer, next)
	}
	if !ok {
		mixer = argtree.Invocation{
			Function: "Mixer",
			Args: argtree.NewMapping(
				argtree.Entry{Key: "beta", Value: argtree.Float(next)},
				argtree.Entry{Key: "nmaxold", Value: argtree.Int(mixerHistory)},
				argtree.Entry{Key: "weight", Value: argtree.Float(mixerWeight)},
			),
		}
		st.Parameters = withExtraImport(st.Parameters, "gpaw", "Mixer")
	}
	st.Parameters = st.Parameters.SetPath(mixer, "calculator", "args", "mixer")
	ctxlog.FromContext(ctx).Info("Damping SCF mixing.", "mixer", mixer.Function, "beta_from", beta, "beta_to", next)
	return Retry
}

func handleUnexpected(ctx context.Context, _ *State, f *exitcode.Failure) Action {
	ctxlog.FromContext(ctx).Warn("Unexpected failure, retrying unchanged.", "detail", f.Detail)
	return Retry
}

// currentBeta reads the beta of the mixer already configured on the
// calculator, falling back to the default.
func currentBeta(params *argtree.Mapping) float64 {
	v, _ := params.Lookup("calculator", "args", "mixer")
	inv, ok := v.(argtree.Invocation)
	if !ok {
		return DefaultMixerBeta
	}
	var b argtree.Value
	switch args := inv.Args.(type) {
	case *argtree.Mapping:
		b, _ = args.Get("beta")
	case argtree.Sequence:
		b = positionalBeta(args)
	}
	n, ok := b.(argtree.Number)
	if !ok || n.Float64() <= 0 {
		return DefaultMixerBeta
	}
	return n.Float64()
}

// positionalBeta returns beta from a call's argument list: the first
// positional number, or a beta keyword.
func positionalBeta(args argtree.Sequence) argtree.Value {
	if len(args) > 0 {
		if n, ok := args[0].(argtree.Number); ok {
			return n
		}
	}
	for _, el := range args {
		if kw, ok := el.(*argtree.Mapping); ok {
			if b, ok := kw.Get("beta"); ok {
				return b
			}
		}
	}
	return nil
}

// withBeta returns mixer with beta set. The function and every other
// argument are kept. It reports false for argument shapes it cannot edit.
func withBeta(mixer argtree.Invocation, beta float64) (argtree.Invocation, bool) {
	b := argtree.Float(beta)
	switch args := mixer.Args.(type) {
	case nil, argtree.None:
		mixer.Args = argtree.NewMapping(argtree.Entry{Key: "beta", Value: b})
	case *argtree.Mapping:
		mixer.Args = args.With("beta", b)
	case argtree.Sequence:
		out := slices.Clone(args)
		if len(out) > 0 {
			if _, ok := out[0].(argtree.Number); ok {
				out[0] = b
				mixer.Args = out
				return mixer, true
			}
		}
		for i, el := range out {
			if kw, ok := el.(*argtree.Mapping); ok {
				if _, ok := kw.Get("beta"); ok {
					out[i] = kw.With("beta", b)
					mixer.Args = out
					return mixer, true
				}
			}
		}
		mixer.Args = append(out, argtree.NewMapping(argtree.Entry{Key: "beta", Value: b}))
	default:
		return mixer, false
	}
	return mixer, true
}

// withExtraImport appends `from module import symbol` to extra_imports
// unless it is already there.
func withExtraImport(params *argtree.Mapping, module, symbol string) *argtree.Mapping {
	v, _ := params.Get("extra_imports")
	list, _ := v.(argtree.Sequence)
	for _, el := range list {
		seq, ok := el.(argtree.Sequence)
		if ok && len(seq) == 2 && seq[0] == argtree.String(module) && seq[1] == argtree.String(symbol) {
			return params
		}
	}
	out := make(argtree.Sequence, 0, len(list)+1)
	out = append(out, list...)
	out = append(out, argtree.Sequence{argtree.String(module), argtree.String(symbol)})
	return params.With("extra_imports", out)
}
