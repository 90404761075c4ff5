// Package scriptgen turns a structure and a parameter tree into the script
// the external interpreter runs, the serialized input structure, and the
// submission descriptor the execution environment consumes.
//
// Generation is a pure transformation: nothing is written to disk here, and
// the caller's parameter tree is never modified.
package scriptgen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/specialistvlad/asegrid/internal/argtree"
	"github.com/specialistvlad/asegrid/internal/config"
	"github.com/specialistvlad/asegrid/internal/ctxlog"
	"github.com/specialistvlad/asegrid/internal/imports"
	"github.com/specialistvlad/asegrid/internal/structure"
)

var (
	ErrMissingOptimizerName  = errors.New("optimizer name is missing")
	ErrInvalidOptimizerSpec  = errors.New("optimizer must be a mapping")
	ErrInvalidCalculatorSpec = errors.New("calculator must be a mapping")
	ErrBadExtraImport        = errors.New("extra import format not recognized")
	ErrInvalidLines          = errors.New("lines must be a list of strings")
	ErrInvalidGetter         = errors.New("getter format not recognized")
	ErrInvalidCmdline        = errors.New("CMDLINE must be a list")
	ErrInvalidRetrieveList   = errors.New("ADDITIONAL_RETRIEVE_LIST must be a list of strings")
	ErrNoStructure           = errors.New("no input structure")
)

// Settings keys.
const (
	SettingCmdline            = "CMDLINE"
	SettingAdditionalRetrieve = "ADDITIONAL_RETRIEVE_LIST"
)

// defaultGetter is always collected first.
const defaultGetter = "total_energy"

// Input is everything one generation needs.
type Input struct {
	Structure  *structure.Structure
	Parameters *argtree.Mapping
	Kpoints    *structure.Mesh
	Settings   *argtree.Mapping
	Options    config.Options
	Files      config.Files
}

// Output is the result of a successful generation.
type Output struct {
	Script     string
	Structure  []byte
	Submission Submission
	// Relax is set when the parameters configured an optimizer.
	Relax bool
	// Residual lists parameter and settings keys that nothing consumed.
	Residual []string
}

// getter is a normalized result-collection call.
type getter struct {
	method string
	args   string
}

// plan is the parsed form of the parameter tree, ready to emit.
type plan struct {
	imports    []imports.Statement
	preLines   []string
	postLines  []string
	calcArgs   string
	relax      bool
	optArgs    string
	optRunArgs string
	atomsGet   []getter
	calcGet    []getter
}

// Generate builds the script, the serialized structure and the submission
// descriptor. Any malformed input aborts with an error and no output.
func Generate(ctx context.Context, in *Input) (*Output, error) {
	logger := ctxlog.FromContext(ctx)

	if in.Structure == nil {
		return nil, ErrNoStructure
	}
	atoms, err := structure.MarshalASE(in.Structure)
	if err != nil {
		return nil, fmt.Errorf("serializing structure: %w", err)
	}

	r := argtree.Read(in.Parameters)
	p, err := parse(ctx, r, in)
	if err != nil {
		return nil, err
	}

	sr := argtree.Read(in.Settings)
	sub, err := submission(sr, in, p.relax)
	if err != nil {
		return nil, err
	}

	script := emit(p, in)

	residual := r.Residual()
	for _, k := range sr.Residual() {
		residual = append(residual, "settings."+k)
	}
	if len(residual) > 0 {
		logger.Warn("Ignoring unused parameters.", "keys", residual)
	}
	logger.Debug("Script generated.",
		"relax", p.relax,
		"imports", len(p.imports),
		"atoms_getters", len(p.atomsGet),
		"calculator_getters", len(p.calcGet),
	)

	return &Output{
		Script:     script,
		Structure:  atoms,
		Submission: sub,
		Relax:      p.relax,
		Residual:   residual,
	}, nil
}

func parse(ctx context.Context, r *argtree.Reader, in *Input) (*plan, error) {
	p := &plan{}

	// Optimizer.
	optImport, err := p.parseOptimizer(r, in.Files)
	if err != nil {
		return nil, err
	}

	// Calculator.
	calcImport, calcArgs, err := parseCalculator(r)
	if err != nil {
		return nil, err
	}
	kpts, err := kpointsArg(ctx, r, in.Kpoints)
	if err != nil {
		return nil, err
	}
	p.calcArgs = joinArgs(calcArgs.text, kpts)

	// Getters.
	p.atomsGet = append(p.atomsGet, getter{method: defaultGetter})
	configured, err := getters(r, "atoms_getters")
	if err != nil {
		return nil, err
	}
	p.atomsGet = append(p.atomsGet, configured...)
	if p.calcGet, err = getters(r, "calculator_getters"); err != nil {
		return nil, err
	}

	// Imports.
	p.imports = []imports.Statement{
		imports.Module("ase"),
		imports.Module("ase.io"),
		imports.Module("json"),
		imports.Module("numpy"),
		calcImport,
	}
	if p.relax {
		p.imports = append(p.imports, optImport)
	}
	if calcArgs.planeWave {
		p.imports = append(p.imports, imports.From("gpaw", "PW", ""))
	}
	extra, err := extraImports(r)
	if err != nil {
		return nil, err
	}
	p.imports = append(p.imports, extra...)
	if in.Options.WithMPI {
		p.imports = append(p.imports, imports.From("ase.parallel", "paropen", ""))
	}

	if p.preLines, err = lines(r, "pre_lines"); err != nil {
		return nil, err
	}
	if p.postLines, err = lines(r, "post_lines"); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *plan) parseOptimizer(r *argtree.Reader, files config.Files) (imports.Statement, error) {
	sub, raw, ok := r.Sub("optimizer")
	if !ok {
		return imports.Statement{}, nil
	}
	if sub == nil {
		return imports.Statement{}, fmt.Errorf("%w: got %s", ErrInvalidOptimizerSpec, kind(raw))
	}
	p.relax = true

	nameV, ok := sub.Take("name")
	if !ok {
		return imports.Statement{}, ErrMissingOptimizerName
	}
	name, ok := nameV.(argtree.String)
	if !ok || name == "" {
		return imports.Statement{}, fmt.Errorf("%w: name must be a non-empty string", ErrInvalidOptimizerSpec)
	}
	st, err := imports.Optimizer(string(name))
	if err != nil {
		return imports.Statement{}, err
	}

	args, _ := sub.Take("args")
	rendered, err := argtree.Render(argtree.Positional(args))
	if err != nil {
		return imports.Statement{}, fmt.Errorf("optimizer args: %w", err)
	}
	p.optArgs = joinArgs("atoms", "logfile="+quote(files.OptimizerLog), rendered)

	runArgs, _ := sub.Take("run_args")
	if p.optRunArgs, err = argtree.Render(argtree.Positional(runArgs)); err != nil {
		return imports.Statement{}, fmt.Errorf("optimizer run_args: %w", err)
	}
	return st, nil
}

type calculatorArgs struct {
	text      string
	planeWave bool
}

func parseCalculator(r *argtree.Reader) (imports.Statement, calculatorArgs, error) {
	var out calculatorArgs
	sub, raw, ok := r.Sub("calculator")
	if ok && sub == nil {
		return imports.Statement{}, out, fmt.Errorf("%w: got %s", ErrInvalidCalculatorSpec, kind(raw))
	}

	var name string
	if sub != nil {
		if v, ok := sub.Take("name"); ok {
			s, isStr := v.(argtree.String)
			if !isStr {
				return imports.Statement{}, out, fmt.Errorf("%w: name must be a string", ErrInvalidCalculatorSpec)
			}
			name = string(s)
		}
	}
	st, err := imports.Calculator(name)
	if err != nil {
		return imports.Statement{}, out, err
	}

	if sub == nil {
		return st, out, nil
	}
	args, ok := sub.Take("args")
	if !ok {
		return st, out, nil
	}
	m, isMap := args.(*argtree.Mapping)
	if !isMap {
		return imports.Statement{}, out, fmt.Errorf("%w: args must be a mapping, got %s", ErrInvalidCalculatorSpec, kind(args))
	}
	if out.text, err = argtree.Render(m); err != nil {
		return imports.Statement{}, out, fmt.Errorf("calculator args: %w", err)
	}
	if mode, ok := m.Get("mode"); ok {
		if inv, ok := mode.(argtree.Invocation); ok && inv.Function == "PW" {
			out.planeWave = true
		}
	}
	return st, out, nil
}

// kpointsArg renders the synthesized `kpts` argument, or "" without a mesh.
func kpointsArg(ctx context.Context, r *argtree.Reader, mesh *structure.Mesh) (string, error) {
	opts, hasOpts := r.Take("kpoints_options")
	if mesh == nil {
		return "", nil
	}
	if mesh.Offset != [3]float64{} {
		ctxlog.FromContext(ctx).Warn("Ignoring k-point mesh offset; it has no calculator argument.", "offset", mesh.Offset)
	}
	size := mesh.Size
	if !hasOpts {
		return fmt.Sprintf("kpts=(%d,%d,%d)", size[0], size[1], size[2]), nil
	}
	om, ok := opts.(*argtree.Mapping)
	if !ok {
		return "", fmt.Errorf("%w: kpoints_options must be a mapping, got %s", argtree.ErrBadArgument, kind(opts))
	}
	entries := append([]argtree.Entry{{
		Key:   "size",
		Value: argtree.Expr(fmt.Sprintf("(%d, %d, %d)", size[0], size[1], size[2])),
	}}, om.Without("size").Entries()...)
	lit, err := argtree.Literal(argtree.NewMapping(entries...))
	if err != nil {
		return "", fmt.Errorf("kpoints_options: %w", err)
	}
	return "kpts=" + lit, nil
}

func getters(r *argtree.Reader, key string) ([]getter, error) {
	v, ok := r.Take(key)
	if !ok {
		return nil, nil
	}
	seq, ok := v.(argtree.Sequence)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a list, got %s", ErrInvalidGetter, key, kind(v))
	}
	out := make([]getter, 0, len(seq))
	for i, el := range seq {
		switch g := el.(type) {
		case argtree.String:
			if !isIdentifier(string(g)) {
				return nil, fmt.Errorf("%w: %s[%d]: %q is not a method name", ErrInvalidGetter, key, i, g)
			}
			out = append(out, getter{method: string(g)})
		case argtree.Sequence:
			if len(g) != 2 {
				return nil, fmt.Errorf("%w: %s[%d] must be [method, args]", ErrInvalidGetter, key, i)
			}
			name, ok := g[0].(argtree.String)
			if !ok || !isIdentifier(string(name)) {
				return nil, fmt.Errorf("%w: %s[%d] has no method name", ErrInvalidGetter, key, i)
			}
			args, err := argtree.Render(argtree.Positional(g[1]))
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
			}
			out = append(out, getter{method: string(name), args: args})
		default:
			return nil, fmt.Errorf("%w: %s[%d] is %s", ErrInvalidGetter, key, i, kind(el))
		}
	}
	return out, nil
}

func extraImports(r *argtree.Reader) ([]imports.Statement, error) {
	v, ok := r.Take("extra_imports")
	if !ok {
		return nil, nil
	}
	seq, ok := v.(argtree.Sequence)
	if !ok {
		return nil, fmt.Errorf("%w: extra_imports must be a list", ErrBadExtraImport)
	}
	out := make([]imports.Statement, 0, len(seq))
	for i, el := range seq {
		switch e := el.(type) {
		case argtree.String:
			out = append(out, imports.Module(string(e)))
		case argtree.Sequence:
			parts, ok := allStrings(e)
			if !ok {
				return nil, fmt.Errorf("%w: extra_imports[%d] must contain strings", ErrBadExtraImport, i)
			}
			switch len(parts) {
			case 2:
				out = append(out, imports.From(parts[0], parts[1], ""))
			case 3:
				out = append(out, imports.From(parts[0], parts[1], parts[2]))
			default:
				return nil, fmt.Errorf("%w: extra_imports[%d] has %d elements", ErrBadExtraImport, i, len(parts))
			}
		default:
			return nil, fmt.Errorf("%w: extra_imports[%d] is %s", ErrBadExtraImport, i, kind(el))
		}
	}
	return out, nil
}

func lines(r *argtree.Reader, key string) ([]string, error) {
	v, ok := r.Take(key)
	if !ok {
		return nil, nil
	}
	seq, ok := v.(argtree.Sequence)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidLines, key, kind(v))
	}
	out, ok := allStrings(seq)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidLines, key)
	}
	return out, nil
}

// allStrings returns the elements of seq when all of them are strings.
func allStrings(seq argtree.Sequence) ([]string, bool) {
	out := make([]string, len(seq))
	for i, el := range seq {
		s, ok := el.(argtree.String)
		if !ok {
			return nil, false
		}
		out[i] = string(s)
	}
	return out, true
}

func joinArgs(parts ...string) string {
	nonEmpty := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

func kind(v argtree.Value) string {
	switch v.(type) {
	case *argtree.Mapping:
		return "a mapping"
	case argtree.Sequence:
		return "a list"
	case argtree.String:
		return "a string"
	case argtree.Number:
		return "a number"
	case argtree.Bool:
		return "a bool"
	case argtree.Invocation:
		return "a function call"
	case nil, argtree.None:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}
