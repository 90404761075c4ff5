package scriptgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/specialistvlad/asegrid/internal/imports"
)

func quote(s string) string {
	return strconv.Quote(s)
}

// emit writes the script body in its fixed order.
func emit(p *plan, in *Input) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}
	blank := func() { b.WriteByte('\n') }

	seen := make(map[string]bool, len(p.imports))
	for _, st := range p.imports {
		s := st.String()
		if seen[s] {
			continue
		}
		seen[s] = true
		line("%s", s)
	}
	blank()

	if len(p.preLines) > 0 {
		for _, l := range p.preLines {
			line("%s", l)
		}
		blank()
	}

	line("atoms = ase.io.read(%s)", quote(in.Files.InputStructure))
	blank()
	line("calculator = %s(%s)", imports.CalculatorAlias, p.calcArgs)
	line("atoms.calc = calculator")
	blank()

	if p.relax {
		if in.Options.WriteCheckpoint && in.Options.CheckpointInterval > 0 {
			line("calculator.attach(calculator.write, %d, %s, mode=\"all\")",
				in.Options.CheckpointInterval, quote(in.Files.Checkpoint))
		}
		line("optimizer = %s(%s)", imports.OptimizerAlias, p.optArgs)
		line("optimizer.run(%s)", p.optRunArgs)
		blank()
	}

	line("results = {}")
	for _, g := range p.atomsGet {
		line("results[%s] = atoms.get_%s(%s)", quote(g.method), g.method, g.args)
	}
	for _, g := range p.calcGet {
		line("results[%s] = calculator.get_%s(%s)", quote(g.method), g.method, g.args)
	}
	blank()

	line("for key, value in results.items():")
	line("    if isinstance(value, (numpy.matrix, numpy.ndarray)):")
	line("        results[key] = value.tolist()")
	line("    elif isinstance(value, numpy.generic):")
	line("        results[key] = value.item()")
	blank()

	if len(p.postLines) > 0 {
		for _, l := range p.postLines {
			line("%s", l)
		}
		blank()
	}

	opener := "open"
	if in.Options.WithMPI {
		opener = "paropen"
	}
	line("with %s(%s, \"w\") as handle:", opener, quote(in.Files.Results))
	line("    json.dump(results, handle)")

	if p.relax {
		line("atoms.write(%s)", quote(in.Files.OutputStructure))
	}
	if in.Options.WriteCheckpoint {
		line("calculator.write(%s, mode=\"all\")", quote(in.Files.Checkpoint))
	}
	return b.String()
}
