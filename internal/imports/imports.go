// Package imports resolves the short calculator and optimizer family names
// used in parameter trees to the import statements a generated script needs.
package imports

import (
	"errors"
	"fmt"
	"strings"
)

// Aliases bound by every resolved import, so the script body can refer to
// the backend without knowing which one was chosen.
const (
	CalculatorAlias = "custom_calculator"
	OptimizerAlias  = "custom_optimizer"
)

// DefaultCalculator is the family used when a parameter tree names none.
const DefaultCalculator = "gpaw"

// Namespaces that custom dotted names are resolved under.
const (
	calculatorNamespace = "ase.calculators"
	optimizerNamespace  = "ase.optimize"
)

// ErrUnknownBackend is returned for a name that is neither in a lookup
// table nor a dotted `package.Symbol` path.
var ErrUnknownBackend = errors.New("unknown backend")

// Statement is one import line of a generated script.
type Statement struct {
	// Module is the module imported from (or imported, when Symbol is empty).
	Module string
	Symbol string
	Alias  string
	// Custom is set when the statement came from the dotted-path fallback
	// rather than from a lookup table.
	Custom bool
}

// String renders the statement as script source.
func (s Statement) String() string {
	var b strings.Builder
	if s.Symbol == "" {
		b.WriteString("import " + s.Module)
	} else {
		b.WriteString("from " + s.Module + " import " + s.Symbol)
	}
	if s.Alias != "" && s.Alias != s.Symbol {
		b.WriteString(" as " + s.Alias)
	}
	return b.String()
}

// Module builds a plain `import module` statement.
func Module(name string) Statement {
	return Statement{Module: name}
}

// From builds a `from module import symbol [as alias]` statement.
func From(module, symbol, alias string) Statement {
	return Statement{Module: module, Symbol: symbol, Alias: alias}
}

// calculators maps a lowercase family name to its fully qualified class.
var calculators = map[string]string{
	"gpaw":            "gpaw.GPAW",
	"espresso":        "espresso.espresso",
	"abinit":          "ase.calculators.abinit.Abinit",
	"aims":            "ase.calculators.aims.Aims",
	"ase_qmmm_manyqm": "ase.calculators.ase_qmmm_manyqm.AseQmmmManyqm",
	"castep":          "ase.calculators.castep.Castep",
	"dacapo":          "ase.calculators.dacapo.Dacapo",
	"dftb":            "ase.calculators.dftb.Dftb",
	"eam":             "ase.calculators.eam.EAM",
	"elk":             "ase.calculators.elk.ELK",
	"emt":             "ase.calculators.emt.EMT",
	"exciting":        "ase.calculators.exciting.Exciting",
	"fleur":           "ase.calculators.fleur.FLEUR",
	"gaussian":        "ase.calculators.gaussian.Gaussian",
	"gromacs":         "ase.calculators.gromacs.Gromacs",
	"mopac":           "ase.calculators.mopac.Mopac",
	"morse":           "ase.calculators.morse.MorsePotential",
	"nwchem":          "ase.calculators.nwchem.NWChem",
	"siesta":          "ase.calculators.siesta.Siesta",
	"tip3p":           "ase.calculators.tip3p.TIP3P",
	"turbomole":       "ase.calculators.turbomole.Turbomole",
	"vasp":            "ase.calculators.vasp.Vasp",
}

// optimizers maps a lowercase optimizer family name to its class.
var optimizers = map[string]string{
	"bfgs":                       "ase.optimize.BFGS",
	"bfgslinesearch":             "ase.optimize.BFGSLineSearch",
	"fire":                       "ase.optimize.FIRE",
	"goodoldquasinewton":         "ase.optimize.GoodOldQuasiNewton",
	"hesslbfgs":                  "ase.optimize.HessLBFGS",
	"lbfgs":                      "ase.optimize.LBFGS",
	"lbfgslinesearch":            "ase.optimize.LBFGSLineSearch",
	"linelbfgs":                  "ase.optimize.LineLBFGS",
	"mdmin":                      "ase.optimize.MDMin",
	"ndpoly":                     "ase.optimize.NDPoly",
	"quasinewton":                "ase.optimize.QuasiNewton",
	"scipyfmin":                  "ase.optimize.SciPyFmin",
	"scipyfminbfgs":              "ase.optimize.SciPyFminBFGS",
	"scipyfmincg":                "ase.optimize.SciPyFminCG",
	"scipyfminpowell":            "ase.optimize.SciPyFminPowell",
	"scipygradientlessoptimizer": "ase.optimize.SciPyGradientlessOptimizer",
}

// Calculator resolves a calculator family. An empty name resolves to
// DefaultCalculator.
func Calculator(name string) (Statement, error) {
	if name == "" {
		name = DefaultCalculator
	}
	st, err := resolve(name, calculators, calculatorNamespace)
	if err != nil {
		return Statement{}, fmt.Errorf("calculator %q: %w", name, err)
	}
	st.Alias = CalculatorAlias
	return st, nil
}

// Optimizer resolves an optimizer family.
func Optimizer(name string) (Statement, error) {
	st, err := resolve(name, optimizers, optimizerNamespace)
	if err != nil {
		return Statement{}, fmt.Errorf("optimizer %q: %w", name, err)
	}
	st.Alias = OptimizerAlias
	return st, nil
}

func resolve(name string, table map[string]string, namespace string) (Statement, error) {
	if qualified, ok := table[strings.ToLower(name)]; ok {
		module, symbol := splitLast(qualified)
		return Statement{Module: module, Symbol: symbol}, nil
	}
	module, symbol := splitLast(name)
	if module == "" || symbol == "" {
		return Statement{}, ErrUnknownBackend
	}
	return Statement{Module: namespace + "." + module, Symbol: symbol, Custom: true}, nil
}

func splitLast(path string) (string, string) {
	i := strings.LastIndex(path, ".")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}
