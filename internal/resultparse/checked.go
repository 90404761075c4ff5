package resultparse

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/specialistvlad/asegrid/internal/artifact"
	"github.com/specialistvlad/asegrid/internal/ctxlog"
	"github.com/specialistvlad/asegrid/internal/exitcode"
	"github.com/specialistvlad/asegrid/internal/gpawlog"
	"gonum.org/v1/gonum/floats"
)

// Stderr signatures of fatal backend conditions.
const (
	SignatureDataMissing = "Could not find required PAW dataset file"
	SignatureInternal    = "AttributeError"
)

// Checked parses GPAW runs. Unlike Minimal it diagnoses runs that produced
// no results from their log and stderr, and enriches successful results with
// what the log reports for the final step.
type Checked struct{}

func (Checked) Parse(ctx context.Context, set artifact.Set, exp Expected) (*Record, error) {
	logger := ctxlog.FromContext(ctx)
	f := exp.Files

	hasResults, err := artifact.Has(ctx, set, f.Results)
	if err != nil {
		return nil, unexpected(err)
	}
	if hasResults {
		return loadChecked(ctx, set, exp)
	}

	hasLog, err := artifact.Has(ctx, set, f.Log)
	if err != nil {
		return nil, unexpected(err)
	}
	if !hasLog {
		logger.Error("Neither results nor log file were produced.", "results", f.Results, "log", f.Log)
		return nil, exitcode.New(exitcode.Unexpected)
	}
	logger.Error("Results file not found, inspecting log file.", "log", f.Log)
	return nil, diagnose(ctx, set, exp)
}

// diagnose classifies a run that wrote a log but no results.
func diagnose(ctx context.Context, set artifact.Set, exp Expected) *exitcode.Failure {
	logger := ctxlog.FromContext(ctx)

	stderr, err := readStderr(ctx, set, exp.Files.SchedulerStderr)
	if err != nil {
		return unexpected(err)
	}
	for _, line := range strings.Split(stderr, "\n") {
		if strings.Contains(line, SignatureDataMissing) {
			logger.Error("Could not find PAW potentials.")
			return exitcode.Newf(exitcode.BackendDataMissing, "%s", strings.TrimSpace(line))
		}
	}
	for _, line := range strings.Split(stderr, "\n") {
		if strings.Contains(line, SignatureInternal) {
			logger.Error("AttributeError in GPAW.")
			return exitcode.Newf(exitcode.BackendInternal, "%s", strings.TrimSpace(line))
		}
	}

	if !exp.Relax {
		logger.Error("SCF did not complete.")
		return exitcode.New(exitcode.SCFNotComplete)
	}

	log, err := readLog(ctx, set, exp.Files.Log)
	if err == nil && len(log.Completed()) == 0 {
		err = errors.New("no completed step")
	}
	if err != nil {
		logger.Error("First relaxation step not completed.", "error", err)
		return exitcode.New(exitcode.SCFNotComplete)
	}
	fail := exitcode.New(exitcode.RelaxNotComplete)
	fail.Trajectory = log.Trajectory()
	logger.Error("Relaxation did not complete.", "steps", len(fail.Trajectory))
	return fail
}

func readLog(ctx context.Context, set artifact.Set, name string) (*gpawlog.Log, error) {
	rc, err := set.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return gpawlog.Read(rc)
}

func loadChecked(ctx context.Context, set artifact.Set, exp Expected) (*Record, error) {
	logger := ctxlog.FromContext(ctx)
	f := exp.Files
	rec := &Record{}

	log, err := readLog(ctx, set, f.Log)
	if err != nil {
		return nil, unexpected(fmt.Errorf("log %s: %w", f.Log, err))
	}
	final, ok := log.Final()
	if !ok {
		return nil, unexpected(fmt.Errorf("log %s has no completed step", f.Log))
	}

	if exp.Relax {
		rec.Structure, err = readStructure(ctx, set, f.OutputStructure)
		if errors.Is(err, artifact.ErrNotFound) {
			logger.Error("Output structure not found.", "file", f.OutputStructure)
			return nil, exitcode.Newf(exitcode.OutputFiles, "%s", f.OutputStructure)
		}
		if err != nil {
			return nil, unexpected(err)
		}
		rec.Trajectory = log.Trajectory()
	}

	results, err := loadResults(ctx, set, f.Results)
	if err != nil {
		return nil, unexpected(err)
	}
	enrich(results, final)
	if exp.Relax {
		if steps, ok := optimizerSteps(ctx, set, f.OptimizerLog); ok {
			results["optimizer_steps"] = int64(steps)
		}
	}

	fermi, ok := final.FermiEnergy()
	if !ok || math.IsNaN(fermi) || math.IsInf(fermi, 0) {
		logger.Error("Fermi energy is inf or nan.")
		if !ok {
			return nil, exitcode.Newf(exitcode.FermiLevelInvalid, "no Fermi level in %s", f.Log)
		}
		return nil, exitcode.Newf(exitcode.FermiLevelInvalid, "fermi energy %v", fermi)
	}

	stderr, err := readStderr(ctx, set, f.SchedulerStderr)
	if err != nil {
		return nil, unexpected(err)
	}
	rec.Warnings = warnings(stderr)
	rec.Parameters, rec.Arrays = partition(results)
	return rec, nil
}

// enrich adds what the log reports for the final step. Values use the same
// shapes JSON decoding produces so the partition treats both sources alike.
func enrich(results map[string]any, s *gpawlog.Step) {
	results["energy"] = *s.Energy
	if s.FreeEnergy != nil {
		results["free_energy"] = *s.FreeEnergy
	}
	contrib := make(map[string]any, len(s.Contributions))
	for _, c := range s.Contributions {
		contrib[c.Name] = c.Value
	}
	results["energy_contributions"] = contrib
	results["forces"] = rows(s.Forces)
	if m, ok := maxForce(s.Forces); ok {
		results["max_force"] = m
	}
	results["stress"] = nil
	if s.Stress != nil {
		results["stress"] = rows(s.Stress[:])
	}
	results["magmoms"] = nil
	if s.Magmoms != nil {
		results["magmoms"] = list(s.Magmoms)
	}
	results["dipole"] = nil
	if s.Dipole != nil {
		results["dipole"] = list(s.Dipole[:])
	}
	pbc := make([]any, 3)
	for i, p := range s.Structure.PBC {
		pbc[i] = p
	}
	results["pbc"] = pbc
	if e, ok := s.FermiEnergy(); ok {
		results["fermi_energy"] = e
	}
	results["eigenvalues"] = list(s.Eigenvalues)
}

// maxForce is the largest per-atom force norm.
func maxForce(forces [][3]float64) (float64, bool) {
	if len(forces) == 0 {
		return 0, false
	}
	norms := make([]float64, len(forces))
	for i, f := range forces {
		norms[i] = floats.Norm(f[:], 2)
	}
	return floats.Max(norms), true
}

func optimizerSteps(ctx context.Context, set artifact.Set, name string) (int, bool) {
	rc, err := set.Open(ctx, name)
	if err != nil {
		return 0, false
	}
	defer rc.Close()
	steps, err := gpawlog.ReadOptimizer(rc)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Unreadable optimizer log.", "file", name, "error", err)
		return 0, false
	}
	return len(steps), true
}

func list(v []float64) []any {
	out := make([]any, len(v))
	for i, x := range v {
		out[i] = x
	}
	return out
}

func rows(v [][3]float64) []any {
	out := make([]any, len(v))
	for i, r := range v {
		out[i] = list(r[:])
	}
	return out
}
