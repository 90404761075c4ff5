package resultparse

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/asegrid/internal/artifact"
	"github.com/specialistvlad/asegrid/internal/config"
	"github.com/specialistvlad/asegrid/internal/exitcode"
	"github.com/specialistvlad/asegrid/internal/structure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var files = config.DefaultFiles()

// step renders one GPAW log step for a hydrogen molecule. An empty energy
// leaves the SCF cycle unfinished.
func step(z float64, energy, fermi string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Positions:\n   0 H      0.000000    0.000000    0.000000\n   1 H      0.000000    0.000000    %f\n\n", z)
	b.WriteString("Unit cell:\n           periodic     x           y           z      points  spacing\n")
	b.WriteString("  1. axis:    no     5.000000    0.000000    0.000000    28     0.1786\n")
	b.WriteString("  2. axis:    no     0.000000    5.000000    0.000000    28     0.1786\n")
	b.WriteString("  3. axis:    no     0.000000    0.000000    5.000000    28     0.1786\n\n")
	b.WriteString("iter:   1 12:00:01                 -6.000000           14\n\n")
	if energy == "" {
		return b.String()
	}
	b.WriteString("Energy contributions relative to reference atoms: (reference = -30.0)\n\n")
	b.WriteString("Kinetic:        +5.000000\nXC:             -3.000000\n--------------------------\n")
	fmt.Fprintf(&b, "Free energy:    %s\nExtrapolated:   %s\n\n", energy, energy)
	if fermi != "" {
		fmt.Fprintf(&b, "Fermi level: %s\n\n", fermi)
	}
	b.WriteString(" Band  Eigenvalues  Occupancy\n    0    -10.00000    2.00000\n    1      2.50000    0.00000\n\n")
	b.WriteString("Forces in eV/Ang:\n  0 H     0.00000    0.00000   -3.00000\n  1 H     0.00000    0.00000    4.00000\n\n")
	return b.String()
}

func h2(t *testing.T, z float64) []byte {
	t.Helper()
	data, err := structure.MarshalASE(&structure.Structure{
		Symbols:   []string{"H", "H"},
		Positions: [][3]float64{{}, {0, 0, z}},
		Cell:      [3][3]float64{{5, 0, 0}, {0, 5, 0}, {0, 0, 5}},
	})
	require.NoError(t, err)
	return data
}

func failureCode(t *testing.T, err error) exitcode.Code {
	t.Helper()
	require.Error(t, err)
	f, ok := exitcode.As(err)
	require.True(t, ok, "want a classification, got %v", err)
	return f.Code
}

func TestMinimal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("missing results", func(t *testing.T) {
		t.Parallel()
		rec, err := Minimal{}.Parse(ctx, artifact.Memory{files.Log: []byte("log")}, Expected{Files: files})
		assert.Nil(t, rec)
		assert.Equal(t, exitcode.OutputFiles, failureCode(t, err))
	})

	t.Run("partition", func(t *testing.T) {
		t.Parallel()
		set := artifact.Memory{
			files.Results: []byte(`{"energy": -3.1, "forces": [[0, 0, 0]], "info": {"k": [1, 2]}, "name": "H2"}`),
		}
		rec, err := Minimal{}.Parse(ctx, set, Expected{Files: files})
		require.NoError(t, err)

		assert.Equal(t, []string{"energy", "info", "name"}, rec.ParameterNames())
		assert.Equal(t, []string{"forces"}, rec.ArrayNames())
		assert.NotContains(t, rec.Parameters, "forces")
		assert.NotContains(t, rec.Arrays, "energy")
		assert.Equal(t, map[string]any{"k": []any{int64(1), int64(2)}}, rec.Parameters["info"], "nested mappings are not partitioned")
		assert.Nil(t, rec.Structure)
		assert.Nil(t, rec.Warnings)
	})

	t.Run("structure and warnings", func(t *testing.T) {
		t.Parallel()
		set := artifact.Memory{
			files.Results:         []byte(`{"energy": -6.5}`),
			files.OutputStructure: h2(t, 0.74),
			files.SchedulerStderr: []byte("UserWarning: something\n"),
		}
		rec, err := Minimal{}.Parse(ctx, set, Expected{Files: files})
		require.NoError(t, err)
		require.NotNil(t, rec.Structure)
		assert.Equal(t, 0.74, rec.Structure.Positions[1][2])
		assert.Equal(t, []string{"UserWarning: something\n"}, rec.Warnings)
	})

	t.Run("non-finite and integral values", func(t *testing.T) {
		t.Parallel()
		set := artifact.Memory{
			files.Results: []byte(`{"energy": -3.1, "magmom": NaN, "natoms": 2, "fermi_level": -Infinity, "charges": [Infinity, 0.5]}`),
		}
		rec, err := Minimal{}.Parse(ctx, set, Expected{Files: files})
		require.NoError(t, err)

		assert.Equal(t, -3.1, rec.Parameters["energy"])
		assert.Equal(t, int64(2), rec.Parameters["natoms"])
		assert.True(t, math.IsNaN(rec.Parameters["magmom"].(float64)))
		assert.True(t, math.IsInf(rec.Parameters["fermi_level"].(float64), -1))

		charges, err := rec.Arrays["charges"].Vector()
		require.NoError(t, err)
		assert.True(t, math.IsInf(charges[0], 1))
		assert.Equal(t, 0.5, charges[1])
	})

	t.Run("malformed results", func(t *testing.T) {
		t.Parallel()
		_, err := Minimal{}.Parse(ctx, artifact.Memory{files.Results: []byte(`[1, 2]`)}, Expected{Files: files})
		assert.Equal(t, exitcode.Unexpected, failureCode(t, err))
	})
}

func TestChecked_Diagnosis(t *testing.T) {
	t.Parallel()

	threeSteps := step(0.80, "-6.1", "-4.0") + step(0.76, "-6.3", "-4.1") + step(0.74, "-6.4", "-4.2") + step(0.73, "", "")

	cases := map[string]struct {
		set       artifact.Memory
		relax     bool
		want      exitcode.Code
		wantSteps int
	}{
		"nothing produced": {
			set:  artifact.Memory{},
			want: exitcode.Unexpected,
		},
		"missing dataset": {
			set: artifact.Memory{
				files.Log:             []byte(threeSteps),
				files.SchedulerStderr: []byte("Traceback\nRuntimeError: Could not find required PAW dataset file \"H.LDA\".\n"),
			},
			relax: true,
			want:  exitcode.BackendDataMissing,
		},
		"attribute error": {
			set: artifact.Memory{
				files.Log:             []byte(threeSteps),
				files.SchedulerStderr: []byte("AttributeError: 'NoneType' object has no attribute 'x'\n"),
			},
			want: exitcode.BackendInternal,
		},
		"single point": {
			set:  artifact.Memory{files.Log: []byte(threeSteps)},
			want: exitcode.SCFNotComplete,
		},
		"relaxation cut short": {
			set:       artifact.Memory{files.Log: []byte(threeSteps)},
			relax:     true,
			want:      exitcode.RelaxNotComplete,
			wantSteps: 3,
		},
		"first step unfinished": {
			set:   artifact.Memory{files.Log: []byte(step(0.8, "", ""))},
			relax: true,
			want:  exitcode.SCFNotComplete,
		},
		"unreadable log": {
			set:   artifact.Memory{files.Log: []byte("GPAW crashed before printing anything\n")},
			relax: true,
			want:  exitcode.SCFNotComplete,
		},
	}
	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			rec, err := Checked{}.Parse(context.Background(), tc.set, Expected{Files: files, Relax: tc.relax})
			assert.Nil(t, rec)
			assert.Equal(t, tc.want, failureCode(t, err))

			f, _ := exitcode.As(err)
			assert.Len(t, f.Trajectory, tc.wantSteps)
			if tc.wantSteps > 0 {
				assert.Equal(t, 0.74, f.LastStep().Positions[1][2])
			}
		})
	}
}

func TestChecked_Success(t *testing.T) {
	t.Parallel()

	set := artifact.Memory{
		files.Results:         []byte(`{"total_energy": -6.4, "calc_info": "gpaw"}`),
		files.Log:             []byte(step(0.80, "-6.1", "-4.0") + step(0.74, "-6.4", "-4.2")),
		files.OutputStructure: h2(t, 0.74),
		files.OptimizerLog:    []byte("      Step     Time          Energy         fmax\nBFGS:    0 12:00:02       -6.100000        5.0000\nBFGS:    1 12:00:03       -6.400000        0.0400\n"),
	}
	rec, err := Checked{}.Parse(context.Background(), set, Expected{Files: files, Relax: true})
	require.NoError(t, err)

	require.NotNil(t, rec.Structure)
	require.Len(t, rec.Trajectory, 2)
	assert.Equal(t, 0.8, rec.Trajectory[0].Positions[1][2])

	wantParams := map[string]any{
		"total_energy":         -6.4,
		"calc_info":            "gpaw",
		"energy":               -6.4,
		"free_energy":          -6.4,
		"energy_contributions": map[string]any{"Kinetic": 5.0, "XC": -3.0},
		"max_force":            4.0,
		"stress":               nil,
		"magmoms":              nil,
		"dipole":               nil,
		"fermi_energy":         -4.2,
		"optimizer_steps":      int64(2),
	}
	if diff := cmp.Diff(wantParams, rec.Parameters); diff != "" {
		t.Errorf("parameters mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"eigenvalues", "forces", "pbc"}, rec.ArrayNames())

	forces, err := rec.Arrays["forces"].Dense()
	require.NoError(t, err)
	r, c := forces.Dims()
	assert.Equal(t, []int{2, 3}, []int{r, c})
	assert.Equal(t, 4.0, forces.At(1, 2))

	eig, err := rec.Arrays["eigenvalues"].Vector()
	require.NoError(t, err)
	assert.Equal(t, []float64{-10, 2.5}, eig)
	assert.Equal(t, []any{false, false, false}, rec.Arrays["pbc"].Values)
}

func TestChecked_FermiGuard(t *testing.T) {
	t.Parallel()

	for _, fermi := range []string{"inf", "nan", ""} {
		fermi := fermi
		t.Run("fermi="+fermi, func(t *testing.T) {
			t.Parallel()
			set := artifact.Memory{
				files.Results: []byte(`{"total_energy": -6.4}`),
				files.Log:     []byte(step(0.74, "-6.4", fermi)),
			}
			rec, err := Checked{}.Parse(context.Background(), set, Expected{Files: files})
			assert.Nil(t, rec)
			assert.Equal(t, exitcode.FermiLevelInvalid, failureCode(t, err))
		})
	}
}

func TestChecked_NonFiniteResults(t *testing.T) {
	t.Parallel()

	t.Run("infinite Fermi level in both files", func(t *testing.T) {
		t.Parallel()
		set := artifact.Memory{
			files.Results: []byte(`{"total_energy": -6.4, "fermi_level": Infinity}`),
			files.Log:     []byte(step(0.74, "-6.4", "inf")),
		}
		rec, err := Checked{}.Parse(context.Background(), set, Expected{Files: files})
		assert.Nil(t, rec)
		assert.Equal(t, exitcode.FermiLevelInvalid, failureCode(t, err))
	})

	t.Run("NaN getter with a finite Fermi level", func(t *testing.T) {
		t.Parallel()
		set := artifact.Memory{
			files.Results: []byte(`{"total_energy": -6.4, "temperature": NaN}`),
			files.Log:     []byte(step(0.74, "-6.4", "-4.2")),
		}
		rec, err := Checked{}.Parse(context.Background(), set, Expected{Files: files})
		require.NoError(t, err)
		assert.True(t, math.IsNaN(rec.Parameters["temperature"].(float64)))
		assert.Equal(t, -4.2, rec.Parameters["fermi_energy"])
	})
}

func TestChecked_RelaxWithoutOutputStructure(t *testing.T) {
	t.Parallel()

	set := artifact.Memory{
		files.Results: []byte(`{"total_energy": -6.4}`),
		files.Log:     []byte(step(0.74, "-6.4", "-4.2")),
	}
	_, err := Checked{}.Parse(context.Background(), set, Expected{Files: files, Relax: true})
	assert.Equal(t, exitcode.OutputFiles, failureCode(t, err))
}

func TestArray(t *testing.T) {
	t.Parallel()

	a := Array{Values: []any{[]any{1.0, 2.0}, []any{3.0, 4.0}, []any{5.0, 6.0}}}
	assert.Equal(t, []int{3, 2}, a.Shape())
	m, err := a.Dense()
	require.NoError(t, err)
	assert.Equal(t, 6.0, m.At(2, 1))

	_, err = a.Vector()
	assert.ErrorIs(t, err, ErrNotNumeric)

	ragged := Array{Values: []any{[]any{1.0}, []any{1.0, 2.0}}}
	_, err = ragged.Dense()
	assert.ErrorIs(t, err, ErrNotNumeric)

	ints, err := Array{Values: []any{int64(1), 2.5}}.Vector()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2.5}, ints)

	_, err = Array{Values: []any{"a"}}.Vector()
	assert.ErrorIs(t, err, ErrNotNumeric)
	assert.Equal(t, []int{0}, Array{Values: []any{}}.Shape())
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := DefaultRegistry()
	assert.Equal(t, []string{config.ParserMinimal, config.ParserChecked}, r.Names())

	p, err := r.Get(config.ParserChecked)
	require.NoError(t, err)
	assert.IsType(t, Checked{}, p)

	_, err = r.Get("ase.nope")
	assert.ErrorContains(t, err, "ase.nope")

	assert.Panics(t, func() { r.Register(config.ParserMinimal, Minimal{}) })
}
