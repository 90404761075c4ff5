package gpawlog

import (
	"math"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFixture(t *testing.T, name string) *Log {
	t.Helper()
	f, err := os.Open("testdata/" + name)
	require.NoError(t, err)
	defer f.Close()
	l, err := Read(f)
	require.NoError(t, err)
	return l
}

func TestRead_Relaxation(t *testing.T) {
	t.Parallel()

	l := readFixture(t, "relax.txt")
	require.Len(t, l.Steps, 3)
	assert.Len(t, l.Completed(), 2, "the last step never finished its SCF cycle")
	assert.False(t, l.Steps[2].Converged())

	first := l.Steps[0]
	assert.Equal(t, []string{"O", "H", "H"}, first.Structure.Symbols)
	assert.Equal(t, [3]float64{3, 3.763239, 2.522369}, first.Structure.Positions[1])
	assert.Equal(t, [3]float64{6, 0, 0}, first.Structure.Cell[0])
	assert.Equal(t, [3]bool{}, first.Structure.PBC)
	require.NotNil(t, first.Energy)
	assert.InDelta(t, -14.221467, *first.Energy, 1e-9)
	require.Len(t, first.Contributions, 6)
	assert.Equal(t, Contribution{Name: "Entropy (-ST)", Value: 0}, first.Contributions[4])
	assert.Equal(t, []float64{-3.12345}, first.FermiLevels)
	assert.Equal(t, []float64{-25.12345, -13.02, -9.11, -7.05, 0.9}, first.Eigenvalues)
	assert.Equal(t, &[3]float64{0, 0, -0.361427}, first.Dipole)
	require.Len(t, first.Forces, 3)
	assert.Equal(t, [3]float64{0, 0.1122, -0.22655}, first.Forces[1])

	// The cell is printed once and carried to later steps.
	second := l.Steps[1]
	assert.Equal(t, first.Structure.Cell, second.Structure.Cell)
	assert.InDelta(t, -14.2301, *second.Energy, 1e-9)
	assert.Nil(t, second.Eigenvalues)

	final, ok := l.Final()
	require.True(t, ok)
	assert.Same(t, second, final)

	traj := l.Trajectory()
	require.Len(t, traj, 2)
	assert.Equal(t, 3.12, traj[1].Positions[0][2])
}

func TestRead_PeriodicMagnetic(t *testing.T) {
	t.Parallel()

	l := readFixture(t, "bulk.txt")
	step, ok := l.Final()
	require.True(t, ok)

	assert.Equal(t, [3]bool{true, true, true}, step.Structure.PBC)
	assert.Equal(t, [3]float64{-1.435, 1.435, 1.435}, step.Structure.Cell[0])
	assert.InDelta(t, -8.095, *step.Energy, 1e-9, "extrapolated energy wins")
	assert.InDelta(t, -8.12, *step.FreeEnergy, 1e-9)

	e, ok := step.FermiEnergy()
	require.True(t, ok)
	assert.True(t, math.IsInf(e, 1))

	require.NotNil(t, step.Stress)
	assert.Equal(t, 0.012, step.Stress[2][2])
	assert.Equal(t, []float64{2.213451}, step.Magmoms)
	require.NotNil(t, step.TotalMagmom)
	assert.Equal(t, 2.31, *step.TotalMagmom)
	assert.Equal(t, []float64{-5, 2.5}, step.Eigenvalues, "only the first k-point is kept")
	assert.Equal(t, [][3]float64{{0, 0, 0}}, step.Forces)
}

func TestRead_FreeEnergyOnly(t *testing.T) {
	t.Parallel()

	log := `
Positions:
   0 H      0.000000    0.000000    0.000000

Energy contributions relative to reference atoms: (reference = -12.0)

Kinetic:   +1.000000
--------------------------
Free energy:   -1.500000
`
	l, err := Read(strings.NewReader(log))
	require.NoError(t, err)
	step, ok := l.Final()
	require.True(t, ok)
	assert.Equal(t, -1.5, *step.Energy)
	_, ok = step.FermiEnergy()
	assert.False(t, ok)
}

func TestRead_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		log     string
		wantErr error
		msg     string
	}{
		"empty": {
			log:     "",
			wantErr: ErrNoSteps,
		},
		"no positions": {
			log:     "Free energy: -1.0\nFermi level: 0.1\n",
			wantErr: ErrNoSteps,
		},
		"short position row": {
			log: "Positions:\n   0 H 0.0 0.0\n",
			msg: "short position row",
		},
		"bad force": {
			log: "Positions:\n   0 H 0 0 0\n\nForces in eV/Ang:\n  0 H  x 0 0\n",
			msg: "force row",
		},
		"truncated cell": {
			log: "Positions:\n   0 H 0 0 0\n\nUnit cell:\n  1. axis:  yes 1 0 0 8 0.2\n",
			msg: "unit cell block ends",
		},
	}
	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Read(strings.NewReader(tc.log))
			require.Error(t, err)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
			if tc.msg != "" {
				assert.ErrorContains(t, err, tc.msg)
			}
		})
	}
}

func TestReadOptimizer(t *testing.T) {
	t.Parallel()

	f, err := os.Open("testdata/optimizer.log")
	require.NoError(t, err)
	defer f.Close()

	steps, err := ReadOptimizer(f)
	require.NoError(t, err)
	assert.Equal(t, []OptimizerStep{
		{Optimizer: "BFGS", Step: 0, Energy: -14.221467, Fmax: 0.4531},
		{Optimizer: "BFGS", Step: 1, Energy: -14.2301, Fmax: 0.01},
	}, steps)

	_, err = ReadOptimizer(strings.NewReader("BFGS:    0 12:00:02   oops   0.1\n"))
	assert.ErrorContains(t, err, "energy")
}
