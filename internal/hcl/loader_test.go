package hcl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/specialistvlad/asegrid/internal/argtree"
	"github.com/specialistvlad/asegrid/internal/config"
	"github.com/specialistvlad/asegrid/internal/structure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Load(t *testing.T) {
	t.Parallel()

	jobs, err := NewLoader().Load(context.Background(), filepath.Join("testdata", "batio3.hcl"))
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	relax := jobs[0]
	assert.Equal(t, "batio3_relax", relax.Name)
	assert.Equal(t, "BaTiO3", relax.Structure.Formula())
	assert.Equal(t, [3]bool{true, true, true}, relax.Structure.PBC)
	assert.Equal(t, &structure.Mesh{Size: [3]int{2, 2, 2}}, relax.Kpoints)
	assert.Equal(t, 3, relax.MaxAttempts)
	assert.Equal(t, config.Options{
		Code:               "gpaw",
		WriteCheckpoint:    true,
		CheckpointInterval: 5,
		ParserName:         config.ParserChecked,
		MaxWallclock:       30 * time.Minute,
	}, relax.Options)
	assert.Equal(t, config.DefaultFiles(), relax.Files)

	assert.Equal(t, []string{"calculator", "optimizer", "atoms_getters"}, relax.Parameters.Keys())

	args, ok := relax.Parameters.Lookup("calculator", "args")
	require.True(t, ok)
	rendered, err := argtree.Render(args)
	require.NoError(t, err)
	assert.Equal(t,
		`mode=PW(ecut=300), convergence={"energy": 1e-09}, occupations={"name": "fermi-dirac", "width": 0.05}, txt=None`,
		rendered)

	maxiter, ok := relax.Parameters.Lookup("optimizer", "maxiter")
	require.True(t, ok)
	assert.Equal(t, argtree.Int(50), maxiter)

	getters, ok := relax.Parameters.Get("atoms_getters")
	require.True(t, ok)
	assert.Equal(t, argtree.Sequence{
		argtree.String("temperature"),
		argtree.Sequence{argtree.String("forces"), argtree.NewMapping(argtree.Entry{Key: "apply_constraint", Value: argtree.Bool(false)})},
	}, getters)

	cmdline, ok := relax.Settings.Get("CMDLINE")
	require.True(t, ok)
	assert.Equal(t, argtree.Sequence{argtree.String("python")}, cmdline)

	single := jobs[1]
	assert.Equal(t, []string{"H", "H"}, single.Structure.Symbols)
	assert.Equal(t, 0, single.Parameters.Len())
	assert.Equal(t, config.DefaultOptions(), single.Options)
	assert.Nil(t, single.Kpoints)
}

func TestLoader_FloatLiteralKeepsDecimalPoint(t *testing.T) {
	t.Parallel()

	path := writeJob(t, `
job "x" {
  structure {
    symbols   = ["H"]
    positions = [[0, 0, 0]]
  }
  parameters = {
    calculator = { args = { h = 0.2, ecut = 300.0, nbands = -8 } }
  }
}`)

	jobs, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)
	args, _ := jobs[0].Parameters.Lookup("calculator", "args")
	out, err := argtree.Render(args)
	require.NoError(t, err)
	assert.Equal(t, "h=0.2, ecut=300.0, nbands=-8", out)
}

func TestLoader_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"syntax error": `job "x" {`,
		"parameters not an object": `
job "x" {
  structure {
    symbols   = ["H"]
    positions = [[0, 0, 0]]
  }
  parameters = ["nope"]
}`,
		"malformed function marker": `
job "x" {
  structure {
    symbols   = ["H"]
    positions = [[0, 0, 0]]
  }
  parameters = { calculator = { args = { mode = { "@function" = 3 } } } }
}`,
		"no structure": `job "x" {}`,
		"both structure forms": `
job "x" {
  structure_file = "a.json"
  structure {
    symbols   = ["H"]
    positions = [[0, 0, 0]]
  }
}`,
	}

	for name, src := range cases {
		src := src
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := NewLoader().Load(context.Background(), writeJob(t, src))
			assert.Error(t, err)
		})
	}
}

func writeJob(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}
