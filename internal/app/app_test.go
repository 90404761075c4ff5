package app

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/specialistvlad/asegrid/internal/artifact"
	"github.com/specialistvlad/asegrid/internal/config"
	"github.com/specialistvlad/asegrid/internal/exitcode"
	"github.com/specialistvlad/asegrid/internal/hcl"
	"github.com/specialistvlad/asegrid/internal/yamlcfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// safeBuffer is a thread-safe buffer for capturing log output in tests.
type safeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

const jobsHCL = `
job "h2" {
  structure {
    symbols   = ["H", "H"]
    positions = [[0, 0, 0], [0, 0, 0.74]]
  }
  max_attempts = 2
  parameters = {
    calculator = { name = "emt" }
  }
  options {
    code = "sh"
  }
}
`

const jobsYAML = `
name: cu
structure:
  symbols: [Cu]
  positions: [[0, 0, 0]]
  cell: [[0, 1.8, 1.8], [1.8, 0, 1.8], [1.8, 1.8, 0]]
parameters:
  calculator: {name: emt}
  optimizer: {name: BFGS, run_args: {fmax: 0.05}}
`

func setupApp(t *testing.T) (*App, *safeBuffer) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "h2.hcl"), []byte(jobsHCL), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cu.yaml"), []byte(jobsYAML), 0o644))

	cfg, err := NewConfig(Config{
		JobPaths:    []string{dir},
		WorkDir:     filepath.Join(dir, "runs"),
		LogFormat:   "text",
		LogLevel:    "debug",
		WorkerCount: 2,
	})
	require.NoError(t, err)

	logs := &safeBuffer{}
	a := NewApp(logs, cfg, config.NewLoaders(hcl.NewLoader(), yamlcfg.NewLoader()))
	t.Cleanup(func() {
		if os.Getenv("ASEGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})
	return a, logs
}

func TestNewConfig(t *testing.T) {
	t.Parallel()

	valid := Config{JobPaths: []string{"jobs"}, LogFormat: "json", LogLevel: "info", WorkerCount: 1}
	cfg, err := NewConfig(valid)
	require.NoError(t, err)
	assert.Equal(t, "runs", cfg.WorkDir)

	cases := map[string]func(c *Config){
		"no paths":      func(c *Config) { c.JobPaths = nil },
		"no workers":    func(c *Config) { c.WorkerCount = 0 },
		"bad level":     func(c *Config) { c.LogLevel = "loud" },
		"bad format":    func(c *Config) { c.LogFormat = "xml" },
		"negative caps": func(c *Config) { c.MaxAttempts = -1 },
	}
	for name, mutate := range cases {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			c := valid
			mutate(&c)
			_, err := NewConfig(c)
			assert.Error(t, err)
		})
	}
}

func TestNewApp_LoadsJobsFromDirectory(t *testing.T) {
	t.Parallel()

	a, _ := setupApp(t)
	names := make([]string, 0, len(a.Jobs()))
	for _, j := range a.Jobs() {
		names = append(names, j.Name)
	}
	assert.Equal(t, []string{"cu", "h2"}, names)

	_, err := a.Job("missing")
	assert.ErrorContains(t, err, `no job named "missing"`)
}

func TestNewApp_PanicsOnBadJobFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.hcl"), []byte(`job "x" {`), 0o644))
	cfg := &Config{JobPaths: []string{dir}, WorkerCount: 1}
	assert.Panics(t, func() { NewApp(io.Discard, cfg, config.NewLoaders(hcl.NewLoader())) })
}

func TestApp_Generate(t *testing.T) {
	t.Parallel()

	a, _ := setupApp(t)
	dir := t.TempDir()
	out, err := a.Generate(context.Background(), "cu", dir)
	require.NoError(t, err)
	assert.True(t, out.Relax)

	script, err := os.ReadFile(filepath.Join(dir, "aiida_script.py"))
	require.NoError(t, err)
	assert.Equal(t, out.Script, string(script))
	assert.FileExists(t, filepath.Join(dir, "aiida_atoms.json"))
}

func TestApp_Parse(t *testing.T) {
	t.Parallel()

	a, _ := setupApp(t)
	rec, err := a.Parse(context.Background(), "h2", artifact.Memory{
		"results.json": []byte(`{"total_energy": -0.5, "forces": [[0, 0, 0.1], [0, 0, -0.1]]}`),
	})
	require.NoError(t, err)
	assert.Equal(t, -0.5, rec.Parameters["total_energy"])
	assert.Contains(t, rec.Arrays, "forces")

	_, err = a.Parse(context.Background(), "h2", artifact.Memory{})
	assert.Equal(t, exitcode.OutputFiles, exitcode.Of(err))
}

func TestApp_RunExhaustsRetries(t *testing.T) {
	t.Parallel()

	a, _ := setupApp(t)
	// sh cannot run the script, so the attempt leaves an empty log and no
	// results: an SCF failure, retried with damping until the job's limit.
	outcomes, err := a.Run(context.Background(), "h2")
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	out := outcomes[0]
	assert.Equal(t, exitcode.SCFNotComplete, out.Code())
	assert.True(t, out.Exhausted)
	assert.Equal(t, 2, out.Attempts)

	entries, err := os.ReadDir(filepath.Join(a.config.WorkDir, "h2"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "one directory per attempt")
}

func TestApp_HealthAndMetrics(t *testing.T) {
	t.Parallel()

	a, _ := setupApp(t)
	srv := httptest.NewServer(a.healthMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK\n", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "go_goroutines")
}
