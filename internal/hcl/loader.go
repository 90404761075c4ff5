package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/asegrid/internal/config"
	"github.com/specialistvlad/asegrid/internal/ctxlog"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL job loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Extensions implements config.Loader.
func (l *Loader) Extensions() []string {
	return []string{".hcl"}
}

// fileRoot is the top-level structure of a job file.
type fileRoot struct {
	Jobs   []*jobBlock `hcl:"job,block"`
	Remain hcl.Body    `hcl:",remain"`
}

type jobBlock struct {
	Name          string          `hcl:"name,label"`
	StructureFile *string         `hcl:"structure_file,optional"`
	Structure     *structureBlock `hcl:"structure,block"`
	Kpoints       []int           `hcl:"kpoints,optional"`
	KpointsOffset []float64       `hcl:"kpoints_offset,optional"`
	MaxAttempts   *int            `hcl:"max_attempts,optional"`
	Parameters    hcl.Expression  `hcl:"parameters,optional"`
	Settings      hcl.Expression  `hcl:"settings,optional"`
	Options       *optionsBlock   `hcl:"options,block"`
	Files         *filesBlock     `hcl:"files,block"`
}

type structureBlock struct {
	Symbols   []string    `hcl:"symbols"`
	Positions [][]float64 `hcl:"positions"`
	Cell      [][]float64 `hcl:"cell,optional"`
	PBC       []bool      `hcl:"pbc,optional"`
}

type optionsBlock struct {
	Code                *string `hcl:"code,optional"`
	WithMPI             *bool   `hcl:"with_mpi,optional"`
	WriteCheckpoint     *bool   `hcl:"write_checkpoint,optional"`
	CheckpointInterval  *int    `hcl:"checkpoint_interval,optional"`
	Parser              *string `hcl:"parser,optional"`
	MaxWallclockSeconds *int    `hcl:"max_wallclock_seconds,optional"`
}

type filesBlock struct {
	Script          *string `hcl:"script,optional"`
	Results         *string `hcl:"results,optional"`
	Log             *string `hcl:"log,optional"`
	InputStructure  *string `hcl:"input_structure,optional"`
	OutputStructure *string `hcl:"output_structure,optional"`
	OptimizerLog    *string `hcl:"optimizer_log,optional"`
	Checkpoint      *string `hcl:"checkpoint,optional"`
}

// Load parses each file and translates its job blocks into the
// format-agnostic model.
func (l *Loader) Load(ctx context.Context, paths ...string) ([]*config.Job, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	parser := hclparse.NewParser()
	var jobs []*config.Job

	for _, file := range paths {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		tr := &translator{src: hclFile.Bytes}
		for _, block := range root.Jobs {
			job, err := tr.job(block, file)
			if err != nil {
				return nil, fmt.Errorf("%s: job %q: %w", file, block.Name, err)
			}
			if err := job.Resolve(); err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			logger.Debug("Loaded job.", "job", job.Name, "file", file, "atoms", job.Structure.Len())
			jobs = append(jobs, job)
		}
	}

	logger.Debug("HCL loading complete.", "jobs", len(jobs))
	return jobs, nil
}
