// Package yamlcfg provides the YAML implementation of config.Loader. JSON
// files are read by the same loader, since JSON is a subset of YAML.
package yamlcfg

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/specialistvlad/asegrid/internal/argtree"
	"github.com/specialistvlad/asegrid/internal/config"
	"github.com/specialistvlad/asegrid/internal/ctxlog"
	"gopkg.in/yaml.v3"
)

// Loader reads jobs from YAML or JSON files.
type Loader struct{}

// NewLoader creates a new YAML job loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Extensions implements config.Loader.
func (l *Loader) Extensions() []string {
	return []string{".yaml", ".yml", ".json"}
}

// fileRoot accepts either a list of jobs or a single job at the top level.
type fileRoot struct {
	Jobs   []*jobDoc `yaml:"jobs"`
	jobDoc `yaml:",inline"`
}

type jobDoc struct {
	Name          string         `yaml:"name"`
	StructureFile string         `yaml:"structure_file"`
	Structure     *structureDoc  `yaml:"structure"`
	Kpoints       []int          `yaml:"kpoints"`
	KpointsOffset []float64      `yaml:"kpoints_offset"`
	MaxAttempts   *int           `yaml:"max_attempts"`
	Parameters    yaml.Node      `yaml:"parameters"`
	Settings      yaml.Node      `yaml:"settings"`
	Options       *optionsDoc    `yaml:"options"`
	Files         map[string]any `yaml:"files"`
}

type structureDoc struct {
	Symbols   []string    `yaml:"symbols"`
	Positions [][]float64 `yaml:"positions"`
	Cell      [][]float64 `yaml:"cell"`
	PBC       []bool      `yaml:"pbc"`
}

type optionsDoc struct {
	Code                *string `yaml:"code"`
	WithMPI             *bool   `yaml:"with_mpi"`
	WriteCheckpoint     *bool   `yaml:"write_checkpoint"`
	CheckpointInterval  *int    `yaml:"checkpoint_interval"`
	Parser              *string `yaml:"parser"`
	MaxWallclockSeconds *int    `yaml:"max_wallclock_seconds"`
}

// Load reads every job defined in paths.
func (l *Loader) Load(ctx context.Context, paths ...string) ([]*config.Job, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("YAML loader started.", "path_count", len(paths))

	var jobs []*config.Job
	for _, file := range paths {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}

		var root fileRoot
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", file, err)
		}

		docs := root.Jobs
		if len(docs) == 0 {
			docs = []*jobDoc{&root.jobDoc}
		}
		for i, doc := range docs {
			job, err := translate(doc, file)
			if err != nil {
				return nil, fmt.Errorf("%s: job %d (%q): %w", file, i, doc.Name, err)
			}
			if err := job.Resolve(); err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			logger.Debug("Loaded job.", "job", job.Name, "file", file, "atoms", job.Structure.Len())
			jobs = append(jobs, job)
		}
	}

	logger.Debug("YAML loading complete.", "jobs", len(jobs))
	return jobs, nil
}

func translate(d *jobDoc, file string) (*config.Job, error) {
	job := config.NewJob(d.Name)
	job.Source = file
	job.StructureFile = d.StructureFile

	if d.Structure != nil {
		if job.StructureFile != "" {
			return nil, fmt.Errorf("%w: both structure_file and structure are set", config.ErrInvalidJob)
		}
		s, err := config.StructureFrom(d.Structure.Symbols, d.Structure.Positions, d.Structure.Cell, d.Structure.PBC)
		if err != nil {
			return nil, err
		}
		job.Structure = s
	}

	mesh, err := config.MeshFrom(d.Kpoints, d.KpointsOffset)
	if err != nil {
		return nil, err
	}
	job.Kpoints = mesh

	if d.MaxAttempts != nil {
		job.MaxAttempts = *d.MaxAttempts
	}

	if job.Parameters, err = mapping(&d.Parameters, "parameters"); err != nil {
		return nil, err
	}
	if job.Settings, err = mapping(&d.Settings, "settings"); err != nil {
		return nil, err
	}

	if o := d.Options; o != nil {
		setIf(&job.Options.Code, o.Code)
		setIf(&job.Options.WithMPI, o.WithMPI)
		setIf(&job.Options.WriteCheckpoint, o.WriteCheckpoint)
		setIf(&job.Options.CheckpointInterval, o.CheckpointInterval)
		setIf(&job.Options.ParserName, o.Parser)
		if o.MaxWallclockSeconds != nil {
			job.Options.MaxWallclock = time.Duration(*o.MaxWallclockSeconds) * time.Second
		}
	}

	if err := overlayFiles(&job.Files, d.Files); err != nil {
		return nil, err
	}
	return job, nil
}

var fileKeys = map[string]func(*config.Files) *string{
	"script":           func(f *config.Files) *string { return &f.Script },
	"results":          func(f *config.Files) *string { return &f.Results },
	"log":              func(f *config.Files) *string { return &f.Log },
	"input_structure":  func(f *config.Files) *string { return &f.InputStructure },
	"output_structure": func(f *config.Files) *string { return &f.OutputStructure },
	"optimizer_log":    func(f *config.Files) *string { return &f.OptimizerLog },
	"checkpoint":       func(f *config.Files) *string { return &f.Checkpoint },
}

func overlayFiles(files *config.Files, raw map[string]any) error {
	for k, v := range raw {
		field, ok := fileKeys[k]
		if !ok {
			return fmt.Errorf("%w: unknown files key %q", config.ErrInvalidJob, k)
		}
		s, ok := v.(string)
		if !ok || s == "" {
			return fmt.Errorf("%w: files.%s must be a non-empty string", config.ErrInvalidJob, k)
		}
		*field(files) = s
	}
	return nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func mapping(n *yaml.Node, attr string) (*argtree.Mapping, error) {
	if n.Kind == 0 {
		return argtree.NewMapping(), nil
	}
	v, err := value(n)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", attr, err)
	}
	switch m := v.(type) {
	case argtree.None:
		return argtree.NewMapping(), nil
	case *argtree.Mapping:
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %s must be a mapping, got %T", config.ErrInvalidJob, attr, v)
	}
}
