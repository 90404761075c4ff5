package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/specialistvlad/asegrid/internal/argtree"
	"github.com/specialistvlad/asegrid/internal/structure"
)

// DefaultMaxAttempts is the attempt ceiling used when a job sets none.
const DefaultMaxAttempts = 5

// ErrInvalidJob is returned by Job.Validate.
var ErrInvalidJob = errors.New("invalid job")

// Job is the format-agnostic representation of one calculation: the
// structure, its parameter tree and everything needed to run it.
type Job struct {
	Name string
	// Source is the file the job was read from, for diagnostics.
	Source string

	Structure *structure.Structure
	// StructureFile is an ASE JSON file read by Resolve when Structure is
	// not given inline. Relative paths are relative to Source.
	StructureFile string

	Parameters *argtree.Mapping
	Settings   *argtree.Mapping
	Kpoints    *structure.Mesh

	Options     Options
	Files       Files
	MaxAttempts int
}

// NewJob returns a job with default options, files and ceiling.
func NewJob(name string) *Job {
	return &Job{
		Name:        name,
		Parameters:  argtree.NewMapping(),
		Settings:    argtree.NewMapping(),
		Options:     DefaultOptions(),
		Files:       DefaultFiles(),
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Resolve loads the structure file when no inline structure was given and
// validates the result.
func (j *Job) Resolve() error {
	if j.Structure == nil && j.StructureFile != "" {
		path := j.StructureFile
		if !filepath.IsAbs(path) && j.Source != "" {
			path = filepath.Join(filepath.Dir(j.Source), path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("job %q: reading structure: %w", j.Name, err)
		}
		s, err := structure.UnmarshalASE(data)
		if err != nil {
			return fmt.Errorf("job %q: %s: %w", j.Name, path, err)
		}
		j.Structure = s
	}
	return j.Validate()
}

// Validate checks the job is complete enough to generate a script.
func (j *Job) Validate() error {
	if j.Name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidJob)
	}
	if j.Structure == nil {
		return fmt.Errorf("%w: job %q has no structure", ErrInvalidJob, j.Name)
	}
	if err := j.Structure.Validate(); err != nil {
		return fmt.Errorf("job %q: %w", j.Name, err)
	}
	if j.Kpoints != nil {
		if err := j.Kpoints.Validate(); err != nil {
			return fmt.Errorf("%w: job %q: %w", ErrInvalidJob, j.Name, err)
		}
	}
	if j.MaxAttempts < 1 {
		return fmt.Errorf("%w: job %q: max_attempts must be at least 1", ErrInvalidJob, j.Name)
	}
	if j.Options.CheckpointInterval < 0 {
		return fmt.Errorf("%w: job %q: checkpoint_interval must not be negative", ErrInvalidJob, j.Name)
	}
	if j.Options.Code == "" {
		return fmt.Errorf("%w: job %q: code is empty", ErrInvalidJob, j.Name)
	}
	return nil
}
