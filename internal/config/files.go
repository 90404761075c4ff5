package config

import "time"

// Files names every artifact the generated script reads or writes.
type Files struct {
	Script          string
	Results         string
	Log             string
	InputStructure  string
	OutputStructure string
	OptimizerLog    string
	Checkpoint      string
	SchedulerStderr string
}

// DefaultFiles returns the filenames used when a job does not override them.
func DefaultFiles() Files {
	return Files{
		Script:          "aiida_script.py",
		Results:         "results.json",
		Log:             "aiida.out",
		InputStructure:  "aiida_atoms.json",
		OutputStructure: "aiida_out_atoms.json",
		OptimizerLog:    "aiida_optimizer.log",
		Checkpoint:      "aiida_gpw.gpw",
		SchedulerStderr: "_scheduler-stderr.txt",
	}
}

// Parser names understood by the default parser registry.
const (
	ParserMinimal = "ase.ase"
	ParserChecked = "ase.gpaw"
)

// Options are the run options of one attempt.
type Options struct {
	// Code is the executable the script is handed to, e.g. "python" or
	// "gpaw".
	Code               string
	WithMPI            bool
	WriteCheckpoint    bool
	CheckpointInterval int
	ParserName         string
	// MaxWallclock bounds one attempt; zero means unbounded.
	MaxWallclock time.Duration
}

// DefaultOptions returns the options of a plain single-process ASE run.
func DefaultOptions() Options {
	return Options{
		Code:       "python",
		ParserName: ParserMinimal,
	}
}
