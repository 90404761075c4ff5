package resultparse

import (
	"context"

	"github.com/specialistvlad/asegrid/internal/artifact"
	"github.com/specialistvlad/asegrid/internal/ctxlog"
	"github.com/specialistvlad/asegrid/internal/exitcode"
)

// Minimal parses the output of any ASE calculator: it only needs the results
// file, and reads the output structure when there is one.
type Minimal struct{}

func (Minimal) Parse(ctx context.Context, set artifact.Set, exp Expected) (*Record, error) {
	logger := ctxlog.FromContext(ctx)
	f := exp.Files

	ok, err := artifact.Has(ctx, set, f.Results)
	if err != nil {
		return nil, unexpected(err)
	}
	if !ok {
		logger.Error("Results file not found.", "file", f.Results)
		return nil, exitcode.New(exitcode.OutputFiles)
	}

	rec := &Record{}
	ok, err = artifact.Has(ctx, set, f.OutputStructure)
	if err != nil {
		return nil, unexpected(err)
	}
	if ok {
		if rec.Structure, err = readStructure(ctx, set, f.OutputStructure); err != nil {
			return nil, unexpected(err)
		}
	}

	results, err := loadResults(ctx, set, f.Results)
	if err != nil {
		return nil, unexpected(err)
	}
	rec.Parameters, rec.Arrays = partition(results)

	stderr, err := readStderr(ctx, set, f.SchedulerStderr)
	if err != nil {
		return nil, unexpected(err)
	}
	rec.Warnings = warnings(stderr)
	return rec, nil
}
