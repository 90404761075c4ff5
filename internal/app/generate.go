package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/specialistvlad/asegrid/internal/artifact"
	"github.com/specialistvlad/asegrid/internal/ctxlog"
	"github.com/specialistvlad/asegrid/internal/resultparse"
	"github.com/specialistvlad/asegrid/internal/scriptgen"
)

// Generate produces the files of the named job's first attempt. When dir is
// not empty the staged files are written there as well.
func (a *App) Generate(ctx context.Context, name, dir string) (*scriptgen.Output, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger.With("job", name))
	job, err := a.Job(name)
	if err != nil {
		return nil, err
	}
	out, err := scriptgen.Generate(ctx, &scriptgen.Input{
		Structure:  job.Structure,
		Parameters: job.Parameters,
		Kpoints:    job.Kpoints,
		Settings:   job.Settings,
		Options:    job.Options,
		Files:      job.Files,
	})
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return out, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	staged := map[string][]byte{
		job.Files.Script:         []byte(out.Script),
		job.Files.InputStructure: out.Structure,
	}
	for _, f := range out.Submission.Stage {
		if err := os.WriteFile(filepath.Join(dir, f), staged[f], 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", f, err)
		}
	}
	a.logger.Info("Files written.", "job", name, "dir", dir, "files", out.Submission.Stage)
	return out, nil
}

// Parse classifies the artifacts of an attempt of the named job with the
// parser its options select.
func (a *App) Parse(ctx context.Context, name string, set artifact.Set) (*resultparse.Record, error) {
	job, err := a.Job(name)
	if err != nil {
		return nil, err
	}
	parser, err := a.parsers.Get(job.Options.ParserName)
	if err != nil {
		return nil, err
	}
	// Whether the attempt relaxed follows from the parameters.
	out, err := a.Generate(ctx, name, "")
	if err != nil {
		return nil, err
	}
	ctx = ctxlog.WithLogger(ctx, a.logger.With("job", name, "parser", job.Options.ParserName))
	return parser.Parse(ctx, set, resultparse.Expected{Files: job.Files, Relax: out.Relax})
}
