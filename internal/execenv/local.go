// Package execenv runs generated scripts. Local runs each attempt as a child
// process in its own working directory and hands back the retrieved files.
package execenv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/asegrid/internal/artifact"
	"github.com/specialistvlad/asegrid/internal/config"
	"github.com/specialistvlad/asegrid/internal/ctxlog"
	"github.com/specialistvlad/asegrid/internal/exitcode"
	"github.com/specialistvlad/asegrid/internal/scriptgen"
)

// Attempt is one run of one job.
type Attempt struct {
	Job     string
	Number  int
	Output  *scriptgen.Output
	Options config.Options
	Files   config.Files
}

// Result locates what an attempt left behind.
type Result struct {
	ID  uuid.UUID
	Dir string
	// Retrieved holds the retrieve list plus the stderr capture.
	Retrieved artifact.Set
}

// Local runs attempts on this machine.
type Local struct {
	Root string
	// MPIRun prefixes the command line of attempts with WithMPI set.
	MPIRun []string
	// KillGrace is how long a cancelled process gets to exit after its
	// context is done.
	KillGrace time.Duration
}

// NewLocal returns an executor staging attempts under root.
func NewLocal(root string) *Local {
	return &Local{Root: root, MPIRun: []string{"mpirun"}, KillGrace: 5 * time.Second}
}

// Run stages and runs one attempt. A process that exits non-zero is not an
// error here: its artifacts are returned for the parser to classify. Running
// past the wallclock limit returns the artifacts along with an
// ERROR_OUT_OF_WALLTIME failure.
func (l *Local) Run(ctx context.Context, a *Attempt) (*Result, error) {
	id := uuid.New()
	dir := filepath.Join(l.Root, a.Job, fmt.Sprintf("%02d-%s", a.Number, id))
	logger := ctxlog.FromContext(ctx).With("job", a.Job, "attempt", a.Number, "id", id)

	if err := l.stage(dir, a); err != nil {
		return nil, err
	}

	sub := a.Output.Submission
	argv := append([]string{a.Options.Code}, sub.Cmdline...)
	if a.Options.WithMPI {
		argv = append(append([]string{}, l.MPIRun...), argv...)
	}

	runCtx := ctx
	if a.Options.MaxWallclock > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.Options.MaxWallclock)
		defer cancel()
	}

	stdout, err := os.Create(filepath.Join(dir, sub.StdoutName))
	if err != nil {
		return nil, fmt.Errorf("create stdout: %w", err)
	}
	defer stdout.Close()
	stderr, err := os.Create(filepath.Join(dir, a.Files.SchedulerStderr))
	if err != nil {
		return nil, fmt.Errorf("create stderr: %w", err)
	}
	defer stderr.Close()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = l.KillGrace

	logger.Info("Starting attempt.", "dir", dir, "argv", argv)
	start := time.Now()
	runErr := cmd.Run()
	logger.Info("Attempt finished.", "duration", time.Since(start), "error", runErr)

	res := &Result{
		ID:        id,
		Dir:       dir,
		Retrieved: artifact.NewDir(dir, append(append([]string{}, sub.Retrieve...), a.Files.SchedulerStderr)...),
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if runCtx.Err() != nil {
		return res, exitcode.Newf(exitcode.OutOfWalltime, "killed after %s", a.Options.MaxWallclock)
	}
	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return nil, fmt.Errorf("run %s: %w", argv[0], runErr)
	}
	if exitErr != nil {
		logger.Warn("Process exited with non-zero status.", "status", exitErr.ExitCode())
	}
	return res, nil
}

// stage writes the generated files into a fresh working directory.
func (l *Local) stage(dir string, a *Attempt) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create attempt dir: %w", err)
	}
	content := map[string][]byte{
		a.Files.Script:         []byte(a.Output.Script),
		a.Files.InputStructure: a.Output.Structure,
	}
	for _, name := range a.Output.Submission.Stage {
		data, ok := content[name]
		if !ok {
			return fmt.Errorf("nothing to stage as %s", name)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("stage %s: %w", name, err)
		}
	}
	return nil
}
