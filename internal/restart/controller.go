// Package restart drives repeated attempts of one job: it generates the
// script, hands it to an executor, parses what came back, and lets a fixed
// table of handlers decide whether and how to try again.
//
// The loop is SETUP, VALIDATE, then (PREPARE, RUN, INSPECT) for as long as a
// handler asks for a retry and the ceiling allows one, then FINALIZE.
package restart

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/specialistvlad/asegrid/internal/argtree"
	"github.com/specialistvlad/asegrid/internal/config"
	"github.com/specialistvlad/asegrid/internal/ctxlog"
	"github.com/specialistvlad/asegrid/internal/execenv"
	"github.com/specialistvlad/asegrid/internal/exitcode"
	"github.com/specialistvlad/asegrid/internal/resultparse"
	"github.com/specialistvlad/asegrid/internal/scriptgen"
	"github.com/specialistvlad/asegrid/internal/structure"
)

// Executor runs one attempt and returns what it left behind. It may return a
// *exitcode.Failure of its own, e.g. for a walltime kill.
type Executor interface {
	Run(ctx context.Context, a *execenv.Attempt) (*execenv.Result, error)
}

// GenerateFunc produces the files of one attempt.
type GenerateFunc func(ctx context.Context, in *scriptgen.Input) (*scriptgen.Output, error)

// State is what the next attempt starts from. Handlers may replace its
// structure and parameters; nothing else changes it between attempts.
type State struct {
	Job        *config.Job
	Structure  *structure.Structure
	Parameters *argtree.Mapping
	Settings   *argtree.Mapping
	Options    config.Options
	Attempts   int

	baseline *structure.Structure
}

// Outcome is the result of a finished attempt sequence.
type Outcome struct {
	Job      string
	Attempts int
	// Record is set when the last attempt succeeded.
	Record *resultparse.Record
	// Failure is the classification of the last attempt when it failed.
	Failure *exitcode.Failure
	// Structure is the output structure of a success, else the structure
	// the next attempt would have started from.
	Structure *structure.Structure
	// Exhausted is set when a handler asked for a retry and the ceiling
	// refused it.
	Exhausted bool
}

// Code returns the exit code of the outcome.
func (o *Outcome) Code() exitcode.Code {
	if o.Failure == nil {
		return exitcode.OK
	}
	return o.Failure.Code
}

// Result names the outcome for logs and metrics.
func (o *Outcome) Result() string {
	switch {
	case o.Failure == nil:
		return "succeeded"
	case o.Exhausted:
		return "exhausted"
	default:
		return "failed"
	}
}

// Controller runs attempt sequences. One controller may run many jobs
// concurrently; each Run owns its own state.
type Controller struct {
	executor Executor
	parsers  *resultparse.Registry
	ceiling  Ceiling
	handlers []Handler
	generate GenerateFunc
	metrics  *Metrics
}

// Option configures a Controller.
type Option func(*Controller)

// WithHandlers replaces the default handler table.
func WithHandlers(h ...Handler) Option {
	return func(c *Controller) { c.handlers = h }
}

// WithGenerator replaces scriptgen.Generate.
func WithGenerator(g GenerateFunc) Option {
	return func(c *Controller) { c.generate = g }
}

// WithMetrics records attempts and outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// New builds a controller. It panics when two handlers claim the same
// classification.
func New(executor Executor, parsers *resultparse.Registry, ceiling Ceiling, opts ...Option) *Controller {
	c := &Controller{
		executor: executor,
		parsers:  parsers,
		ceiling:  ceiling,
		handlers: DefaultHandlers(),
		generate: scriptgen.Generate,
	}
	for _, opt := range opts {
		opt(c)
	}
	seen := make(map[exitcode.Code]string, len(c.handlers))
	for _, h := range c.handlers {
		if prev, ok := seen[h.Code]; ok {
			panic(fmt.Sprintf("handlers '%s' and '%s' both handle %s", prev, h.Name, h.Code))
		}
		seen[h.Code] = h.Name
	}
	return c
}

// Run drives job until it succeeds, fails in a way no handler retries, or the
// ceiling stops it. A returned error means the sequence could not be carried
// out at all: generation failed, the executor broke, or ctx was cancelled.
func (c *Controller) Run(ctx context.Context, job *config.Job) (*Outcome, error) {
	ctx, logger := ctxlog.With(ctx, "job", job.Name)

	st := setup(job)
	validate(ctx, st)
	parser, err := c.parsers.Get(st.Options.ParserName)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Job: job.Name}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !c.ceiling.Allow(job, st.Attempts) {
			if st.Attempts == 0 {
				return nil, fmt.Errorf("job %s: no attempt allowed", job.Name)
			}
			out.Exhausted = true
			logger.Warn("Attempt ceiling reached.", "attempts", st.Attempts)
			break
		}
		st.Attempts++
		prepare(st)

		rec, fail, err := c.attempt(ctx, st, parser)
		if err != nil {
			return nil, err
		}
		if fail == nil {
			out.Record, out.Failure = rec, nil
			break
		}
		out.Failure = fail
		if c.inspect(ctx, st, fail) == Stop {
			break
		}
	}

	// FINALIZE
	out.Attempts = st.Attempts
	out.Structure = st.Structure
	if out.Record != nil && out.Record.Structure != nil {
		out.Structure = out.Record.Structure
	}
	c.metrics.jobFinished(out)
	logger.Info("Job finished.", "result", out.Result(), "code", out.Code(), "attempts", out.Attempts)
	return out, nil
}

// setup captures the caller's baseline. The job itself is never modified.
func setup(job *config.Job) *State {
	return &State{
		Job:        job,
		Parameters: job.Parameters,
		Settings:   job.Settings,
		Options:    job.Options,
		baseline:   job.Structure.Clone(),
	}
}

// validate applies the adjustments every GPAW run needs regardless of how
// earlier attempts went.
func validate(ctx context.Context, st *State) {
	logger := ctxlog.FromContext(ctx)
	if st.Options.ParserName != config.ParserChecked {
		logger.Debug("Selecting the checked parser.", "was", st.Options.ParserName)
		st.Options.ParserName = config.ParserChecked
	}
	if !st.Options.WriteCheckpoint {
		logger.Info("Allowing the checkpoint file to be produced at the end of the calculation.")
		st.Options.WriteCheckpoint = true
	}
	// A backend driver such as `gpaw` runs scripts through its own
	// `python` subcommand.
	if _, ok := st.Settings.Get(scriptgen.SettingCmdline); !ok && !isPython(st.Options.Code) {
		st.Settings = st.Settings.With(scriptgen.SettingCmdline, argtree.Sequence{argtree.String("python")})
	}
}

func isPython(code string) bool {
	return strings.HasPrefix(filepath.Base(code), "python")
}

// prepare binds the baseline structure on the first attempt only; later
// attempts keep whatever a handler substituted.
func prepare(st *State) {
	if st.Attempts == 1 {
		st.Structure = st.baseline
	}
}

// attempt is RUN: generate, execute, parse. A cancelled attempt is never
// classified.
func (c *Controller) attempt(ctx context.Context, st *State, parser resultparse.Parser) (*resultparse.Record, *exitcode.Failure, error) {
	ctx, logger := ctxlog.With(ctx, "attempt", st.Attempts)
	job := st.Job

	gen, err := c.generate(ctx, &scriptgen.Input{
		Structure:  st.Structure,
		Parameters: st.Parameters,
		Kpoints:    job.Kpoints,
		Settings:   st.Settings,
		Options:    st.Options,
		Files:      job.Files,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("attempt %d: %w", st.Attempts, err)
	}

	start := time.Now()
	c.metrics.attemptStarted(st.Options.ParserName)
	logger.Info("Running attempt.", "relax", gen.Relax)

	res, err := c.executor.Run(ctx, &execenv.Attempt{
		Job:     job.Name,
		Number:  st.Attempts,
		Output:  gen,
		Options: st.Options,
		Files:   job.Files,
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, nil, ctxErr
	}
	if err != nil {
		f, ok := exitcode.As(err)
		if !ok {
			return nil, nil, fmt.Errorf("attempt %d: %w", st.Attempts, err)
		}
		c.metrics.attemptFinished(start, f)
		return nil, f, nil
	}

	rec, err := parser.Parse(ctx, res.Retrieved, resultparse.Expected{Files: job.Files, Relax: gen.Relax})
	if err != nil {
		f, ok := exitcode.As(err)
		if !ok {
			f = exitcode.Newf(exitcode.Unexpected, "%v", err)
		}
		c.metrics.attemptFinished(start, f)
		logger.Warn("Attempt failed.", "code", f.Code, "detail", f.Detail)
		return nil, f, nil
	}
	c.metrics.attemptFinished(start, nil)
	logger.Info("Attempt succeeded.")
	return rec, nil, nil
}

// inspect fires the first handler registered for the classification.
// Classifications nobody handles stop the sequence.
func (c *Controller) inspect(ctx context.Context, st *State, f *exitcode.Failure) Action {
	logger := ctxlog.FromContext(ctx)
	for _, h := range c.handlers {
		if h.Code != f.Code {
			continue
		}
		action := h.Fn(ctx, st, f)
		logger.Info("Handled failure.", "handler", h.Name, "code", f.Code, "action", action)
		return action
	}
	logger.Error("Unhandled failure, stopping.", "code", f.Code)
	return Stop
}
