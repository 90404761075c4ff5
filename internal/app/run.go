package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/asegrid/internal/ctxlog"
	"github.com/specialistvlad/asegrid/internal/restart"
	"golang.org/x/sync/errgroup"
)

// Run drives the named jobs, or every loaded job when names is empty, with
// at most WorkerCount jobs in flight. Outcomes are returned in job order.
// A job whose sequence could not be carried out does not stop the others;
// all such errors are joined into the returned error.
func (a *App) Run(ctx context.Context, names ...string) ([]*restart.Outcome, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.startHealthCheckServer()
	defer a.closeHealthCheckServer()

	jobs := a.jobs
	if len(names) > 0 {
		jobs = nil
		for _, n := range names {
			j, err := a.Job(n)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, j)
		}
	}

	a.logger.Info("🚀 Starting jobs...", "jobs", len(jobs), "workers", a.config.WorkerCount)
	outcomes := make([]*restart.Outcome, len(jobs))
	errs := make([]error, len(jobs))

	var g errgroup.Group
	g.SetLimit(a.config.WorkerCount)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			out, err := a.controller.Run(ctx, job)
			if err != nil {
				errs[i] = fmt.Errorf("job %s: %w", job.Name, err)
				return nil
			}
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return outcomes, err
	}
	a.logger.Info("🏁 Jobs finished.")
	return outcomes, errors.Join(errs...)
}
