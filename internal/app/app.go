package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/specialistvlad/asegrid/internal/artifact"
	"github.com/specialistvlad/asegrid/internal/config"
	"github.com/specialistvlad/asegrid/internal/ctxlog"
	"github.com/specialistvlad/asegrid/internal/execenv"
	"github.com/specialistvlad/asegrid/internal/fsutil"
	"github.com/specialistvlad/asegrid/internal/restart"
	"github.com/specialistvlad/asegrid/internal/resultparse"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	ctx        context.Context
	logger     *slog.Logger
	config     *Config
	jobs       []*config.Job
	parsers    *resultparse.Registry
	metrics    *prometheus.Registry
	controller *restart.Controller
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It loads every job
// up front; a job that fails to load is a fatal startup error, so NewApp
// panics and leaves the recovery to the entrypoint.
func NewApp(outW io.Writer, cfg *Config, loaders *config.Loaders) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	var files []string
	for _, p := range cfg.JobPaths {
		found, err := fsutil.FindFilesByExtension(p, loaders.Extensions()...)
		if err != nil {
			panic(fmt.Errorf("failed to find job files: %w", err))
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		panic(fmt.Errorf("no job files found in %v", cfg.JobPaths))
	}

	jobs, err := loaders.Load(ctx, files...)
	if err != nil {
		panic(fmt.Errorf("failed to load jobs: %w", err))
	}
	logger.Debug("Jobs loaded.", "files", len(files), "jobs", len(jobs))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	parsers := resultparse.DefaultRegistry()

	var executor restart.Executor = execenv.NewLocal(cfg.WorkDir)
	if cfg.Archive != nil {
		bucket, err := artifact.NewBucket(*cfg.Archive)
		if err != nil {
			panic(fmt.Errorf("failed to configure archive: %w", err))
		}
		executor = &archivingExecutor{inner: executor, bucket: bucket}
		logger.Debug("Archiving attempts.", "endpoint", cfg.Archive.Endpoint, "bucket", cfg.Archive.Bucket)
	}

	controller := restart.New(executor, parsers, restart.PerJob{Max: cfg.MaxAttempts},
		restart.WithMetrics(restart.NewMetrics(reg)))

	return &App{
		outW:       outW,
		ctx:        ctx,
		logger:     logger,
		config:     cfg,
		jobs:       jobs,
		parsers:    parsers,
		metrics:    reg,
		controller: controller,
	}
}

// Jobs returns the loaded jobs in file order.
func (a *App) Jobs() []*config.Job {
	return a.jobs
}

// Job returns the job called name.
func (a *App) Job(name string) (*config.Job, error) {
	for _, j := range a.jobs {
		if j.Name == name {
			return j, nil
		}
	}
	names := make([]string, len(a.jobs))
	for i, j := range a.jobs {
		names[i] = j.Name
	}
	return nil, fmt.Errorf("no job named %q (have %v)", name, names)
}

// Parsers returns the parser registry.
func (a *App) Parsers() *resultparse.Registry {
	return a.parsers
}
