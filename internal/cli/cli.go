package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/specialistvlad/asegrid/internal/app"
	"github.com/specialistvlad/asegrid/internal/artifact"
	"github.com/specialistvlad/asegrid/internal/config"
	"github.com/specialistvlad/asegrid/internal/hcl"
	"github.com/specialistvlad/asegrid/internal/yamlcfg"
	"github.com/spf13/cobra"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	logFormat   string
	logLevel    string
	workers     int
	healthPort  int
	workDir     string
	maxAttempts int

	s3Endpoint string
	s3Bucket   string
	s3Region   string
	s3Prefix   string
	s3UseSSL   bool
}

// Run executes the command line in args, writing output to outW.
func Run(ctx context.Context, args []string, outW io.Writer) error {
	root := newRootCommand(outW)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	var exitErr *ExitError
	if err != nil && !errors.As(err, &exitErr) && isUsageError(err) {
		return &ExitError{Code: 2, Message: err.Error()}
	}
	return err
}

func isUsageError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "accepts ") ||
		strings.HasPrefix(msg, "requires at least") ||
		strings.HasPrefix(msg, "required flag")
}

func newRootCommand(outW io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "asegrid",
		Short: "Generate, run, and parse ASE calculations with automatic restarts",
		Long: `asegrid turns job files (HCL, YAML, or JSON) into ASE scripts, runs them
with the configured interpreter, classifies the outcome, and restarts failed
GPAW runs from where they stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return g.validate()
		},
	}
	root.SetOut(outW)
	root.SetErr(outW)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: 2, Message: err.Error()}
	})

	f := root.PersistentFlags()
	f.StringVar(&g.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	f.StringVar(&g.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	f.IntVar(&g.workers, "workers", 4, "Number of jobs run concurrently.")
	f.IntVar(&g.healthPort, "healthcheck-port", 0, "Port for the HTTP health check and metrics server. 0 is disabled.")
	f.StringVar(&g.workDir, "work-dir", "runs", "Directory attempts are staged and run in.")
	f.IntVar(&g.maxAttempts, "max-attempts", 0, "Cap on attempts per job on top of each job's own limit. 0 is no cap.")
	f.StringVar(&g.s3Endpoint, "s3-endpoint", "", "S3-compatible endpoint for archiving or reading attempt files.")
	f.StringVar(&g.s3Bucket, "s3-bucket", "", "Bucket for archived attempt files.")
	f.StringVar(&g.s3Region, "s3-region", "", "Bucket region.")
	f.StringVar(&g.s3Prefix, "s3-prefix", "", "Key prefix inside the bucket.")
	f.BoolVar(&g.s3UseSSL, "s3-ssl", true, "Use TLS for the S3 endpoint.")

	root.AddCommand(newGenerateCommand(g), newParseCommand(g), newRunCommand(g))
	return root
}

func (g *globalFlags) validate() error {
	g.logFormat = strings.ToLower(g.logFormat)
	if g.logFormat != "text" && g.logFormat != "json" {
		return &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	g.logLevel = strings.ToLower(g.logLevel)
	if _, err := app.ParseLevel(g.logLevel); err != nil {
		return &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	if (g.s3Endpoint == "") != (g.s3Bucket == "") {
		return &ExitError{Code: 2, Message: "s3-endpoint and s3-bucket must be set together"}
	}
	slog.Debug("CLI parameter validation complete.")
	return nil
}

// bucket returns the configured S3 location, or nil. Credentials come from
// the standard AWS environment variables.
func (g *globalFlags) bucket() *artifact.BucketConfig {
	if g.s3Endpoint == "" {
		return nil
	}
	return &artifact.BucketConfig{
		Endpoint: g.s3Endpoint,
		Region:   g.s3Region,
		Bucket:   g.s3Bucket,
		Prefix:   g.s3Prefix,
		UseSSL:   g.s3UseSSL,
		Creds:    credentials.NewEnvAWS(),
	}
}

// newApp builds the application for paths. NewApp panics on fatal startup
// errors; the panic is turned into an error here.
func (g *globalFlags) newApp(outW io.Writer, paths []string, archive bool) (a *app.App, err error) {
	cfg := app.Config{
		JobPaths:        paths,
		WorkDir:         g.workDir,
		LogFormat:       g.logFormat,
		LogLevel:        g.logLevel,
		HealthcheckPort: g.healthPort,
		WorkerCount:     g.workers,
		MaxAttempts:     g.maxAttempts,
	}
	if archive {
		cfg.Archive = g.bucket()
	}
	conf, err := app.NewConfig(cfg)
	if err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("application startup panicked: %v", r)
		}
	}()
	loaders := config.NewLoaders(hcl.NewLoader(), yamlcfg.NewLoader())
	return app.NewApp(outW, conf, loaders), nil
}
