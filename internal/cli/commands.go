package cli

import (
	"fmt"

	"github.com/specialistvlad/asegrid/internal/app"
	"github.com/specialistvlad/asegrid/internal/artifact"
	"github.com/specialistvlad/asegrid/internal/exitcode"
	"github.com/spf13/cobra"
)

// jobName returns name, or the only loaded job when name is empty.
func jobName(a *app.App, name string) (string, error) {
	if name != "" {
		return name, nil
	}
	if jobs := a.Jobs(); len(jobs) == 1 {
		return jobs[0].Name, nil
	}
	return "", &ExitError{Code: 2, Message: "several jobs loaded: select one with --job"}
}

// failureExit turns a classification into the process exit status.
func failureExit(err error) error {
	if f, ok := exitcode.As(err); ok {
		return &ExitError{Code: int(f.Code), Message: f.Error()}
	}
	return err
}

func newGenerateCommand(g *globalFlags) *cobra.Command {
	var job, out string
	cmd := &cobra.Command{
		Use:   "generate JOB_PATH...",
		Short: "Write the script and input structure of a job",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.newApp(cmd.ErrOrStderr(), args, false)
			if err != nil {
				return err
			}
			name, err := jobName(a, job)
			if err != nil {
				return err
			}
			res, err := a.Generate(cmd.Context(), name, out)
			if err != nil {
				return err
			}
			if out == "" {
				fmt.Fprint(cmd.OutOrStdout(), res.Script)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), submissionTable(name, res))
			return nil
		},
	}
	cmd.Flags().StringVar(&job, "job", "", "Job to generate. Optional when only one job is loaded.")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Directory to write the staged files to. Prints the script when empty.")
	return cmd
}

func newParseCommand(g *globalFlags) *cobra.Command {
	var job, dir string
	cmd := &cobra.Command{
		Use:   "parse JOB_PATH...",
		Short: "Classify the retrieved files of an attempt",
		Long: `parse reads the files an attempt left behind, from --dir or from the
configured S3 bucket and prefix, and prints the result record. A failed
attempt exits with its classification's code.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var set artifact.Set
			switch {
			case dir != "":
				set = artifact.NewDir(dir)
			case g.bucket() != nil:
				b, err := artifact.NewBucket(*g.bucket())
				if err != nil {
					return err
				}
				set = b
			default:
				return &ExitError{Code: 2, Message: "parse needs --dir or an S3 bucket"}
			}

			a, err := g.newApp(cmd.ErrOrStderr(), args, false)
			if err != nil {
				return err
			}
			name, err := jobName(a, job)
			if err != nil {
				return err
			}
			rec, err := a.Parse(cmd.Context(), name, set)
			if err != nil {
				return failureExit(err)
			}
			fmt.Fprint(cmd.OutOrStdout(), recordTable(rec))
			return nil
		},
	}
	cmd.Flags().StringVar(&job, "job", "", "Job the attempt belongs to. Optional when only one job is loaded.")
	cmd.Flags().StringVar(&dir, "dir", "", "Directory holding the retrieved files.")
	return cmd
}

func newRunCommand(g *globalFlags) *cobra.Command {
	var jobs []string
	cmd := &cobra.Command{
		Use:   "run JOB_PATH...",
		Short: "Run jobs, restarting failed attempts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.newApp(cmd.ErrOrStderr(), args, true)
			if err != nil {
				return err
			}
			outcomes, err := a.Run(cmd.Context(), jobs...)
			fmt.Fprint(cmd.OutOrStdout(), outcomeTable(outcomes))
			if err != nil {
				return err
			}
			for _, o := range outcomes {
				if o.Failure != nil {
					return failureExit(o.Failure)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&jobs, "job", nil, "Jobs to run. All loaded jobs when empty.")
	return cmd
}
