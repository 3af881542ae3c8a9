package cli

import (
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"flinkctl/internal/apperrors"
)

type savepointResult struct {
	JobID         string `json:"jobId" yaml:"jobId"`
	SavepointPath string `json:"savepointPath" yaml:"savepointPath"`
	Cancelled     bool   `json:"cancelled" yaml:"cancelled"`
}

type cancelResult struct {
	JobID string `json:"jobId" yaml:"jobId"`
	State string `json:"state" yaml:"state"`
}

func (a *app) cancelCommand() *cobra.Command {
	var (
		withSavepoint bool
		targetDir     string
	)

	cmd := &cobra.Command{
		Use:   "cancel <jobId>",
		Short: "Cancel a running job",
		Long: `Cancel a job and wait until it stops running.

With --with-savepoint the job is savepointed into --target-dir and stopped in
one step; the savepoint path is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			jobID := args[0]

			if withSavepoint && targetDir == "" {
				return apperrors.Validation("target-dir", "--target-dir is required with --with-savepoint")
			}

			c, err := a.components(recorders{})
			if err != nil {
				return err
			}
			defer c.close(ctx, a.logger)

			if withSavepoint {
				path, err := c.deployer.CancelJobWithSavepoint(ctx, jobID, targetDir)
				if err != nil {
					return err
				}
				return a.renderSavepoint(savepointResult{JobID: jobID, SavepointPath: path, Cancelled: true})
			}

			state, err := c.deployer.CancelJob(ctx, jobID)
			if err != nil {
				return err
			}
			res := cancelResult{JobID: jobID, State: state}
			return a.render(res, func(w *tabwriter.Writer) {
				header(w, "JOB", "STATE")
				row(w, res.JobID, colorState(res.State))
			})
		},
	}

	cmd.Flags().BoolVar(&withSavepoint, "with-savepoint", false, "Savepoint the job before stopping it")
	cmd.Flags().StringVar(&targetDir, "target-dir", "", "Savepoint directory")
	return cmd
}

func (a *app) savepointCommand() *cobra.Command {
	var (
		targetDir string
		cancelJob bool
	)

	cmd := &cobra.Command{
		Use:   "savepoint <jobId>",
		Short: "Trigger a savepoint and wait for its path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			jobID := args[0]

			c, err := a.components(recorders{})
			if err != nil {
				return err
			}
			defer c.close(ctx, a.logger)

			var path string
			if cancelJob {
				path, err = c.deployer.CancelJobWithSavepoint(ctx, jobID, targetDir)
			} else {
				path, err = c.deployer.TriggerSavepoint(ctx, jobID, targetDir)
			}
			if err != nil {
				return err
			}
			return a.renderSavepoint(savepointResult{JobID: jobID, SavepointPath: path, Cancelled: cancelJob})
		},
	}

	cmd.Flags().StringVar(&targetDir, "target-dir", "", "Savepoint directory")
	cmd.Flags().BoolVar(&cancelJob, "cancel", false, "Stop the job once the savepoint completes")
	_ = cmd.MarkFlagRequired("target-dir")
	return cmd
}

func (a *app) renderSavepoint(res savepointResult) error {
	return a.render(res, func(w *tabwriter.Writer) {
		header(w, "JOB", "SAVEPOINT", "CANCELLED")
		row(w, res.JobID, orDash(res.SavepointPath), boolString(res.Cancelled))
	})
}

func (a *app) jobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Query jobs on the job manager",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List jobs and their states",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobs, err := a.jobManager(recorders{}).ListJobs(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(jobs, func(w *tabwriter.Writer) {
				header(w, "JOB", "STATE")
				for _, j := range jobs.Jobs {
					row(w, j.ID, colorState(string(j.Status)))
				}
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status <jobId>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := a.jobManager(recorders{}).JobInfo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(job, func(w *tabwriter.Writer) {
				header(w, "JOB", "NAME", "STATE", "STARTED")
				row(w, job.ID, job.Name, colorState(string(job.State)), formatMillis(job.StartTime))
			})
		},
	})

	return cmd
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func boolString(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
