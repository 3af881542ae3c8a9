package cli

import (
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"flinkctl/internal/apperrors"
	"flinkctl/internal/history"
)

type latestSavepoint struct {
	JobID         string `json:"jobId" yaml:"jobId"`
	SavepointPath string `json:"savepointPath" yaml:"savepointPath"`
}

func (a *app) historyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the local deployment history",
		Long: `Every submit writes a record under the history directory
(history.dir, default <user config dir>/flinkctl/history). A stateful
redeploy records its savepoint path before resubmitting, so the path survives
a failed run.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List deployments, newest first",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			store, err := a.requireHistory()
			if err != nil {
				return err
			}
			records, err := store.List()
			if err != nil {
				return err
			}
			if records == nil {
				records = []history.Record{}
			}
			return a.render(records, func(w *tabwriter.Writer) {
				header(w, "ID", "STATE", "MODE", "JOB", "SAVEPOINT", "CREATED")
				for _, r := range records {
					row(w, r.ID, colorState(string(r.State)), r.Mode, orDash(r.JobID), orDash(r.SavepointPath),
						r.CreatedAt.Format(time.RFC3339))
				}
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one deployment record",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			store, err := a.requireHistory()
			if err != nil {
				return err
			}
			r, err := store.Get(args[0])
			if err != nil {
				return err
			}
			return a.render(r, func(w *tabwriter.Writer) {
				row(w, "ID", r.ID)
				row(w, "State", colorState(string(r.State)))
				row(w, "Mode", r.Mode)
				row(w, "Jar", r.JarPath)
				row(w, "Jar ID", orDash(r.JarID))
				row(w, "Previous job", orDash(r.PreviousJobID))
				row(w, "Target dir", orDash(r.TargetDir))
				row(w, "Savepoint", orDash(r.SavepointPath))
				row(w, "Job", orDash(r.JobID))
				row(w, "Error", orDash(r.Error))
				row(w, "Created", r.CreatedAt.Format(time.RFC3339))
				row(w, "Updated", r.UpdatedAt.Format(time.RFC3339))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "savepoint <jobId>",
		Short: "Print the latest savepoint taken from a replaced job",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			store, err := a.requireHistory()
			if err != nil {
				return err
			}
			path, err := store.LatestSavepoint(args[0])
			if err != nil {
				return err
			}
			res := latestSavepoint{JobID: args[0], SavepointPath: path}
			return a.render(res, func(w *tabwriter.Writer) {
				header(w, "JOB", "SAVEPOINT")
				row(w, res.JobID, res.SavepointPath)
			})
		},
	})

	return cmd
}

func (a *app) requireHistory() (*history.Store, error) {
	store, err := a.historyStore()
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, apperrors.Validation("history.enabled", "deployment history is disabled")
	}
	return store, nil
}
