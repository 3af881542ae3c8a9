package cli

import (
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flinkctl/internal/artifactsource"
)

type uploadResult struct {
	JarID string `json:"jarId" yaml:"jarId"`
	Path  string `json:"path" yaml:"path"`
}

func (a *app) jarsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jars",
		Short: "Manage jars uploaded to the job manager",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List uploaded jars",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jars, err := a.jobManager(recorders{}).ListJars(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(jars, func(w *tabwriter.Writer) {
				header(w, "ID", "NAME", "UPLOADED", "ENTRY")
				for _, j := range jars.Files {
					entry := "-"
					if len(j.Entry) > 0 {
						entry = j.Entry[0].Name
					}
					row(w, j.ID, j.Name, formatMillis(j.Uploaded), entry)
				}
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a jar without running it",
		Long: `Upload a jar and print the id the job manager assigned.

The path may be a local file, a glob matching exactly one file, or an
s3://bucket/key object.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			resolver := artifactsource.NewResolver(artifactsource.Options{
				S3:     s3Config(a.cfg.S3),
				Logger: a.logger,
			})
			artifact, err := resolver.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			defer func() {
				if err := artifact.Close(); err != nil {
					a.logger.Warn("Failed to remove downloaded artifact", zap.Error(err))
				}
			}()

			start := time.Now()
			jarID, err := a.jobManager(recorders{}).UploadJar(ctx, artifact.Path)
			if err != nil {
				return err
			}
			a.logger.Debug("Uploaded jar", zap.String("jarId", jarID), zap.Duration("duration", time.Since(start)))

			res := uploadResult{JarID: jarID, Path: args[0]}
			return a.render(res, func(w *tabwriter.Writer) {
				header(w, "ID", "SOURCE")
				row(w, res.JarID, res.Path)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <jarId>",
		Short: "Delete an uploaded jar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.jobManager(recorders{}).DeleteJar(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.logger.Info("Deleted jar", zap.String("jarId", args[0]))
			return nil
		},
	})

	return cmd
}
