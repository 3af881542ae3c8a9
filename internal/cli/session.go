package cli

import (
	"text/tabwriter"

	"github.com/spf13/cobra"

	"flinkctl/internal/apperrors"
)

func (a *app) sessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Discover YARN session clusters",
	}

	var (
		name      string
		rmAddress string
		rmPort    int
	)
	find := &cobra.Command{
		Use:   "find",
		Short: "Print the job manager endpoint of a running YARN session",
		Long: `Look up the RUNNING YARN application called --name on the resource
manager and print the host and port of its job manager.

Fails when no running application has that name, or when more than one does.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if name == "" {
				return apperrors.Validation("name", "--name is required")
			}
			a.overrideResourceManager(cmd, rmAddress, rmPort)

			rm := a.cfg.ResourceManager
			endpoint, err := a.sessionFinder().FindEndpoint(cmd.Context(), rm.Address, rm.Port, name)
			if err != nil {
				return err
			}
			return a.render(endpoint, func(w *tabwriter.Writer) {
				header(w, "SESSION", "HOST", "PORT")
				row(w, name, endpoint.Host, endpoint.Port)
			})
		},
	}
	find.Flags().StringVar(&name, "name", "", "YARN application name")
	find.Flags().StringVar(&rmAddress, "rm-address", "", "YARN resource manager address")
	find.Flags().IntVar(&rmPort, "rm-port", 8088, "YARN resource manager port")

	cmd.AddCommand(find)
	return cmd
}
