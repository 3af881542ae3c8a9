package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flinkctl/internal/deploy"
)

type submitFlags struct {
	intent      deploy.Intent
	sessionName string
	rmAddress   string
	rmPort      int
}

func (a *app) submitCommand() *cobra.Command {
	var f submitFlags

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Deploy a jar, optionally resuming from a savepoint of a running job",
		Long: `Upload a jar and run it.

With --job-id and --target-dir the running job is savepointed into the target
directory and cancelled first, and the new job resumes from that savepoint.

The jar path may be a local file, a glob matching exactly one file, or an
s3://bucket/key object.

Examples:
  # Fresh deploy
  flinkctl submit --jar-path ./target/app.jar

  # Stateful redeploy
  flinkctl submit --jar-path s3://artifacts/app-1.2.jar \
    --job-id 5e20cb6b0f357591171dfcca2eea09de --target-dir s3://savepoints/app

  # Discover the job manager of a YARN session
  flinkctl submit --jar-path app.jar --session-name flink-prod --rm-address rm.internal`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runSubmit(cmd, &f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.intent.JarPath, "jar-path", "", "Jar to deploy (local path, glob or s3:// URI)")
	flags.StringVar(&f.intent.JobID, "job-id", "", "Running job to savepoint and replace")
	flags.StringVar(&f.intent.TargetDir, "target-dir", "", "Savepoint directory for a stateful redeploy")
	flags.BoolVar(&f.intent.AllowNonRestoredState, "allow-non-restored-state", false, "Skip savepoint state that cannot be mapped to the new job")
	flags.IntVar(&f.intent.Parallelism, "parallelism", 0, "Job parallelism (0 = cluster default)")
	flags.StringVar(&f.intent.EntryClass, "entry-class", "", "Main class, if the jar manifest has none")
	flags.StringVar(&f.intent.ProgramArgs, "program-args", "", "Arguments passed to the job")
	flags.StringVar(&f.sessionName, "session-name", "", "Resolve the job manager from this YARN session")
	flags.StringVar(&f.rmAddress, "rm-address", "", "YARN resource manager address")
	flags.IntVar(&f.rmPort, "rm-port", 8088, "YARN resource manager port")
	_ = cmd.MarkFlagRequired("jar-path")

	return cmd
}

func (a *app) runSubmit(cmd *cobra.Command, f *submitFlags) error {
	ctx := cmd.Context()

	if f.sessionName != "" {
		a.overrideResourceManager(cmd, f.rmAddress, f.rmPort)
		if err := a.useSession(cmd, f.sessionName); err != nil {
			return err
		}
	}

	c, err := a.components(recorders{})
	if err != nil {
		return err
	}
	defer c.close(ctx, a.logger)

	res, err := c.deployer.Submit(ctx, f.intent)
	if err != nil {
		return err
	}

	return a.render(res, func(w *tabwriter.Writer) {
		header(w, "MODE", "JAR", "JOB", "SAVEPOINT", "PREVIOUS")
		row(w, string(res.Mode), res.JarID, orDash(res.JobID), orDash(res.SavepointPath), orDash(res.PreviousJobID))
	})
}

// overrideResourceManager applies --rm-address and --rm-port when given.
// They are not bound to viper because several subcommands define them.
func (a *app) overrideResourceManager(cmd *cobra.Command, address string, port int) {
	if cmd.Flags().Changed("rm-address") {
		a.cfg.ResourceManager.Address = address
	}
	if cmd.Flags().Changed("rm-port") {
		a.cfg.ResourceManager.Port = port
	}
}

// useSession points the job manager config at the RUNNING YARN application
// called name.
func (a *app) useSession(cmd *cobra.Command, name string) error {
	rm := a.cfg.ResourceManager
	endpoint, err := a.sessionFinder().FindEndpoint(cmd.Context(), rm.Address, rm.Port, name)
	if err != nil {
		return err
	}

	port, err := strconv.Atoi(endpoint.Port)
	if err != nil {
		return fmt.Errorf("session %s reported invalid port %q: %w", name, endpoint.Port, err)
	}
	a.cfg.JobManager.Address = endpoint.Host
	a.cfg.JobManager.Port = port

	a.logger.Info("Resolved job manager from session",
		zap.String("session", name),
		zap.String("address", endpoint.Host),
		zap.Int("port", port),
	)
	return nil
}
