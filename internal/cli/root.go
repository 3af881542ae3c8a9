// Package cli implements the flinkctl command tree.
package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"flinkctl/internal/config"
	"flinkctl/internal/observability"
)

// app holds state shared by every subcommand of one invocation.
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *zap.Logger

	configFile string
	output     string

	out    io.Writer
	errOut io.Writer
}

// NewRootCommand builds the command tree. Output goes to out, diagnostics
// and logs to errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{v: config.New(), out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "flinkctl",
		Short: "Deploy and manage jobs on a Flink job manager",
		Long: `flinkctl uploads jars, runs jobs, takes savepoints and performs
savepoint-then-resume redeploys against a Flink job manager REST endpoint.

Configuration is read from flinkctl.yaml (working directory or user config
dir), FLINKCTL_* environment variables and flags, in increasing precedence.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Config file (default: ./flinkctl.yaml)")
	flags.String("address", "localhost", "Job manager address")
	flags.Int("port", 8081, "Job manager REST port")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "console", "Log format (console, json)")
	flags.StringVarP(&a.output, "output", "o", "table", "Output format (table, json, yaml)")

	bind(a.v, root, "jobmanager.address", "address")
	bind(a.v, root, "jobmanager.port", "port")
	bind(a.v, root, "logging.level", "log-level")
	bind(a.v, root, "logging.format", "log-format")

	root.AddCommand(
		a.submitCommand(),
		a.cancelCommand(),
		a.savepointCommand(),
		a.jarsCommand(),
		a.jobsCommand(),
		a.sessionCommand(),
		a.historyCommand(),
		a.serveCommand(),
	)
	return root
}

// Execute runs the command tree against os-level args.
func Execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	root := NewRootCommand(out, errOut)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := validateOutput(a.output); err != nil {
		return err
	}

	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

// bind ties a viper key to a flag on cmd. Persistent flags are looked up
// first so root flags bind the same way as local ones.
func bind(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	f := cmd.PersistentFlags().Lookup(flag)
	if f == nil {
		f = cmd.Flags().Lookup(flag)
	}
	if f == nil {
		panic("cli: unknown flag " + flag)
	}
	if err := v.BindPFlag(key, f); err != nil {
		panic(err)
	}
}
