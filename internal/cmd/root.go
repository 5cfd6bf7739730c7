package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the lostfound command tree
func NewRootCommand(opts ...Option) *cobra.Command {
	root, _ := newRootCommand(newApp(opts...))
	return root
}

func newRootCommand(app *App) (*cobra.Command, *App) {
	root := &cobra.Command{
		Use:   "lostfound",
		Short: "Lost and found listings from the command line",
		Long: `lostfound publishes and browses lost and found items, lets finders and
owners message each other, and gives administrators account moderation.

Configuration is read from .lostfound/config.yaml (in the working directory
or a parent up to the repository root), then the user config directory, and
can be overridden with LOSTFOUND_* environment variables or a .env file.

Examples:
  lostfound items list --status lost
  lostfound auth login --email user@example.com
  lostfound items post --title "Blue backpack" --status found --location "Main library" \
    --category bags --description "Left near the entrance" --image ./backpack.jpg
  lostfound messages inbox`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == cobra.ShellCompRequestCmd {
				return nil
			}
			return app.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&app.flags.configPath, "config", "", "config file (default: discovered .lostfound/config.yaml)")
	flags.StringVarP(&app.flags.output, "output", "o", "text", "output format: text, json or yaml")
	flags.BoolVar(&app.flags.noColor, "no-color", false, "disable colored output")
	flags.BoolVarP(&app.flags.verbose, "verbose", "v", false, "debug logging and detailed errors")
	flags.StringVar(&app.flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")

	root.AddCommand(
		newAuthCommand(app),
		newItemsCommand(app),
		newMessagesCommand(app),
		newAdminCommand(app),
		newVersionCommand(app),
	)
	return root, app
}

// Run executes the command line args. Failures are reported on the
// configured stderr before being returned.
func Run(ctx context.Context, args []string, opts ...Option) error {
	root, app := newRootCommand(newApp(opts...))
	defer app.close()

	root.SetArgs(args)
	root.SetOut(app.stdout)
	root.SetErr(app.stderr)

	err := root.ExecuteContext(ctx)
	if err != nil && ctx.Err() == nil {
		app.reportError(err)
	}
	return err
}

// ExecuteContext runs the CLI with the process arguments
func ExecuteContext(ctx context.Context) error {
	return Run(ctx, os.Args[1:])
}

// runE times a command and records its outcome
func (a *App) runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		err := fn(cmd, args)
		a.metrics.ObserveCommand(commandName(cmd), err, time.Since(start))
		if err != nil {
			a.logger.WithError(err).Debug("command failed", "command", commandName(cmd))
		}
		return err
	}
}

// commandName is the command path without the binary name, e.g. "items list"
func commandName(cmd *cobra.Command) string {
	path := cmd.CommandPath()
	if root := cmd.Root(); root != nil && len(path) > len(root.Name()) {
		return path[len(root.Name())+1:]
	}
	return path
}
