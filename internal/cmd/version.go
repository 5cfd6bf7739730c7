package cmd

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/lostfound/internal/ux"
	"github.com/felixgeelhaar/lostfound/internal/version"
)

func newVersionCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print version information including version number, git commit,
build date, Go version, and platform.

Examples:
  lostfound version
  lostfound version --verbose
  lostfound version -o json`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoSession: "true"},
		RunE: app.runE(func(cmd *cobra.Command, _ []string) error {
			info := version.GetInfo()
			if app.flags.output != ux.FormatText {
				return app.render(info)
			}
			if app.flags.verbose {
				return app.render(info.String())
			}
			return app.render(version.Name + " " + info.Short())
		}),
	}
}
