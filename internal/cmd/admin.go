package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/lostfound/internal/domain"
	"github.com/felixgeelhaar/lostfound/internal/security"
)

func newAdminCommand(app *App) *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Moderate accounts",
		Long: `Moderate accounts. These commands need a signed-in user in the
administrator group.

Subcommands:
  users    List every account
  block    Disable an account
  unblock  Re-enable an account
  audit    Show moderation actions taken from this machine`,
	}

	adminCmd.AddCommand(
		newUsersCommand(app),
		newUserStatusCommand(app, domain.ActionBlock),
		newUserStatusCommand(app, domain.ActionUnblock),
		newAuditCommand(app),
	)
	return adminCmd
}

func newUsersCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List every account",
		Long: `List every account with its status and groups.

Examples:
  lostfound admin users
  lostfound admin users -o yaml`,
		Args: cobra.NoArgs,
		RunE: app.runE(func(cmd *cobra.Command, _ []string) error {
			users, err := app.gateway.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			return app.render(users)
		}),
	}
}

func newUserStatusCommand(app *App, action domain.UserAction) *cobra.Command {
	short := "Disable an account"
	if action == domain.ActionUnblock {
		short = "Re-enable an account"
	}

	return &cobra.Command{
		Use:   string(action) + " <username>",
		Short: short,
		Long: fmt.Sprintf(`%s. The username is the one shown by 'lostfound admin users'.

Examples:
  lostfound admin %s 8c1f4e2a-user`, short, action),
		Args: cobra.ExactArgs(1),
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			result, err := app.gateway.SetUserStatus(cmd.Context(), args[0], action)
			app.recordModeration(args[0], action == domain.ActionBlock, err)
			if err != nil {
				return err
			}
			return app.render(result)
		}),
	}
}

func newAuditCommand(app *App) *cobra.Command {
	var (
		since    time.Duration
		resource string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show moderation actions taken from this machine",
		Long: `Show the local audit trail of blocks, unblocks and item deletions
made with this CLI, oldest first.

Examples:
  lostfound admin audit
  lostfound admin audit --since 168h --resource bob`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = app.runE(func(cmd *cobra.Command, _ []string) error {
		audit := app.auditLog()
		if audit == nil {
			return app.notice("Audit logging is disabled")
		}
		filter := security.AuditFilter{Resource: resource, Limit: limit}
		if since > 0 {
			filter.StartDate = time.Now().Add(-since)
		}
		events, err := audit.Query(filter)
		if err != nil {
			return err
		}
		return app.render(events)
	})

	cmd.Flags().DurationVar(&since, "since", 0, "only events newer than this, e.g. 24h")
	cmd.Flags().StringVar(&resource, "resource", "", "only events about this username or item id")
	cmd.Flags().IntVar(&limit, "limit", 50, "newest events to show (0 for all)")
	return cmd
}

// auditLog opens the audit trail on first use. It returns nil when the
// trail is disabled or cannot be opened.
func (a *App) auditLog() *security.AuditLogger {
	if a.audit != nil || a.cfg == nil || a.cfg.Audit.Disabled {
		return a.audit
	}
	audit, err := security.NewAuditLogger(a.cfg.Audit.Dir)
	if err != nil {
		a.logger.WithError(err).Warn("audit trail unavailable")
		return nil
	}
	a.audit = audit
	return audit
}

func (a *App) recordModeration(username string, blocked bool, cause error) {
	actor := a.session.Snapshot().UserID
	if actor == "" {
		return
	}
	audit := a.auditLog()
	if audit == nil {
		return
	}
	if err := audit.LogModeration(actor, username, blocked, cause); err != nil {
		a.logger.WithError(err).Warn("failed to record moderation")
	}
}

func (a *App) recordDeletion(itemID string, cause error) {
	actor := a.session.Snapshot().UserID
	if actor == "" {
		return
	}
	audit := a.auditLog()
	if audit == nil {
		return
	}
	if err := audit.LogItemDeleted(actor, itemID, cause); err != nil {
		a.logger.WithError(err).Warn("failed to record deletion")
	}
}
