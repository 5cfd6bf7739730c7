package cmd

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/lostfound/internal/errors"
	"github.com/felixgeelhaar/lostfound/internal/ux"
)

func newAuthCommand(app *App) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage your account and session",
		Long: `Manage your lostfound account and session.

Your session is remembered in an encrypted credential store so later
commands run as you until you log out or the session expires.

Subcommands:
  register  Create an account
  confirm   Confirm a registration with the emailed code
  resend    Send a new confirmation code
  login     Sign in with email and password
  logout    Sign out and forget the session
  whoami    Show the signed-in user`,
	}

	authCmd.AddCommand(
		newRegisterCommand(app),
		newConfirmCommand(app),
		newResendCommand(app),
		newLoginCommand(app),
		newLogoutCommand(app),
		newWhoamiCommand(app),
	)
	return authCmd
}

func newRegisterCommand(app *App) *cobra.Command {
	var email, name, password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Long: `Create an account. A confirmation code is emailed to you; confirm it
with 'lostfound auth confirm' before logging in.

The password is prompted for when --password is not given.

Examples:
  lostfound auth register --email user@example.com --name "Ada Lovelace"`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = app.runE(func(cmd *cobra.Command, _ []string) error {
		var err error
		if email, err = app.require(email, "email", "Email", false); err != nil {
			return err
		}
		if name, err = app.require(name, "name", "Full name", false); err != nil {
			return err
		}
		if password, err = app.require(password, "password", "Password", true); err != nil {
			return err
		}

		pending, err := app.session.Register(cmd.Context(), email, password, name)
		if err != nil {
			return err
		}
		return app.notice(
			fmt.Sprintf("Registration started for %s", pending.Email),
			"Check your email for a confirmation code.",
			"Then run: lostfound auth confirm --code <code>",
		)
	})

	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&name, "name", "", "full name shown to other users")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	return cmd
}

func newConfirmCommand(app *App) *cobra.Command {
	var email, code string

	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Confirm a registration",
		Long: `Confirm a registration with the code that was emailed to you. The email
defaults to the registration started most recently on this machine.

Examples:
  lostfound auth confirm --code 123456
  lostfound auth confirm --email user@example.com --code 123456`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = app.runE(func(cmd *cobra.Command, _ []string) error {
		var err error
		if email, err = app.pendingEmail(email); err != nil {
			return err
		}
		if code, err = app.require(code, "code", "Confirmation code", false); err != nil {
			return err
		}

		if err := app.session.ConfirmRegistration(cmd.Context(), email, code); err != nil {
			return err
		}
		return app.notice(
			fmt.Sprintf("Account %s confirmed", strings.ToLower(strings.TrimSpace(email))),
			"You can now log in with: lostfound auth login",
		)
	})

	cmd.Flags().StringVar(&email, "email", "", "email address (default: pending registration)")
	cmd.Flags().StringVar(&code, "code", "", "confirmation code (prompted when omitted)")
	return cmd
}

func newResendCommand(app *App) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "resend",
		Short: "Send a new confirmation code",
		Long: `Ask for a new confirmation code for the pending registration.

Examples:
  lostfound auth resend`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = app.runE(func(cmd *cobra.Command, _ []string) error {
		var err error
		if email, err = app.pendingEmail(email); err != nil {
			return err
		}
		if err := app.session.ResendConfirmationCode(cmd.Context(), email); err != nil {
			return err
		}
		return app.notice(fmt.Sprintf("A new confirmation code was sent to %s", email))
	})

	cmd.Flags().StringVar(&email, "email", "", "email address (default: pending registration)")
	return cmd
}

func newLoginCommand(app *App) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in",
		Long: `Sign in with your email and password. The session is remembered until
you log out.

Examples:
  lostfound auth login --email user@example.com`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = app.runE(func(cmd *cobra.Command, _ []string) error {
		var err error
		if email, err = app.require(email, "email", "Email", false); err != nil {
			return err
		}
		if password, err = app.require(password, "password", "Password", true); err != nil {
			return err
		}

		id, err := app.session.Login(cmd.Context(), email, password)
		if err != nil {
			return err
		}
		var details []string
		if app.session.IsAdmin() {
			details = append(details, "You have administrator access.")
		}
		return app.notice(fmt.Sprintf("Signed in as %s", id.DisplayName), details...)
	})

	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	return cmd
}

func newLogoutCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Long: `Sign out and forget the remembered session.

Examples:
  lostfound auth logout`,
		Args: cobra.NoArgs,
		RunE: app.runE(func(cmd *cobra.Command, _ []string) error {
			id, signedIn := app.session.CurrentUser()
			app.session.Logout(cmd.Context())
			if !signedIn {
				return app.notice("Not signed in")
			}
			return app.notice(fmt.Sprintf("Signed out %s", id.Email))
		}),
	}
}

func newWhoamiCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: app.runE(func(cmd *cobra.Command, _ []string) error {
			snap := app.session.Snapshot()
			if !snap.IsAuthenticated() {
				return errors.AuthRequired("whoami")
			}
			return app.render(&ux.Account{
				UserID:      snap.UserID,
				Email:       snap.Email,
				DisplayName: snap.DisplayName,
				Groups:      snap.Groups,
				Admin:       snap.InGroup(app.session.AdminGroup()),
			})
		}),
	}
}

// require returns value, prompting for it when empty
func (a *App) require(value, flag, title string, secret bool) (string, error) {
	if strings.TrimSpace(value) != "" {
		return value, nil
	}
	v, err := a.prompter.Input(title, secret)
	if err != nil {
		if stderrors.Is(err, ux.ErrNotInteractive) {
			return "", errors.Validationf("--%s is required", flag)
		}
		return "", err
	}
	return v, nil
}

// pendingEmail defaults email to the pending registration
func (a *App) pendingEmail(email string) (string, error) {
	if strings.TrimSpace(email) != "" {
		return email, nil
	}
	if pv := a.session.Pending(); pv != nil {
		return pv.Email, nil
	}
	return "", errors.New(errors.KindValidation, errors.ErrCodeRegNoPending, "no registration is awaiting confirmation").
		WithSuggestion("Pass --email or run 'lostfound auth register' first")
}
