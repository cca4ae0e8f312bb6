package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/chinmina/ocpi-console/internal/credentials"
	"github.com/chinmina/ocpi-console/internal/rolestore"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	var access, refresh string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the session credentials and select a role",
		Long: `Stores the access and refresh tokens issued by the console login, then
makes sure a role is active: the backend's current role is adopted, or the
first role available to the user is selected.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := mustApp(cmd.Context())

			err := app.Credentials.Save(credentials.Credential{
				AccessToken:  access,
				RefreshToken: refresh,
			})
			if err != nil {
				return fmt.Errorf("failed to store credentials: %w", err)
			}
			pterm.Success.Println("Credentials stored")

			if !app.Engine.EnsureRoleIsSet(cmd.Context()) {
				pterm.Warning.Println("No role could be selected automatically. Choose one with `ocpi-console role set <ROLE>`.")
			}

			session := app.Roles.Session()
			return render(cmd, session, func(w io.Writer) error {
				return printSession(w, session)
			})
		},
	}

	cmd.Flags().StringVar(&access, "access", "", "Access token")
	cmd.Flags().StringVar(&refresh, "refresh", "", "Refresh token")
	_ = cmd.MarkFlagRequired("access")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the role and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := mustApp(cmd.Context())

			// the backend call needs the credential, so it goes first
			if err := app.Engine.Logout(cmd.Context()); err != nil {
				pterm.Warning.Printf("Backend logout failed, local state cleared anyway: %v\n", err)
			}

			if err := app.Credentials.Clear(); err != nil {
				return fmt.Errorf("failed to clear credentials: %w", err)
			}

			pterm.Success.Println("Logged out")
			return nil
		},
	}
}

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Inspect authentication",
	}
	cmd.AddCommand(newAuthStatusCmd())
	return cmd
}

type authStatus struct {
	LoggedIn   bool                     `json:"loggedIn" yaml:"loggedIn"`
	HasRefresh bool                     `json:"hasRefreshToken" yaml:"hasRefreshToken"`
	Token      *credentials.Description `json:"token,omitempty" yaml:"token,omitempty"`
	Session    rolestore.Session        `json:"session" yaml:"session"`
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Display authentication status",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := mustApp(cmd.Context())

			creds, err := app.Credentials.Load()
			if errors.Is(err, credentials.ErrNotLoggedIn) {
				return fmt.Errorf("not logged in")
			}
			if err != nil {
				return err
			}

			status := authStatus{
				LoggedIn:   true,
				HasRefresh: creds.RefreshToken != "",
				Session:    app.Roles.Session(),
			}

			// opaque tokens are valid; they just can't be described
			if d, err := credentials.Describe(creds.AccessToken, app.now()); err == nil {
				status.Token = &d
			}

			return render(cmd, status, func(w io.Writer) error {
				pterm.DefaultSection.Println("Authentication Status")
				fmt.Fprintln(w, "Logged in:      yes")
				fmt.Fprintf(w, "Refresh token:  %t\n", status.HasRefresh)
				if status.Token != nil {
					if status.Token.Subject != "" {
						fmt.Fprintf(w, "Subject:        %s\n", status.Token.Subject)
					}
					if !status.Token.ExpiresAt.IsZero() {
						fmt.Fprintf(w, "Expires:        %s (expired: %t)\n", status.Token.ExpiresAt.Format("2006-01-02 15:04:05 MST"), status.Token.Expired)
					}
				}
				return printSession(w, status.Session)
			})
		},
	}
}
