package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/chinmina/ocpi-console/internal/role"
	"github.com/chinmina/ocpi-console/internal/tokencache"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect the role-scoped token",
	}

	cmd.AddCommand(newTokenShowCmd())
	cmd.AddCommand(newTokenInvalidateCmd())

	return cmd
}

type tokenView struct {
	Role      role.Role `json:"role" yaml:"role"`
	Token     string    `json:"token" yaml:"token"`
	FetchedAt time.Time `json:"fetchedAt" yaml:"fetchedAt"`
}

func newTokenShowCmd() *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Fetch and show the token for the active role",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app := mustApp(ctx)

			value, err := app.Tokens.Get(ctx)
			if err != nil {
				var tokenErr *tokencache.Error
				if errors.As(err, &tokenErr) && tokenErr.Actionable() {
					pterm.Warning.Println(tokenErr.Error())
				}
				return err
			}

			view := tokenView{Role: app.Roles.Role(), Token: value, FetchedAt: app.now()}
			if cached, ok := app.Tokens.Peek(ctx); ok {
				view.Role = cached.ScopeRole
				view.FetchedAt = cached.FetchedAt
			}
			if !reveal {
				view.Token = mask(view.Token)
			}

			return render(cmd, view, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s\t%s\n", view.Role, view.Token)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print the full token")

	return cmd
}

func newTokenInvalidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate",
		Short: "Discard the cached role-scoped token",
		RunE: func(cmd *cobra.Command, args []string) error {
			mustApp(cmd.Context()).Tokens.Invalidate(cmd.Context(), tokencache.ReasonManual)
			pterm.Success.Println("Role token invalidated")
			return nil
		},
	}
}

// mask keeps enough of a token to tell tokens apart.
func mask(token string) string {
	const visible = 6
	if len(token) <= visible {
		return "******"
	}
	return token[:visible] + "******"
}
