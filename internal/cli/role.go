package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chinmina/ocpi-console/internal/role"
	"github.com/chinmina/ocpi-console/internal/rolestore"
	"github.com/chinmina/ocpi-console/internal/rolesync"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Manage the active role",
		Long:  `Commands for viewing and changing the role (CPO or EMSP) the console acts in.`,
	}

	cmd.AddCommand(newRoleShowCmd())
	cmd.AddCommand(newRoleSetCmd())
	cmd.AddCommand(newRoleSyncCmd())
	cmd.AddCommand(newRoleRetryCmd())
	cmd.AddCommand(newRoleEnsureCmd())

	return cmd
}

func newRoleShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the locally stored role",
		RunE: func(cmd *cobra.Command, args []string) error {
			session := mustApp(cmd.Context()).Roles.Session()

			return render(cmd, session, func(w io.Writer) error {
				return printSession(w, session)
			})
		},
	}
}

func newRoleSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "set <ROLE>",
		Short:     "Change the active role",
		Args:      cobra.ExactArgs(1),
		ValidArgs: roleNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			result := mustApp(cmd.Context()).Engine.RequestSync(cmd.Context(), args[0])
			return renderSync(cmd, result)
		},
	}
}

func newRoleSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Confirm the active role with the backend",
		Long: `Commits the current role to the backend, or adopts the backend's role when
none is stored locally.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result := mustApp(cmd.Context()).Engine.RequestSync(cmd.Context(), "")
			return renderSync(cmd, result)
		},
	}
}

func newRoleRetryCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "retry [ROLE]",
		Short: "Sync the role, retrying transient failures",
		Long: fmt.Sprintf(`Like sync, but a failed attempt is retried until it succeeds or %d
consecutive attempts have failed. Authorization and validation failures are
not retried.`, rolesync.MaxAttempts),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine := mustApp(ctx).Engine

			target := ""
			if len(args) == 1 {
				target = args[0]
			}

			result := engine.RequestSync(ctx, target)
			for result.Outcome == rolesync.OutcomeFailed {
				pterm.Warning.Printf("Sync failed (attempt %d of %d)\n", result.Attempts, rolesync.MaxAttempts)
				if result.Attempts < rolesync.MaxAttempts {
					if err := sleep(ctx, interval); err != nil {
						return err
					}
				}
				// once exhausted, Retry reports it without contacting the backend
				result = engine.Retry(ctx)
			}

			return renderSync(cmd, result)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Delay between attempts")

	return cmd
}

func newRoleEnsureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure",
		Short: "Make sure a role is active, selecting one if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := mustApp(cmd.Context())

			if !app.Engine.EnsureRoleIsSet(cmd.Context()) {
				return fmt.Errorf("no role could be selected; choose one with `role set`")
			}

			session := app.Roles.Session()
			return render(cmd, session, func(w io.Writer) error {
				return printSession(w, session)
			})
		},
	}
}

type syncView struct {
	Outcome  string            `json:"outcome" yaml:"outcome"`
	Attempts int               `json:"attempts" yaml:"attempts"`
	Session  rolestore.Session `json:"session" yaml:"session"`
}

// renderSync reports the result of a sync, and returns its error so the
// process exit status reflects a failure.
func renderSync(cmd *cobra.Command, result rolesync.Result) error {
	view := syncView{
		Outcome:  result.Outcome.String(),
		Attempts: result.Attempts,
		Session:  result.Session,
	}

	err := render(cmd, view, func(w io.Writer) error {
		switch result.Outcome {
		case rolesync.OutcomeSucceeded:
			pterm.Success.Printf("Role synced: %s\n", result.Session.ActiveRole)
		case rolesync.OutcomeDropped:
			pterm.Info.Println("A sync is already in progress")
		case rolesync.OutcomeAuthFailed:
			pterm.Warning.Printf("Not authorized; role reset to %s\n", result.Session.ActiveRole)
		}
		return printSession(w, result.Session)
	})
	if err != nil {
		return err
	}

	if result.Err != nil {
		return fmt.Errorf("role sync %s: %w", result.Outcome, result.Err)
	}
	return nil
}

func printSession(w io.Writer, s rolestore.Session) error {
	active := "(none)"
	if s.HasActiveRole() {
		active = s.ActiveRole.String()
	}

	available := make([]string, 0, len(s.AvailableRoles))
	for _, r := range s.AvailableRoles {
		available = append(available, r.String())
	}

	data := [][]string{
		{"Active role", active},
		{"Available roles", strings.Join(available, ", ")},
	}
	if s.Party != nil {
		data = append(data, []string{"Party", s.Party.String()})
	}
	if s.Synced() {
		data = append(data, []string{"Last synced", s.LastSyncedAt.Format(time.RFC3339)})
	}

	table, err := pterm.DefaultTable.WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, table)
	return err
}

func roleNames() []string {
	names := make([]string, 0, len(role.Vocabulary))
	for _, r := range role.Vocabulary {
		names = append(names, r.String())
	}
	return names
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
