package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/chinmina/ocpi-console/internal/config"
	"github.com/chinmina/ocpi-console/internal/observe"
	"github.com/chinmina/ocpi-console/internal/shutdown"
	"github.com/chinmina/ocpi-console/internal/storage"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Options supplies the environment the commands run in. Tests replace the
// defaults to avoid touching the OS environment and home directory.
type Options struct {
	LoadConfig         func(ctx context.Context) (config.Config, error)
	OpenStorage        func(path string) (storage.Store, error)
	Transport          func(cfg config.Config) http.RoundTripper
	ConfigureTelemetry func(ctx context.Context, cfg config.ObserveConfig) (observe.ShutdownFunc, error)

	// Out receives command output; nil uses stdout.
	Out io.Writer
}

func DefaultOptions() Options {
	return Options{
		LoadConfig: config.Load,
		OpenStorage: func(path string) (storage.Store, error) {
			return storage.NewFile(path)
		},
		Transport:          HTTPTransport,
		ConfigureTelemetry: observe.Configure,
	}
}

// Execute runs the command line with the process arguments.
func Execute(ctx context.Context) error {
	return Run(ctx, DefaultOptions(), nil)
}

// Run executes the command line described by args (nil uses the process
// arguments) and releases everything the app acquired before returning.
func Run(ctx context.Context, opts Options, args []string) error {
	var app *App

	root := newRootCmd(opts, func(a *App) { app = a })
	if args != nil {
		root.SetArgs(args)
	}
	if opts.Out != nil {
		root.SetOut(opts.Out)
	}

	err := root.ExecuteContext(ctx)

	if app != nil {
		if closeErr := app.Close(ctx); closeErr != nil {
			log.Warn().Err(closeErr).Msg("cleanup incomplete")
		}
	}

	return err
}

func newRootCmd(opts Options, created func(*App)) *cobra.Command {
	root := &cobra.Command{
		Use:   "ocpi-console",
		Short: "OCPI console - role and session administration",
		Long: `ocpi-console administers an OCPI platform as a charge point operator (CPO)
or e-mobility service provider (EMSP). It keeps the active role in sync with
the backend and authenticates requests with role-scoped tokens.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("output")
			if err := validateOutput(format); err != nil {
				return err
			}

			app, err := bootstrap(cmd.Context(), opts)
			if err != nil {
				return err
			}
			created(app)

			cmd.SetContext(withApp(cmd.Context(), app))
			return nil
		},
	}

	root.PersistentFlags().StringP("output", "o", outputText, fmt.Sprintf("Output format %v", outputFormats))

	root.AddCommand(newLoginCmd())
	root.AddCommand(newLogoutCmd())
	root.AddCommand(newAuthCmd())
	root.AddCommand(newRoleCmd())
	root.AddCommand(newTokenCmd())

	return root
}

func bootstrap(ctx context.Context, opts Options) (*App, error) {
	cfg, err := opts.LoadConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("configuration load failed: %w", err)
	}

	shutdownTelemetry, err := opts.ConfigureTelemetry(ctx, cfg.Observe)
	if err != nil {
		return nil, fmt.Errorf("telemetry bootstrap failed: %w", err)
	}

	st, err := opts.OpenStorage(cfg.Session.StoragePath)
	if err != nil {
		_ = shutdownTelemetry(ctx)
		return nil, fmt.Errorf("storage configuration failed: %w", err)
	}

	// registered first so it runs last, after everything else has flushed
	hooks := shutdown.New(0)
	hooks.AddContext("telemetry", shutdownTelemetry)

	app, err := NewApp(ctx, cfg, st, opts.Transport(cfg), hooks)
	if err != nil {
		_ = hooks.Execute(ctx)
		return nil, err
	}

	return app, nil
}
