package cli

import "context"

type contextKey string

const appKey contextKey = "ocpi-console-app"

// withApp adds the app to the command context. This is done by the root
// command before any subcommand runs.
func withApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey, app)
}

func appFromContext(ctx context.Context) (*App, bool) {
	app, ok := ctx.Value(appKey).(*App)
	return app, ok
}

// mustApp retrieves the app from context or panics. Only used in RunE
// functions, where the root command has already injected it.
func mustApp(ctx context.Context) *App {
	app, ok := appFromContext(ctx)
	if !ok {
		panic("ocpi-console: app not found in context - this is a bug")
	}
	return app
}
