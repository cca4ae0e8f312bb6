package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chinmina/ocpi-console/internal/api"
	"github.com/chinmina/ocpi-console/internal/authn"
	"github.com/chinmina/ocpi-console/internal/cache"
	"github.com/chinmina/ocpi-console/internal/config"
	"github.com/chinmina/ocpi-console/internal/credentials"
	"github.com/chinmina/ocpi-console/internal/observe"
	"github.com/chinmina/ocpi-console/internal/role"
	"github.com/chinmina/ocpi-console/internal/rolestore"
	"github.com/chinmina/ocpi-console/internal/rolesync"
	"github.com/chinmina/ocpi-console/internal/shutdown"
	"github.com/chinmina/ocpi-console/internal/storage"
	"github.com/chinmina/ocpi-console/internal/tokencache"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog/log"
)

// App holds the components shared by all commands. It is built once per
// invocation.
type App struct {
	Config      config.Config
	Roles       *rolestore.Store
	Credentials *credentials.Store
	Tokens      *tokencache.Cache
	Engine      *rolesync.Engine
	Client      *api.Client

	hooks *shutdown.Hooks
	now   func() time.Time
}

// NewApp wires the role store, token cache, sync engine and authenticated
// API client over st. base is the transport used for all network calls.
// Cleanup is appended to hooks, which may be nil.
func NewApp(ctx context.Context, cfg config.Config, st storage.Store, base http.RoundTripper, hooks *shutdown.Hooks) (*App, error) {
	if hooks == nil {
		hooks = shutdown.New(0)
	}

	defaultRole, ok := role.Validate(cfg.Session.DefaultRole)
	if !ok {
		return nil, fmt.Errorf("invalid default role %q", cfg.Session.DefaultRole)
	}

	roles := rolestore.New(st, rolestore.WithDefaultRole(defaultRole))
	roles.Initialize(ctx)

	creds := credentials.NewStore(st)

	// the refresh call carries no bearer and is never itself recovered
	refreshClient, err := api.New(cfg.API.BaseURL, &http.Client{
		Timeout:   cfg.API.Timeout(),
		Transport: authn.Namespaced(cfg.API.Prefix, base),
	})
	if err != nil {
		return nil, fmt.Errorf("refresh client configuration failed: %w", err)
	}

	// the transport is attached once the token cache it invalidates exists
	httpClient := &http.Client{Timeout: cfg.API.Timeout()}
	client, err := api.New(cfg.API.BaseURL, httpClient)
	if err != nil {
		return nil, fmt.Errorf("API client configuration failed: %w", err)
	}

	memory, err := cache.NewMemory[tokencache.CachedToken](cfg.Cache.TokenTTL(), cfg.Cache.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("token cache configuration failed: %w", err)
	}
	tokenStore := cache.NewInstrumented(memory, "role_token", tokencache.Describe)
	hooks.Add("token-cache", tokenStore.Close)

	tokens := tokencache.New(client, roles, tokenStore)
	hooks.AddClose("token-cache-follow", closerFunc(tokens.Follow(roles)))

	httpClient.Transport = authn.New(base, creds, tokens, refreshClient,
		authn.WithPrefix(cfg.API.Prefix),
		authn.WithRedirector(loginRedirector(cfg.Session.LoginURL)),
	)

	return &App{
		Config:      cfg,
		Roles:       roles,
		Credentials: creds,
		Tokens:      tokens,
		Engine:      rolesync.New(client, roles, tokens),
		Client:      client,
		hooks:       hooks,
		now:         time.Now,
	}, nil
}

// Close runs the registered cleanup.
func (a *App) Close(ctx context.Context) error {
	return a.hooks.Execute(ctx)
}

// loginRedirector tells the user to authenticate again. In a terminal this
// stands in for navigating to the login page.
func loginRedirector(loginURL string) authn.Redirector {
	return func(ctx context.Context) {
		log.Ctx(ctx).Info().Msg("session: primary credential discarded, login required")

		if loginURL != "" {
			pterm.Warning.Printf("Your session has expired. Log in again at %s\n", loginURL)
			return
		}
		pterm.Warning.Println("Your session has expired. Log in again with `ocpi-console login`.")
	}
}

// HTTPTransport builds the base transport from configuration, instrumented
// when telemetry is enabled.
func HTTPTransport(cfg config.Config) http.RoundTripper {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	transport.MaxIdleConns = cfg.API.OutgoingHTTPMaxIdleConns
	transport.MaxConnsPerHost = cfg.API.OutgoingHTTPMaxConnsPerHost

	return observe.HTTPTransport(transport, cfg.Observe)
}

type closerFunc func()

func (f closerFunc) Close() { f() }
