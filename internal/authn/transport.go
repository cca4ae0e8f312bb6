package authn

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultPrefix is the namespace all API paths live under.
	DefaultPrefix = "/api"

	HeaderRequestID = "X-Request-ID"

	reasonRoleScopedAuthError = "role-scoped-auth-error"
)

// TokenInvalidator discards the role-scoped token.
type TokenInvalidator interface {
	Invalidate(ctx context.Context, reason string)
}

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (string, error)
}

// CredentialStore holds the primary credential.
type CredentialStore interface {
	AccessToken() string
	RefreshToken() string
	Rotate(access string) error
	Clear() error
}

// Redirector sends the user to the unauthenticated entry point after the
// primary credential has been discarded.
type Redirector func(ctx context.Context)

// Transport authenticates outgoing API requests with the primary credential
// and recovers from authorization failures.
//
// A 401 or 403 from a role-scoped endpoint invalidates the role-scoped token
// and is returned unchanged: role-scoped tokens are never refreshed through
// the primary credential. A 401 from any other endpoint triggers one refresh
// of the primary credential and one replay of the request.
type Transport struct {
	base        http.RoundTripper
	prefix      string
	credentials CredentialStore
	tokens      TokenInvalidator
	refresher   Refresher
	redirect    Redirector
	refreshes   singleflight.Group
}

type Option func(*Transport)

// WithPrefix sets the API namespace prepended to request paths.
func WithPrefix(prefix string) Option {
	return func(t *Transport) {
		t.prefix = normalizePrefix(prefix)
	}
}

// WithRedirector sets the handler invoked when the primary credential
// cannot be recovered.
func WithRedirector(r Redirector) Option {
	return func(t *Transport) {
		if r != nil {
			t.redirect = r
		}
	}
}

func New(base http.RoundTripper, credentials CredentialStore, tokens TokenInvalidator, refresher Refresher, opts ...Option) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}

	t := &Transport{
		base:        base,
		prefix:      DefaultPrefix,
		credentials: credentials,
		tokens:      tokens,
		refresher:   refresher,
		redirect:    func(context.Context) {},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := t.prepare(req)

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}

	return t.handleResponse(out, resp)
}

// prepare returns a copy of req carrying the bearer credential, a request ID,
// and a path inside the API namespace. It is safe to apply more than once.
func (t *Transport) prepare(req *http.Request) *http.Request {
	out := req.Clone(req.Context())

	if !hasPrefix(t.prefix, out.URL.Path) {
		out.URL.Path = t.prefix + out.URL.Path
		if out.URL.RawPath != "" {
			out.URL.RawPath = t.prefix + out.URL.RawPath
		}
	}

	if access := t.credentials.AccessToken(); access != "" {
		out.Header.Set("Authorization", "Bearer "+access)
	}

	if out.Header.Get(HeaderRequestID) == "" {
		out.Header.Set(HeaderRequestID, uuid.NewString())
	}

	return out
}

func (t *Transport) handleResponse(req *http.Request, resp *http.Response) (*http.Response, error) {
	ctx := req.Context()
	status := resp.StatusCode
	authFailure := status == http.StatusUnauthorized || status == http.StatusForbidden

	logger := log.Ctx(ctx).With().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", status).
		Str("requestID", req.Header.Get(HeaderRequestID)).
		Logger()

	switch {
	case authFailure && IsRoleScoped(t.prefix, req.URL.Path):
		logger.Info().Msg("authn: role-scoped request rejected, invalidating role token")
		t.tokens.Invalidate(ctx, reasonRoleScopedAuthError)
		return resp, nil

	case status == http.StatusUnauthorized && !IsRetried(req):
		return t.refreshAndReplay(req, resp, logger)

	default:
		return resp, nil
	}
}

func (t *Transport) refreshAndReplay(req *http.Request, resp *http.Response, logger zerolog.Logger) (*http.Response, error) {
	ctx := req.Context()

	refreshToken := t.credentials.RefreshToken()
	if refreshToken == "" {
		logger.Warn().Msg("authn: primary credential rejected and no refresh token stored")
		t.logout(ctx)
		return resp, nil
	}

	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		logger.Warn().Msg("authn: request body cannot be replayed, not refreshing")
		return resp, nil
	}

	// concurrent failures holding the same refresh token share one refresh,
	// detached from the cancellation of whichever request started it
	refreshCtx := context.WithoutCancel(ctx)
	_, err, _ := t.refreshes.Do(refreshToken, func() (any, error) {
		access, err := t.refresher.Refresh(refreshCtx, refreshToken)
		if err != nil {
			return nil, err
		}
		return nil, t.credentials.Rotate(access)
	})
	if err != nil {
		logger.Warn().Err(err).Msg("authn: primary credential refresh failed")
		t.logout(ctx)
		return resp, nil
	}

	replay := MarkRetried(req)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			logger.Warn().Err(err).Msg("authn: could not rewind request body for replay")
			return resp, nil
		}
		replay.Body = body
	}

	drain(resp.Body)

	logger.Info().Msg("authn: primary credential refreshed, replaying request")
	return t.RoundTrip(replay)
}

func (t *Transport) logout(ctx context.Context) {
	if err := t.credentials.Clear(); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("authn: could not clear primary credential")
	}
	t.redirect(ctx)
}

func drain(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, body, 64<<10)
	_ = body.Close()
}
