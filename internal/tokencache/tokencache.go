package tokencache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chinmina/ocpi-console/internal/cache"
	"github.com/chinmina/ocpi-console/internal/role"
	"github.com/chinmina/ocpi-console/internal/rolestore"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

// Reasons recorded when the cache is invalidated.
const (
	ReasonRoleChanged         = "role-changed"
	ReasonRoleScopedAuthError = "role-scoped-auth-error"
	ReasonSyncRequested       = "sync-requested"
	ReasonLogout              = "logout"
	ReasonManual              = "manual"
)

const cacheKey = "active-token"

// Fetcher retrieves the authorization token for a role from the backend.
type Fetcher interface {
	ActiveToken(ctx context.Context, r role.Role) (string, error)
}

// RoleSource supplies the role that tokens must be scoped to.
type RoleSource interface {
	Role() role.Role
}

// CachedToken is a role-scoped token and the role it was issued for.
type CachedToken struct {
	Value     string
	ScopeRole role.Role
	FetchedAt time.Time
}

// Cache memoizes the role-scoped token. A token is only ever returned while
// its role is the active role.
type Cache struct {
	fetcher Fetcher
	roles   RoleSource
	store   cache.TokenCache[CachedToken]
	group   singleflight.Group
	now     func() time.Time

	// generation increases on every invalidation, so a fetch that started
	// before an invalidation does not repopulate the cache.
	generation atomic.Uint64

	followMu   sync.Mutex
	followRole role.Role
}

func New(fetcher Fetcher, roles RoleSource, store cache.TokenCache[CachedToken]) *Cache {
	return &Cache{
		fetcher: fetcher,
		roles:   roles,
		store:   store,
		now:     time.Now,
	}
}

// Get returns the token for the active role, fetching it if it is not
// cached. Failures are always returned as *Error.
func (c *Cache) Get(ctx context.Context) (string, error) {
	logger := log.Ctx(ctx)

	r := c.roles.Role()
	if !r.IsValid() {
		return "", &Error{Class: ErrNotConfigured}
	}

	cached, found, err := c.store.Get(ctx, cacheKey)
	if err != nil {
		logger.Warn().Err(err).Msg("role token: cache read failed, fetching")
	}
	if found && cached.ScopeRole == r {
		logger.Debug().Str("role", r.String()).Msg("role token: hit")
		return cached.Value, nil
	}
	if found {
		logger.Info().
			Str("cached", cached.ScopeRole.String()).
			Str("active", r.String()).
			Msg("role token: cached token issued for different role")
		c.Invalidate(ctx, ReasonRoleChanged)
	}

	// concurrent misses for the same role share a single backend call, which
	// must outlive any one caller's cancellation
	fetchCtx := context.WithoutCancel(ctx)
	v, err, shared := c.group.Do(r.String(), func() (any, error) {
		generation := c.generation.Load()

		token, err := c.fetcher.ActiveToken(fetchCtx, r)
		if err != nil {
			return nil, classify(r, err)
		}

		// only keep the result if nothing invalidated the cache meanwhile
		if c.generation.Load() == generation && c.roles.Role() == r {
			entry := CachedToken{Value: token, ScopeRole: r, FetchedAt: c.now()}
			if err := c.store.Set(fetchCtx, cacheKey, entry); err != nil {
				logger.Warn().Err(err).Msg("role token: cache write failed")
			}
		}

		return token, nil
	})
	if err != nil {
		tokenErr := err.(*Error)
		logger.Warn().
			Err(tokenErr.Cause()).
			Str("class", tokenErr.Class.Error()).
			Str("role", r.String()).
			Msg("role token: fetch failed")
		return "", tokenErr
	}

	logger.Info().Str("role", r.String()).Bool("shared", shared).Msg("role token: fetched")
	return v.(string), nil
}

// Peek returns the cached token without fetching. A token issued for a role
// other than the active role is not returned.
func (c *Cache) Peek(ctx context.Context) (CachedToken, bool) {
	cached, found, err := c.store.Get(ctx, cacheKey)
	if err != nil || !found || cached.ScopeRole != c.roles.Role() {
		return CachedToken{}, false
	}
	return cached, true
}

// Invalidate discards the cached token. It is idempotent.
func (c *Cache) Invalidate(ctx context.Context, reason string) {
	c.generation.Add(1)

	if err := c.store.Invalidate(cache.WithReason(ctx, reason), cacheKey); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("reason", reason).Msg("role token: invalidation failed")
		return
	}

	log.Ctx(ctx).Info().Str("reason", reason).Msg("role token: invalidated")
}

// Describe labels cache metrics with the role a token was issued for.
func Describe(t CachedToken) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String("token.scope_role", t.ScopeRole.String())}
}

// Subscriber publishes session changes.
type Subscriber interface {
	Subscribe(fn func(rolestore.Session)) (unsubscribe func())
}

// Follow invalidates the cache whenever the active role published by s
// changes.
func (c *Cache) Follow(s Subscriber) (unsubscribe func()) {
	c.followMu.Lock()
	c.followRole = c.roles.Role()
	c.followMu.Unlock()

	return s.Subscribe(func(session rolestore.Session) {
		c.followMu.Lock()
		changed := session.ActiveRole != c.followRole
		c.followRole = session.ActiveRole
		c.followMu.Unlock()

		if changed {
			c.Invalidate(context.Background(), ReasonRoleChanged)
		}
	})
}
