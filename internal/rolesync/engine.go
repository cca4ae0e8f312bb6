package rolesync

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chinmina/ocpi-console/internal/api"
	"github.com/chinmina/ocpi-console/internal/role"
	"github.com/chinmina/ocpi-console/internal/rolestore"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Reasons passed to the token invalidator.
const (
	reasonSyncRequested = "sync-requested"
	reasonLogout        = "logout"
)

// Backend is the authority on the user's roles.
type Backend interface {
	GetRole(ctx context.Context) (api.RoleState, error)
	PutRole(ctx context.Context, r role.Role) (api.RoleState, error)
	DeleteRole(ctx context.Context) error
}

// TokenInvalidator discards the role-scoped token.
type TokenInvalidator interface {
	Invalidate(ctx context.Context, reason string)
}

// Engine reconciles the local role store with the backend. Syncs only happen
// on request: there is no background polling. At most one sync runs at a
// time, and requests arriving while one is running are dropped rather than
// queued.
type Engine struct {
	backend Backend
	store   *rolestore.Store
	tokens  TokenInvalidator
	now     func() time.Time
	tracer  trace.Tracer

	// inFlight is the single-flight guard, checked before any work starts.
	inFlight atomic.Bool

	mu       sync.Mutex
	state    State
	attempts int
	target   role.Role

	subMu       sync.Mutex
	subscribers map[uint64]*subscription
	nextSub     uint64
}

type subscription struct {
	fn     func(Status)
	active atomic.Bool
}

func New(backend Backend, store *rolestore.Store, tokens TokenInvalidator) *Engine {
	initMetrics()

	return &Engine{
		backend:     backend,
		store:       store,
		tokens:      tokens,
		now:         time.Now,
		tracer:      otel.Tracer("github.com/chinmina/ocpi-console/internal/rolesync"),
		subscribers: map[uint64]*subscription{},
	}
}

// Status returns the current state and attempt count.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Status{State: e.state, Attempts: e.attempts}
}

func (e *Engine) State() State {
	return e.Status().State
}

// Attempts is the number of consecutive failed syncs.
func (e *Engine) Attempts() int {
	return e.Status().Attempts
}

// RequestSync is an explicit request to reconcile the active role with the
// backend. target selects the role to commit; when empty, the current local
// role is re-committed, or if there is none the backend's view is adopted.
//
// The attempt counter is reset, so this is always eligible to run unless
// another sync is in flight.
func (e *Engine) RequestSync(ctx context.Context, target string) Result {
	var r role.Role
	if target != "" {
		var ok bool
		r, ok = role.Validate(target)
		if !ok {
			log.Ctx(ctx).Warn().Str("target", target).Msg("role sync: rejected invalid target role")
			return Result{Outcome: OutcomeRejected, Attempts: e.Status().Attempts, Session: e.store.Session(), Err: ErrInvalidRole}
		}
	}

	return e.run(ctx, "explicit", func() (role.Role, bool) {
		e.attempts = 0
		e.target = r
		return r, true
	})
}

// Retry repeats the last requested sync without resetting the attempt
// counter. Once MaxAttempts consecutive syncs have failed it does nothing and
// reports OutcomeExhausted.
func (e *Engine) Retry(ctx context.Context) Result {
	return e.run(ctx, "retry", func() (role.Role, bool) {
		return e.target, e.attempts < MaxAttempts
	})
}

// run executes one sync under the single-flight guard. begin is called with
// e.mu held and decides the target and whether the sync may proceed.
func (e *Engine) run(ctx context.Context, kind string, begin func() (role.Role, bool)) Result {
	logger := log.Ctx(ctx)

	if !e.inFlight.CompareAndSwap(false, true) {
		logger.Info().Str("kind", kind).Msg("role sync: already in progress, request dropped")
		recordOutcome(ctx, kind, OutcomeDropped)
		return Result{Outcome: OutcomeDropped, Attempts: e.Status().Attempts, Session: e.store.Session()}
	}

	var (
		result  Result
		updates []Status
	)
	func() {
		defer e.inFlight.Store(false)

		e.mu.Lock()
		target, proceed := begin()
		attempts := e.attempts
		e.mu.Unlock()

		if !proceed {
			logger.Info().Int("attempts", attempts).Msg("role sync: retries exhausted, waiting for explicit request")
			result = Result{Outcome: OutcomeExhausted, Attempts: attempts, Session: e.store.Session(), Err: ErrExhausted}
			return
		}

		updates = append(updates, e.transition(SyncRequested), e.transition(Syncing))
		result = e.sync(ctx, target)
		updates = append(updates, e.complete(result)...)
	}()

	recordOutcome(ctx, kind, result.Outcome)
	for _, s := range updates {
		e.publish(s)
	}

	return result
}

// sync performs the backend exchange and applies its result to the store.
func (e *Engine) sync(ctx context.Context, target role.Role) Result {
	ctx, span := e.tracer.Start(ctx, "role_sync")
	defer span.End()

	logger := log.Ctx(ctx)

	// the role may be about to change: the token must not outlive it
	e.tokens.Invalidate(ctx, reasonSyncRequested)

	if !target.IsValid() {
		target = e.store.Role()
	}

	var (
		state api.RoleState
		err   error
	)
	if target.IsValid() {
		span.SetAttributes(attribute.String("role.target", target.String()))
		state, err = e.backend.PutRole(ctx, target)
	} else {
		state, err = e.backend.GetRole(ctx)
	}

	if err == nil {
		e.apply(ctx, state)
		span.SetStatus(codes.Ok, "role synced")

		e.mu.Lock()
		e.attempts = 0
		e.mu.Unlock()

		session := e.store.Session()
		logger.Info().Object("session", session).Msg("role sync: succeeded")
		return Result{Outcome: OutcomeSucceeded, Session: session}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "role sync failed")

	if api.IsAuthFailure(err) {
		logger.Warn().Err(err).Msg("role sync: not authorized, resetting to default role")
		e.store.ResetToDefault(ctx)

		e.mu.Lock()
		e.attempts = MaxAttempts
		e.mu.Unlock()

		return Result{Outcome: OutcomeAuthFailed, Attempts: MaxAttempts, Session: e.store.Session(), Err: ErrNotAuthorized}
	}

	e.mu.Lock()
	if e.attempts < MaxAttempts {
		e.attempts++
	}
	attempts := e.attempts
	e.mu.Unlock()

	outcome, classified := OutcomeFailed, ErrUnavailable
	if api.IsStatus(err, http.StatusBadRequest) {
		outcome, classified = OutcomeRejected, ErrInvalidRole
	}

	logger.Warn().Err(err).
		Int("attempts", attempts).
		Str("outcome", outcome.String()).
		Msg("role sync: failed, keeping local role")

	return Result{Outcome: outcome, Attempts: attempts, Session: e.store.Session(), Err: classified}
}

// apply adopts the backend's view of the roles. Values failing validation
// are ignored by the store.
func (e *Engine) apply(ctx context.Context, state api.RoleState) {
	e.store.SetAvailableRoles(ctx, state.AvailableRoles)

	if state.ActiveRole != "" {
		if _, ok := role.Validate(state.ActiveRole); ok {
			e.store.SetRole(ctx, state.ActiveRole)
		} else {
			log.Ctx(ctx).Warn().Str("activeRole", state.ActiveRole).Msg("role sync: backend reported invalid active role")
		}
	}

	e.store.MarkSynced(ctx, state.Party, e.now())
}

// complete moves the engine to its post-sync state. Failed(MaxAttempts) is
// held until an explicit request; other outcomes return to Idle.
func (e *Engine) complete(result Result) []Status {
	switch result.Outcome {
	case OutcomeSucceeded:
		return []Status{e.transition(Succeeded), e.transition(Idle)}
	default:
		failed := e.transition(Failed)
		if failed.Exhausted() {
			return []Status{failed}
		}
		return []Status{failed, e.transition(Idle)}
	}
}

func (e *Engine) transition(to State) Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = to
	return Status{State: e.state, Attempts: e.attempts}
}

// EnsureRoleIsSet makes sure a valid role is active. If none is, the
// backend's active role is adopted, or failing that the first role available
// to the user is committed. It returns false, and never fails otherwise, when
// no role could be established, leaving the choice to the user.
func (e *Engine) EnsureRoleIsSet(ctx context.Context) (ok bool) {
	logger := log.Ctx(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Warn().Interface("panic", r).Msg("role sync: ensure role panicked, recovered")
			ok = false
		}
	}()

	if e.store.Session().HasActiveRole() {
		return true
	}

	ctx, span := e.tracer.Start(ctx, "ensure_role")
	defer span.End()

	state, err := e.backend.GetRole(ctx)
	if err != nil {
		span.RecordError(err)
		logger.Warn().Err(err).Msg("role sync: could not read role from backend")
		return false
	}

	if _, valid := role.Validate(state.ActiveRole); valid {
		e.apply(ctx, state)
		logger.Info().Str("role", e.store.Role().String()).Msg("role sync: adopted backend role")
		return e.store.Role().IsValid()
	}

	available, _ := role.ParseAll(state.AvailableRoles)
	if len(available) == 0 {
		logger.Info().Msg("role sync: no roles available, manual selection required")
		return false
	}

	first := available[0]
	e.tokens.Invalidate(ctx, reasonSyncRequested)

	committed, err := e.backend.PutRole(ctx, first)
	if err != nil {
		span.RecordError(err)
		logger.Warn().Err(err).Str("role", first.String()).Msg("role sync: could not select first available role")
		return false
	}

	if committed.ActiveRole == "" {
		committed.ActiveRole = first.String()
	}
	if len(committed.AvailableRoles) == 0 {
		committed.AvailableRoles = state.AvailableRoles
	}
	e.apply(ctx, committed)

	logger.Info().Str("role", e.store.Role().String()).Msg("role sync: selected first available role")
	return e.store.Role().IsValid()
}

// Logout clears the role on the backend and forgets it locally. Local state
// is cleared even if the backend call fails.
func (e *Engine) Logout(ctx context.Context) error {
	err := e.backend.DeleteRole(ctx)

	e.tokens.Invalidate(ctx, reasonLogout)
	e.store.Clear(ctx)

	e.mu.Lock()
	e.attempts = 0
	e.target = ""
	e.mu.Unlock()
	e.publish(e.transition(Idle))

	if err != nil {
		return fmt.Errorf("could not clear role on backend: %w", err)
	}
	return nil
}

// Subscribe registers fn to receive every state transition. The returned
// function unregisters it, and may be called from within fn; no calls start
// after it returns.
func (e *Engine) Subscribe(fn func(Status)) (unsubscribe func()) {
	sub := &subscription{fn: fn}
	sub.active.Store(true)

	e.subMu.Lock()
	defer e.subMu.Unlock()

	id := e.nextSub
	e.nextSub++
	e.subscribers[id] = sub

	return func() {
		sub.active.Store(false)

		e.subMu.Lock()
		defer e.subMu.Unlock()
		delete(e.subscribers, id)
	}
}

func (e *Engine) publish(s Status) {
	e.subMu.Lock()
	subs := slices.Collect(maps.Values(e.subscribers))
	e.subMu.Unlock()

	for _, sub := range subs {
		if sub.active.Load() {
			sub.fn(s)
		}
	}
}

var (
	metricsOnce  sync.Once
	syncOutcomes metric.Int64Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/chinmina/ocpi-console/internal/rolesync")

		var err error
		syncOutcomes, err = meter.Int64Counter(
			"rolesync.outcomes",
			metric.WithDescription("Role sync requests by kind and outcome"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

func recordOutcome(ctx context.Context, kind string, outcome Outcome) {
	if syncOutcomes == nil {
		return
	}
	syncOutcomes.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("rolesync.kind", kind),
			attribute.String("rolesync.outcome", outcome.String()),
		),
	)
}
