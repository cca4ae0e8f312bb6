package rolestore

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chinmina/ocpi-console/internal/role"
	"github.com/chinmina/ocpi-console/internal/storage"
	"github.com/rs/zerolog/log"
)

// Store owns the active role and the roles available to the user, persisting
// both to local storage. It is a best-effort local cache: no method returns
// an error, and invalid input is logged and ignored.
//
// A single Store is shared by every consumer in the process so that all
// observe the same role.
type Store struct {
	mu          sync.RWMutex
	storage     storage.Store
	defaultRole role.Role
	session     Session

	subMu       sync.Mutex
	subscribers map[uint64]*subscription
	nextSub     uint64
}

type subscription struct {
	fn     func(Session)
	active atomic.Bool
}

type Option func(*Store)

// WithDefaultRole overrides the role used when the persisted value is
// corrupt. Invalid roles are ignored.
func WithDefaultRole(r role.Role) Option {
	return func(s *Store) {
		if r.IsValid() {
			s.defaultRole = r
		}
	}
}

func New(st storage.Store, opts ...Option) *Store {
	s := &Store{
		storage:     st,
		defaultRole: role.Default,
		subscribers: map[uint64]*subscription{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultRole is the role adopted when local state must be reset.
func (s *Store) DefaultRole() role.Role {
	return s.defaultRole
}

// Initialize loads the session from storage. A persisted role that fails
// validation is replaced with the default role, and the replacement is
// written back.
func (s *Store) Initialize(ctx context.Context) Session {
	logger := log.Ctx(ctx)

	var session Session

	persisted, found, err := s.storage.Get(storage.KeyRole)
	if err != nil {
		logger.Warn().Err(err).Msg("role store: could not read persisted role")
	}

	if found {
		if r, ok := role.Validate(persisted); ok {
			session.ActiveRole = r
			if string(r) != persisted {
				s.persist(ctx, storage.KeyRole, string(r))
			}
		} else {
			logger.Warn().
				Str("persisted", persisted).
				Str("default", s.defaultRole.String()).
				Msg("role store: persisted role invalid, resetting to default")
			session.ActiveRole = s.defaultRole
			s.persist(ctx, storage.KeyRole, string(s.defaultRole))
		}
	}

	session.AvailableRoles = s.loadAvailableRoles(ctx)

	s.mu.Lock()
	s.session = session
	snapshot := s.session.clone()
	s.mu.Unlock()

	logger.Debug().Object("session", snapshot).Msg("role store: initialized")
	s.publish(snapshot)

	return snapshot
}

func (s *Store) loadAvailableRoles(ctx context.Context) []role.Role {
	logger := log.Ctx(ctx)

	raw, found, err := s.storage.Get(storage.KeyAvailableRoles)
	if err != nil {
		logger.Warn().Err(err).Msg("role store: could not read persisted available roles")
		return nil
	}
	if !found {
		return nil
	}

	var candidates []string
	if err := json.Unmarshal([]byte(raw), &candidates); err != nil {
		logger.Warn().Err(err).Msg("role store: persisted available roles corrupt, discarding")
		s.remove(ctx, storage.KeyAvailableRoles)
		return nil
	}

	valid, rejected := role.ParseAll(candidates)
	if len(rejected) > 0 {
		logger.Warn().Strs("rejected", rejected).Msg("role store: ignoring invalid persisted available roles")
	}

	return valid
}

// Validate checks candidate against the role vocabulary.
func (s *Store) Validate(candidate string) (role.Role, bool) {
	return role.Validate(candidate)
}

// Role returns the active role, or the empty role if none is set.
func (s *Store) Role() role.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.session.ActiveRole
}

// Session returns a copy of the current session.
func (s *Store) Session() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.session.clone()
}

// SetRole makes candidate the active role. Invalid candidates, and roles
// outside a known set of available roles, are logged and leave the state
// unchanged.
func (s *Store) SetRole(ctx context.Context, candidate string) {
	logger := log.Ctx(ctx)

	r, ok := role.Validate(candidate)
	if !ok {
		logger.Warn().Str("candidate", candidate).Msg("role store: rejected invalid role")
		return
	}

	s.mu.Lock()
	if len(s.session.AvailableRoles) > 0 && !role.Contains(s.session.AvailableRoles, r) {
		s.mu.Unlock()
		logger.Warn().Str("candidate", r.String()).Msg("role store: rejected role not available to user")
		return
	}
	changed := s.session.ActiveRole != r
	s.session.ActiveRole = r
	snapshot := s.session.clone()
	s.mu.Unlock()

	s.persist(ctx, storage.KeyRole, string(r))

	if changed {
		logger.Info().Str("role", r.String()).Msg("role store: active role changed")
		s.publish(snapshot)
	}
}

// SetAvailableRoles replaces the set of roles available to the user. Empty
// input, or input with no valid roles, is ignored.
func (s *Store) SetAvailableRoles(ctx context.Context, candidates []string) {
	if len(candidates) == 0 {
		return
	}

	logger := log.Ctx(ctx)

	valid, rejected := role.ParseAll(candidates)
	if len(rejected) > 0 {
		logger.Warn().Strs("rejected", rejected).Msg("role store: ignoring invalid available roles")
	}
	if len(valid) == 0 {
		return
	}

	s.mu.Lock()
	changed := !slices.Equal(s.session.AvailableRoles, valid)
	s.session.AvailableRoles = valid
	snapshot := s.session.clone()
	s.mu.Unlock()

	encoded, err := json.Marshal(valid)
	if err != nil {
		logger.Warn().Err(err).Msg("role store: could not encode available roles")
	} else {
		s.persist(ctx, storage.KeyAvailableRoles, string(encoded))
	}

	if changed {
		s.publish(snapshot)
	}
}

// MarkSynced records the party confirmed by the backend and the time of the
// confirmation.
func (s *Store) MarkSynced(ctx context.Context, party *role.PartyRef, at time.Time) {
	s.mu.Lock()
	if party != nil {
		p := *party
		party = &p
	}
	s.session.Party = party
	s.session.LastSyncedAt = at
	snapshot := s.session.clone()
	s.mu.Unlock()

	log.Ctx(ctx).Debug().Object("session", snapshot).Msg("role store: synced")
	s.publish(snapshot)
}

// ResetToDefault removes the persisted role and makes the default role active
// in memory only, so a later start does not trust it.
func (s *Store) ResetToDefault(ctx context.Context) {
	s.remove(ctx, storage.KeyRole)

	s.mu.Lock()
	s.session.ActiveRole = s.defaultRole
	s.session.Party = nil
	s.session.LastSyncedAt = time.Time{}
	snapshot := s.session.clone()
	s.mu.Unlock()

	log.Ctx(ctx).Info().Str("role", s.defaultRole.String()).Msg("role store: reset to default role")
	s.publish(snapshot)
}

// Clear forgets all role state, in memory and in storage. Used on logout.
func (s *Store) Clear(ctx context.Context) {
	s.remove(ctx, storage.KeyRole, storage.KeyAvailableRoles)

	s.mu.Lock()
	s.session = Session{}
	snapshot := s.session.clone()
	s.mu.Unlock()

	log.Ctx(ctx).Info().Msg("role store: cleared")
	s.publish(snapshot)
}

// Subscribe registers fn to receive a snapshot after every change. The
// returned function unregisters it, and may be called from within fn; no
// calls start after it returns.
// fn runs synchronously and must not modify the Store.
func (s *Store) Subscribe(fn func(Session)) (unsubscribe func()) {
	sub := &subscription{fn: fn}
	sub.active.Store(true)

	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = sub

	return func() {
		sub.active.Store(false)

		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *Store) publish(snapshot Session) {
	s.subMu.Lock()
	subs := slices.Collect(maps.Values(s.subscribers))
	s.subMu.Unlock()

	for _, sub := range subs {
		if sub.active.Load() {
			sub.fn(snapshot.clone())
		}
	}
}

func (s *Store) persist(ctx context.Context, key, value string) {
	if err := s.storage.Set(key, value); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("role store: persist failed")
	}
}

func (s *Store) remove(ctx context.Context, keys ...string) {
	if err := s.storage.Remove(keys...); err != nil {
		log.Ctx(ctx).Warn().Err(err).Strs("keys", keys).Msg("role store: remove failed")
	}
}
