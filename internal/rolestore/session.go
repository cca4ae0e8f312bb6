package rolestore

import (
	"slices"
	"time"

	"github.com/chinmina/ocpi-console/internal/role"
	"github.com/rs/zerolog"
)

// Session is a snapshot of the role state held by the Store.
type Session struct {
	ActiveRole     role.Role      `json:"activeRole,omitempty" yaml:"activeRole,omitempty"`
	AvailableRoles []role.Role    `json:"availableRoles" yaml:"availableRoles"`
	Party          *role.PartyRef `json:"party,omitempty" yaml:"party,omitempty"`
	LastSyncedAt   time.Time      `json:"lastSyncedAt,omitzero" yaml:"lastSyncedAt,omitempty"`
}

// HasActiveRole reports whether a valid role is active.
func (s Session) HasActiveRole() bool {
	return s.ActiveRole.IsValid()
}

// Synced reports whether the session has been confirmed by the backend.
func (s Session) Synced() bool {
	return !s.LastSyncedAt.IsZero()
}

func (s Session) clone() Session {
	s.AvailableRoles = slices.Clone(s.AvailableRoles)
	if s.Party != nil {
		p := *s.Party
		s.Party = &p
	}
	return s
}

func (s Session) MarshalZerologObject(e *zerolog.Event) {
	e.Str("activeRole", s.ActiveRole.String())

	roles := make([]string, 0, len(s.AvailableRoles))
	for _, r := range s.AvailableRoles {
		roles = append(roles, r.String())
	}
	e.Strs("availableRoles", roles)

	if s.Party != nil {
		e.Str("party", s.Party.String())
	}
	if s.Synced() {
		e.Time("lastSyncedAt", s.LastSyncedAt)
	}
}
