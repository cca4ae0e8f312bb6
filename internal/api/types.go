package api

import (
	"github.com/chinmina/ocpi-console/internal/role"
)

// RoleState is the backend's authoritative view of the user's roles. Role
// values are passed through unvalidated: callers must validate them before
// use.
type RoleState struct {
	ActiveRole     string         `json:"active_role"`
	AvailableRoles []string       `json:"available_roles"`
	Party          *role.PartyRef `json:"party"`
}

type setRoleRequest struct {
	Role role.Role `json:"role"`
}

type activeTokenResponse struct {
	Token string `json:"token"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access string `json:"access"`
}
