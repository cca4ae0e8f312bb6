package credentials

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chinmina/ocpi-console/internal/storage"
)

// ErrNotLoggedIn is returned when no primary credential is stored.
var ErrNotLoggedIn = errors.New("not logged in")

// Credential is the primary bearer/refresh token pair authenticating the
// user session. It is unrelated to the role-scoped token.
type Credential struct {
	AccessToken  string
	RefreshToken string
}

// Store persists the primary credential.
type Store struct {
	mu      sync.RWMutex
	storage storage.Store
}

func NewStore(st storage.Store) *Store {
	return &Store{storage: st}
}

// Load returns the stored credential, or ErrNotLoggedIn when there is no
// access token.
func (s *Store) Load() (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	access, found, err := s.storage.Get(storage.KeyAccessToken)
	if err != nil {
		return Credential{}, fmt.Errorf("failed to read access token: %w", err)
	}
	if !found || access == "" {
		return Credential{}, ErrNotLoggedIn
	}

	refresh, _, err := s.storage.Get(storage.KeyRefreshToken)
	if err != nil {
		return Credential{}, fmt.Errorf("failed to read refresh token: %w", err)
	}

	return Credential{AccessToken: access, RefreshToken: refresh}, nil
}

// AccessToken returns the stored access token, or "" if none is available.
func (s *Store) AccessToken() string {
	c, err := s.Load()
	if err != nil {
		return ""
	}
	return c.AccessToken
}

// RefreshToken returns the stored refresh token, or "" if none is available.
func (s *Store) RefreshToken() string {
	c, err := s.Load()
	if err != nil {
		return ""
	}
	return c.RefreshToken
}

// Save stores a complete credential, as on login.
func (s *Store) Save(c Credential) error {
	if c.AccessToken == "" {
		return errors.New("access token must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Set(storage.KeyAccessToken, c.AccessToken); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}

	if c.RefreshToken == "" {
		return s.storage.Remove(storage.KeyRefreshToken)
	}
	if err := s.storage.Set(storage.KeyRefreshToken, c.RefreshToken); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}

	return nil
}

// Rotate replaces the access token after a refresh, keeping the refresh token.
func (s *Store) Rotate(access string) error {
	if access == "" {
		return errors.New("access token must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Set(storage.KeyAccessToken, access); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	return nil
}

// Clear removes the credential, as on logout.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.storage.Remove(storage.KeyAccessToken, storage.KeyRefreshToken)
}
