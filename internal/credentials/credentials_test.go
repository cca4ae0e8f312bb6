package credentials_test

import (
	"testing"
	"time"

	"github.com/chinmina/ocpi-console/internal/credentials"
	"github.com/chinmina/ocpi-console/internal/storage"
	"github.com/chinmina/ocpi-console/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_NotLoggedIn(t *testing.T) {
	s := credentials.NewStore(storage.NewMemory())

	_, err := s.Load()

	assert.ErrorIs(t, err, credentials.ErrNotLoggedIn)
	assert.Empty(t, s.AccessToken())
	assert.Empty(t, s.RefreshToken())
}

func TestSaveAndLoad(t *testing.T) {
	st := storage.NewMemory()
	s := credentials.NewStore(st)

	require.NoError(t, s.Save(credentials.Credential{AccessToken: "a", RefreshToken: "r"}))

	c, err := credentials.NewStore(st).Load()
	require.NoError(t, err)
	assert.Equal(t, credentials.Credential{AccessToken: "a", RefreshToken: "r"}, c)
}

func TestSave_WithoutRefreshRemovesStaleRefresh(t *testing.T) {
	s := credentials.NewStore(storage.NewMemory())
	require.NoError(t, s.Save(credentials.Credential{AccessToken: "a", RefreshToken: "r"}))

	require.NoError(t, s.Save(credentials.Credential{AccessToken: "b"}))

	assert.Equal(t, "b", s.AccessToken())
	assert.Empty(t, s.RefreshToken())
}

func TestSave_RequiresAccessToken(t *testing.T) {
	s := credentials.NewStore(storage.NewMemory())

	assert.Error(t, s.Save(credentials.Credential{RefreshToken: "r"}))
}

func TestRotate_KeepsRefreshToken(t *testing.T) {
	s := credentials.NewStore(storage.NewMemory())
	require.NoError(t, s.Save(credentials.Credential{AccessToken: "a", RefreshToken: "r"}))

	require.NoError(t, s.Rotate("a2"))

	assert.Equal(t, "a2", s.AccessToken())
	assert.Equal(t, "r", s.RefreshToken())
}

func TestClear(t *testing.T) {
	s := credentials.NewStore(storage.NewMemory())
	require.NoError(t, s.Save(credentials.Credential{AccessToken: "a", RefreshToken: "r"}))

	require.NoError(t, s.Clear())

	_, err := s.Load()
	assert.ErrorIs(t, err, credentials.ErrNotLoggedIn)
}

func TestDescribe(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("valid token", func(t *testing.T) {
		expiry := now.Add(30 * time.Minute)
		token := testhelpers.CreateAccessToken(t, "user-42", expiry)

		d, err := credentials.Describe(token, now)

		require.NoError(t, err)
		assert.Equal(t, "user-42", d.Subject)
		assert.Equal(t, "https://console.example.test", d.Issuer)
		assert.True(t, d.ExpiresAt.Equal(expiry))
		assert.False(t, d.Expired)
	})

	t.Run("expired token", func(t *testing.T) {
		token := testhelpers.CreateAccessToken(t, "user-42", now.Add(-time.Minute))

		d, err := credentials.Describe(token, now)

		require.NoError(t, err)
		assert.True(t, d.Expired)
	})

	t.Run("opaque token", func(t *testing.T) {
		_, err := credentials.Describe("opaque-access-token", now)

		assert.ErrorContains(t, err, "not a readable JWT")
	})
}
