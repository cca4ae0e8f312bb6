package storage_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/chinmina/ocpi-console/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile_GetMissing(t *testing.T) {
	s, err := storage.NewFile(filepath.Join(t.TempDir(), "nested", "storage.json"))
	require.NoError(t, err)

	v, ok, err := s.Get(storage.KeyRole)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestFile_SetSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")

	s, err := storage.NewFile(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(storage.KeyRole, "EMSP"))
	require.NoError(t, s.Set(storage.KeyAvailableRoles, `["CPO","EMSP"]`))

	reopened, err := storage.NewFile(path)
	require.NoError(t, err)

	v, ok, err := reopened.Get(storage.KeyRole)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "EMSP", v)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFile_Remove(t *testing.T) {
	s, err := storage.NewFile(filepath.Join(t.TempDir(), "storage.json"))
	require.NoError(t, err)

	require.NoError(t, s.Set(storage.KeyAccessToken, "a"))
	require.NoError(t, s.Set(storage.KeyRefreshToken, "r"))
	require.NoError(t, s.Set(storage.KeyRole, "CPO"))

	require.NoError(t, s.Remove(storage.KeyAccessToken, storage.KeyRefreshToken, "never-set"))

	_, ok, err := s.Get(storage.KeyAccessToken)
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err := s.Get(storage.KeyRole)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "CPO", v)
}

func TestFile_CorruptFileIsReplaced(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		kept     map[string]string
	}{
		{
			name:     "not json",
			contents: "{not json",
			kept:     map[string]string{},
		},
		{
			name:     "not an object",
			contents: `["CPO"]`,
			kept:     map[string]string{},
		},
		{
			name:     "wrongly typed entry",
			contents: `{"role": 7, "access": "access-1"}`,
			kept:     map[string]string{storage.KeyAccessToken: "access-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "storage.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.contents), 0600))

			s, err := storage.NewFile(path)
			require.NoError(t, err)

			_, found, err := s.Get(storage.KeyRole)
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, s.Set(storage.KeyRole, "EMSP"))

			reopened, err := storage.NewFile(path)
			require.NoError(t, err)
			v, found, err := reopened.Get(storage.KeyRole)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "EMSP", v)

			for k, want := range tt.kept {
				got, found, err := reopened.Get(k)
				require.NoError(t, err)
				assert.True(t, found, k)
				assert.Equal(t, want, got)
			}

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			var values map[string]string
			assert.NoError(t, json.Unmarshal(data, &values), "file is valid again")
		})
	}
}

func TestFile_CorruptFileRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"role": 7}`), 0600))

	s, err := storage.NewFile(path)
	require.NoError(t, err)

	assert.NoError(t, s.Remove(storage.KeyRole, storage.KeyAccessToken))
}

func TestMemory_RoundTrip(t *testing.T) {
	s := storage.NewMemory()

	require.NoError(t, s.Set("k", "v"))
	v, ok, err := s.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, s.Remove("k"))
	_, ok, err = s.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}
