package rolestore_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chinmina/ocpi-console/internal/role"
	"github.com/chinmina/ocpi-console/internal/rolestore"
	"github.com/chinmina/ocpi-console/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_CorruptFileRecovers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"role": 7}`), 0600))
	st, err := storage.NewFile(path)
	require.NoError(t, err)

	s := rolestore.New(st)
	assert.Equal(t, rolestore.Session{}, s.Initialize(context.Background()))

	s.SetRole(context.Background(), "EMSP")

	reloaded := rolestore.New(st).Initialize(context.Background())
	assert.Equal(t, role.EMSP, reloaded.ActiveRole)
}

func TestInitialize_Empty(t *testing.T) {
	st := storage.NewMemory()
	s := rolestore.New(st)

	session := s.Initialize(context.Background())

	assert.Equal(t, rolestore.Session{}, session)
	_, found, _ := st.Get(storage.KeyRole)
	assert.False(t, found, "no role should be invented when none was persisted")
}

func TestInitialize_ValidPersistedRole(t *testing.T) {
	st := storage.NewMemory()
	require.NoError(t, st.Set(storage.KeyRole, "EMSP"))
	require.NoError(t, st.Set(storage.KeyAvailableRoles, `["CPO","EMSP"]`))

	session := rolestore.New(st).Initialize(context.Background())

	assert.Equal(t, role.EMSP, session.ActiveRole)
	assert.Equal(t, []role.Role{role.CPO, role.EMSP}, session.AvailableRoles)
}

func TestInitialize_NormalizesCase(t *testing.T) {
	st := storage.NewMemory()
	require.NoError(t, st.Set(storage.KeyRole, "emsp"))

	session := rolestore.New(st).Initialize(context.Background())

	assert.Equal(t, role.EMSP, session.ActiveRole)
	persisted, _, _ := st.Get(storage.KeyRole)
	assert.Equal(t, "EMSP", persisted)
}

func TestInitialize_RepairsCorruptRole(t *testing.T) {
	tests := []struct {
		name      string
		persisted string
	}{
		{name: "unknown vocabulary", persisted: "ADMIN"},
		{name: "too long", persisted: "CPO-OPERATOR-1"},
		{name: "empty", persisted: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := storage.NewMemory()
			require.NoError(t, st.Set(storage.KeyRole, tt.persisted))

			session := rolestore.New(st).Initialize(context.Background())

			assert.Equal(t, role.CPO, session.ActiveRole)
			persisted, found, _ := st.Get(storage.KeyRole)
			assert.True(t, found)
			assert.Equal(t, "CPO", persisted)
		})
	}
}

func TestInitialize_RepairsWithConfiguredDefault(t *testing.T) {
	st := storage.NewMemory()
	require.NoError(t, st.Set(storage.KeyRole, "nonsense"))

	session := rolestore.New(st, rolestore.WithDefaultRole(role.EMSP)).Initialize(context.Background())

	assert.Equal(t, role.EMSP, session.ActiveRole)
}

func TestInitialize_CorruptAvailableRoles(t *testing.T) {
	st := storage.NewMemory()
	require.NoError(t, st.Set(storage.KeyAvailableRoles, `{"not":"an array"}`))

	session := rolestore.New(st).Initialize(context.Background())

	assert.Empty(t, session.AvailableRoles)
	_, found, _ := st.Get(storage.KeyAvailableRoles)
	assert.False(t, found, "corrupt value should be removed")
}

func TestInitialize_FiltersInvalidAvailableRoles(t *testing.T) {
	st := storage.NewMemory()
	require.NoError(t, st.Set(storage.KeyAvailableRoles, `["emsp","hub","EMSP"]`))

	session := rolestore.New(st).Initialize(context.Background())

	assert.Equal(t, []role.Role{role.EMSP}, session.AvailableRoles)
}

func TestSetRole_RejectsInvalidCandidates(t *testing.T) {
	candidates := []string{"", "HUB", "NSP", "cpo-extended", "EMSPEMSPEMSP", "C P O", "CPOEMSP"}

	for _, candidate := range candidates {
		t.Run(candidate, func(t *testing.T) {
			st := storage.NewMemory()
			s := rolestore.New(st)
			s.Initialize(context.Background())
			s.SetRole(context.Background(), "EMSP")

			s.SetRole(context.Background(), candidate)

			assert.Equal(t, role.EMSP, s.Role())
			persisted, _, _ := st.Get(storage.KeyRole)
			assert.Equal(t, "EMSP", persisted)
		})
	}
}

func TestSetRole_RoundTripThroughStorage(t *testing.T) {
	st := storage.NewMemory()
	s := rolestore.New(st)
	s.Initialize(context.Background())

	s.SetRole(context.Background(), "CPO")

	reloaded := rolestore.New(st).Initialize(context.Background())
	assert.Equal(t, role.CPO, reloaded.ActiveRole)
}

func TestSetRole_CaseInsensitive(t *testing.T) {
	s := rolestore.New(storage.NewMemory())

	s.SetRole(context.Background(), "emsp")

	assert.Equal(t, role.EMSP, s.Role())
}

func TestSetRole_RejectsRoleOutsideAvailable(t *testing.T) {
	s := rolestore.New(storage.NewMemory())
	s.SetAvailableRoles(context.Background(), []string{"CPO"})
	s.SetRole(context.Background(), "CPO")

	s.SetRole(context.Background(), "EMSP")

	assert.Equal(t, role.CPO, s.Role())
}

func TestSetRole_PersistFailureStillUpdatesMemory(t *testing.T) {
	s := rolestore.New(failingStorage{})

	s.SetRole(context.Background(), "EMSP")

	assert.Equal(t, role.EMSP, s.Role())
}

func TestSetAvailableRoles(t *testing.T) {
	t.Run("ignores nil", func(t *testing.T) {
		s := rolestore.New(storage.NewMemory())
		s.SetAvailableRoles(context.Background(), []string{"CPO"})

		s.SetAvailableRoles(context.Background(), nil)

		assert.Equal(t, []role.Role{role.CPO}, s.Session().AvailableRoles)
	})

	t.Run("ignores empty", func(t *testing.T) {
		s := rolestore.New(storage.NewMemory())
		s.SetAvailableRoles(context.Background(), []string{"CPO"})

		s.SetAvailableRoles(context.Background(), []string{})

		assert.Equal(t, []role.Role{role.CPO}, s.Session().AvailableRoles)
	})

	t.Run("ignores all-invalid", func(t *testing.T) {
		s := rolestore.New(storage.NewMemory())
		s.SetAvailableRoles(context.Background(), []string{"EMSP"})

		s.SetAvailableRoles(context.Background(), []string{"HUB", "NAP"})

		assert.Equal(t, []role.Role{role.EMSP}, s.Session().AvailableRoles)
	})

	t.Run("replaces and persists", func(t *testing.T) {
		st := storage.NewMemory()
		s := rolestore.New(st)

		s.SetAvailableRoles(context.Background(), []string{"emsp", "CPO", "EMSP"})

		assert.Equal(t, []role.Role{role.EMSP, role.CPO}, s.Session().AvailableRoles)
		persisted, _, _ := st.Get(storage.KeyAvailableRoles)
		assert.JSONEq(t, `["EMSP","CPO"]`, persisted)
	})
}

func TestResetToDefault(t *testing.T) {
	st := storage.NewMemory()
	s := rolestore.New(st)
	s.SetRole(context.Background(), "EMSP")
	s.MarkSynced(context.Background(), &role.PartyRef{CountryCode: "NL", PartyID: "ABC"}, time.Now())

	s.ResetToDefault(context.Background())

	session := s.Session()
	assert.Equal(t, role.CPO, session.ActiveRole)
	assert.Nil(t, session.Party)
	assert.False(t, session.Synced())
	_, found, _ := st.Get(storage.KeyRole)
	assert.False(t, found)
}

func TestClear(t *testing.T) {
	st := storage.NewMemory()
	s := rolestore.New(st)
	s.SetAvailableRoles(context.Background(), []string{"CPO", "EMSP"})
	s.SetRole(context.Background(), "EMSP")

	s.Clear(context.Background())

	assert.Equal(t, rolestore.Session{}, s.Session())
	_, found, _ := st.Get(storage.KeyRole)
	assert.False(t, found)
	_, found, _ = st.Get(storage.KeyAvailableRoles)
	assert.False(t, found)
}

func TestSubscribe(t *testing.T) {
	s := rolestore.New(storage.NewMemory())

	var seen []role.Role
	unsubscribe := s.Subscribe(func(session rolestore.Session) {
		seen = append(seen, session.ActiveRole)
	})

	s.SetRole(context.Background(), "CPO")
	s.SetRole(context.Background(), "CPO") // unchanged: no notification
	s.SetRole(context.Background(), "EMSP")
	s.SetRole(context.Background(), "bogus")

	unsubscribe()
	s.SetRole(context.Background(), "CPO")

	assert.Equal(t, []role.Role{role.CPO, role.EMSP}, seen)
}

func TestSubscribe_UnsubscribeFromCallback(t *testing.T) {
	s := rolestore.New(storage.NewMemory())

	var (
		seen        []role.Role
		unsubscribe func()
	)
	unsubscribe = s.Subscribe(func(session rolestore.Session) {
		seen = append(seen, session.ActiveRole)
		unsubscribe()
	})

	s.SetRole(context.Background(), "CPO")
	s.SetRole(context.Background(), "EMSP")

	assert.Equal(t, []role.Role{role.CPO}, seen)
}

func TestSession_IsACopy(t *testing.T) {
	s := rolestore.New(storage.NewMemory())
	s.SetAvailableRoles(context.Background(), []string{"CPO", "EMSP"})

	session := s.Session()
	session.AvailableRoles[0] = role.Role("MUTATED")

	assert.Equal(t, []role.Role{role.CPO, role.EMSP}, s.Session().AvailableRoles)
}

type failingStorage struct{}

func (failingStorage) Get(string) (string, bool, error) { return "", false, errors.New("unavailable") }
func (failingStorage) Set(string, string) error         { return errors.New("unavailable") }
func (failingStorage) Remove(...string) error           { return errors.New("unavailable") }
