package testhelpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/justinas/alice"
)

// APIPrefix is the namespace the mock backend serves under.
const APIPrefix = "/api"

// MockBackend is a configurable console backend for tests. Configuration
// fields should be set before requests are issued, or through Update while
// requests are in flight.
type MockBackend struct {
	Server *httptest.Server

	mu sync.Mutex

	// Role state reported by GET /role and updated by PUT /role.
	ActiveRole     string
	AvailableRoles []string
	Party          map[string]string

	// Status overrides: when non-zero the endpoint replies with this status
	// and no body.
	GetRoleStatus     int
	PutRoleStatus     int
	TokenStatus       int
	RefreshStatus     int
	CommandStatus     int
	ProtectedStatus   int
	DeleteRoleStatus  int
	PutRoleStatusSeq  []int // consumed one per PUT before PutRoleStatus applies
	TokenPrefix       string
	AccessToken       string // bearer accepted by protected endpoints
	RefreshToken      string // refresh token accepted by /refresh_token
	RefreshedAccess   string // access token issued on refresh
	PutRoleGate       chan struct{}
	PutRoleEntered    chan struct{}
	LastAuthorization map[string]string

	counts map[string]int
}

// SetupMockBackend starts a backend with a CPO/EMSP user, no active role,
// and primary credentials "access-1"/"refresh-1".
func SetupMockBackend(t *testing.T) *MockBackend {
	t.Helper()

	mock := &MockBackend{
		AvailableRoles:    []string{"CPO", "EMSP"},
		TokenPrefix:       "role-token-",
		AccessToken:       "access-1",
		RefreshToken:      "refresh-1",
		RefreshedAccess:   "access-2",
		LastAuthorization: map[string]string{},
		counts:            map[string]int{},
	}

	router := http.NewServeMux()
	router.HandleFunc("GET "+APIPrefix+"/role", mock.handleGetRole)
	router.HandleFunc("PUT "+APIPrefix+"/role", mock.handlePutRole)
	router.HandleFunc("DELETE "+APIPrefix+"/role", mock.handleDeleteRole)
	router.HandleFunc("GET "+APIPrefix+"/active-token", mock.handleActiveToken)
	router.HandleFunc("POST "+APIPrefix+"/refresh_token", mock.handleRefresh)
	router.HandleFunc("POST "+APIPrefix+"/commands/{command}", mock.handleCommand)
	router.HandleFunc("POST "+APIPrefix+"/ocpi/{role}/{version}/commands/{command}", mock.handleCommand)
	router.HandleFunc(APIPrefix+"/locations", mock.handleProtected)

	chain := alice.New(mock.recordRequest)

	mock.Server = httptest.NewServer(chain.Then(router))
	t.Cleanup(mock.Close)

	return mock
}

// URL is the server root, without the API namespace.
func (m *MockBackend) URL() string {
	return m.Server.URL
}

// Close shuts down the mock server.
func (m *MockBackend) Close() {
	m.Server.Close()
}

// Update applies fn while holding the backend lock.
func (m *MockBackend) Update(fn func(m *MockBackend)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

// Count returns how many requests were received for method and path, where
// path excludes the API namespace.
func (m *MockBackend) Count(method, path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[method+" "+path]
}

// Authorization returns the last Authorization header seen for path.
func (m *MockBackend) Authorization(path string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LastAuthorization[path]
}

func (m *MockBackend) recordRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, APIPrefix)

		m.mu.Lock()
		m.counts[r.Method+" "+path]++
		m.LastAuthorization[path] = r.Header.Get("Authorization")
		m.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (m *MockBackend) roleState() map[string]any {
	var active any
	if m.ActiveRole != "" {
		active = m.ActiveRole
	}
	var party any
	if m.Party != nil {
		party = m.Party
	}
	return map[string]any{
		"active_role":     active,
		"available_roles": m.AvailableRoles,
		"party":           party,
	}
}

func (m *MockBackend) handleGetRole(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetRoleStatus != 0 {
		w.WriteHeader(m.GetRoleStatus)
		return
	}
	WriteJSON(w, m.roleState())
}

func (m *MockBackend) handlePutRole(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	gate, entered := m.PutRoleGate, m.PutRoleEntered
	m.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	status := m.PutRoleStatus
	if len(m.PutRoleStatusSeq) > 0 {
		status = m.PutRoleStatusSeq[0]
		m.PutRoleStatusSeq = m.PutRoleStatusSeq[1:]
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}

	var body struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.ActiveRole = body.Role
	WriteJSON(w, m.roleState())
}

func (m *MockBackend) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DeleteRoleStatus != 0 {
		w.WriteHeader(m.DeleteRoleStatus)
		return
	}
	m.ActiveRole = ""
	w.WriteHeader(http.StatusNoContent)
}

func (m *MockBackend) handleActiveToken(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.TokenStatus != 0 {
		w.WriteHeader(m.TokenStatus)
		return
	}
	WriteJSON(w, map[string]string{
		"token": m.TokenPrefix + r.Header.Get("X-Active-Role"),
	})
}

func (m *MockBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RefreshStatus != 0 {
		w.WriteHeader(m.RefreshStatus)
		return
	}

	var body struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Refresh != m.RefreshToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	m.AccessToken = m.RefreshedAccess
	WriteJSON(w, map[string]string{"access": m.RefreshedAccess})
}

func (m *MockBackend) handleCommand(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CommandStatus != 0 {
		w.WriteHeader(m.CommandStatus)
		return
	}
	WriteJSON(w, map[string]string{"result": "ACCEPTED"})
}

func (m *MockBackend) handleProtected(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ProtectedStatus != 0 {
		w.WriteHeader(m.ProtectedStatus)
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+m.AccessToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	WriteJSON(w, []map[string]string{{"id": "LOC1"}})
}

// WriteJSON is a helper function that writes a JSON response.
// It sets the Content-Type header and marshals the payload to JSON.
func WriteJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(payload)
	if err != nil {
		// In test context, this should never happen with valid test data
		http.Error(w, fmt.Sprintf("failed to marshal JSON: %v", err), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(data)
}
