package storage

// Keys used by the console for persisted state.
const (
	KeyRole           = "role"
	KeyAvailableRoles = "availableRoles"
	KeyAccessToken    = "access"
	KeyRefreshToken   = "refresh"
)

// Store is a string key/value store that survives process restarts, in the
// way browser local storage does. Concurrent writers are not coordinated: the
// last write wins.
type Store interface {
	// Get returns the value for key, and whether it was present.
	Get(key string) (string, bool, error)

	// Set writes the value for key.
	Set(key string, value string) error

	// Remove deletes the given keys. Missing keys are ignored.
	Remove(keys ...string) error
}
