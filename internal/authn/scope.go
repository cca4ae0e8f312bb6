package authn

import (
	"regexp"
	"strings"
)

// roleScopedPaths match the command and OCPI role-protocol endpoints, which
// are authorized by the role-scoped token rather than the primary
// credential. Role management (/role, /active-token) is primary traffic.
// Paths are matched without the API namespace.
var roleScopedPaths = []*regexp.Regexp{
	regexp.MustCompile(`^/commands(/.*)?$`),
	regexp.MustCompile(`(?i)^/ocpi/(cpo|emsp)/.+$`),
}

// IsRoleScoped reports whether path, with or without the API namespace
// prefix, addresses a role-scoped endpoint.
func IsRoleScoped(prefix, path string) bool {
	path = stripPrefix(prefix, path)
	for _, re := range roleScopedPaths {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func hasPrefix(prefix, path string) bool {
	return prefix == "" || path == prefix || strings.HasPrefix(path, prefix+"/")
}

func stripPrefix(prefix, path string) string {
	if prefix == "" || !hasPrefix(prefix, path) {
		return path
	}
	return strings.TrimPrefix(path, prefix)
}

// normalizePrefix returns prefix with a single leading slash and no
// trailing slash. "/" and "" both mean no namespace.
func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return "/" + prefix
}
