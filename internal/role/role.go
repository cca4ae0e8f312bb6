package role

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role is an operating role in the OCPI network. Only the values in
// Vocabulary are valid.
type Role string

const (
	CPO  Role = "CPO"
	EMSP Role = "EMSP"

	// Default is used when no valid role is known locally.
	Default = CPO

	// MaxLength is the legacy backend column width for a role value.
	MaxLength = 10
)

// Vocabulary lists every accepted role in canonical case.
var Vocabulary = []Role{CPO, EMSP}

// Validate performs a case-insensitive match of candidate against the role
// vocabulary, returning the canonical value. Values longer than MaxLength are
// rejected before matching.
func Validate(candidate string) (Role, bool) {
	if len(candidate) > MaxLength {
		return "", false
	}

	// Casers are stateful, so one is created per call.
	normalized := Role(cases.Upper(language.Und).String(strings.TrimSpace(candidate)))
	for _, r := range Vocabulary {
		if r == normalized {
			return r, true
		}
	}

	return "", false
}

// IsValid reports whether r is a canonical member of the vocabulary.
func (r Role) IsValid() bool {
	v, ok := Validate(string(r))
	return ok && v == r
}

func (r Role) String() string {
	return string(r)
}

// Contains reports whether roles includes r.
func Contains(roles []Role, r Role) bool {
	for _, candidate := range roles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseAll validates each candidate and returns the distinct valid roles in
// their original order, along with the rejected inputs.
func ParseAll(candidates []string) (valid []Role, rejected []string) {
	for _, c := range candidates {
		r, ok := Validate(c)
		if !ok {
			rejected = append(rejected, c)
			continue
		}
		if !Contains(valid, r) {
			valid = append(valid, r)
		}
	}
	return valid, rejected
}

// PartyRef identifies the OCPI party the user acts for in the active role.
type PartyRef struct {
	CountryCode string `json:"country_code" yaml:"countryCode"`
	PartyID     string `json:"party_id" yaml:"partyId"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
}

func (p *PartyRef) String() string {
	if p == nil {
		return ""
	}
	return p.CountryCode + "*" + p.PartyID
}
