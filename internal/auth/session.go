package auth

import (
	"maps"
	"slices"
)

// DefaultAdminGroup is the group label that marks administrators.
const DefaultAdminGroup = "Admins"

// Session is an immutable snapshot of who the current user is.
//
// A Session is either anonymous (zero value) or fully populated: Token is
// non-empty if and only if UserID is non-empty. The Manager never mutates
// a Session in place; it swaps whole snapshots.
type Session struct {
	// Token is the bearer credential presented to the backend.
	Token string

	// UserID is the subject of the token.
	UserID string

	Email       string
	DisplayName string

	// Groups are the role labels carried by the token.
	Groups []string

	// Attributes holds the remaining string claims of the token.
	Attributes map[string]string
}

// Identity is the public projection of an authenticated Session.
type Identity struct {
	UserID      string `json:"userId" yaml:"userId"`
	Email       string `json:"email" yaml:"email"`
	DisplayName string `json:"displayName" yaml:"displayName"`
}

// IsAuthenticated reports whether the snapshot carries both a token and a user
func (s Session) IsAuthenticated() bool {
	return s.Token != "" && s.UserID != ""
}

// InGroup reports whether the snapshot is authenticated and carries group
func (s Session) InGroup(group string) bool {
	if !s.IsAuthenticated() || group == "" {
		return false
	}
	return slices.Contains(s.Groups, group)
}

// Identity returns the identity projection and whether there is one
func (s Session) Identity() (Identity, bool) {
	if !s.IsAuthenticated() {
		return Identity{}, false
	}
	return Identity{
		UserID:      s.UserID,
		Email:       s.Email,
		DisplayName: s.DisplayName,
	}, true
}

// clone returns a deep copy so callers can't alias the committed snapshot
func (s Session) clone() Session {
	s.Groups = slices.Clone(s.Groups)
	s.Attributes = maps.Clone(s.Attributes)
	return s
}
