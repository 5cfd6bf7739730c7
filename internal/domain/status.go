package domain

import (
	"strings"

	"github.com/felixgeelhaar/lostfound/internal/errors"
)

// ItemStatus says whether a listing reports something lost or something found.
// This is a value object that enforces valid status values.
type ItemStatus string

// Valid item statuses
const (
	StatusLost  ItemStatus = "lost"
	StatusFound ItemStatus = "found"
)

// ParseItemStatus normalizes case and surrounding space before validating
func ParseItemStatus(value string) (ItemStatus, error) {
	s := ItemStatus(strings.ToLower(strings.TrimSpace(value)))
	if err := s.Validate(); err != nil {
		return "", err
	}
	return s, nil
}

// Validate checks if the status is valid
func (s ItemStatus) Validate() error {
	switch s {
	case StatusLost, StatusFound:
		return nil
	default:
		return errors.Validationf("invalid status %q: must be 'lost' or 'found'", string(s))
	}
}

// String returns the string representation
func (s ItemStatus) String() string {
	return string(s)
}

// UserAction is an administrator action on an account.
type UserAction string

// Valid user actions
const (
	ActionBlock   UserAction = "block"
	ActionUnblock UserAction = "unblock"
)

// Validate checks if the action is valid
func (a UserAction) Validate() error {
	switch a {
	case ActionBlock, ActionUnblock:
		return nil
	default:
		return errors.Validationf("invalid action %q: must be 'block' or 'unblock'", string(a))
	}
}
