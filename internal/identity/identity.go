// Package identity defines the contract between the session manager and the
// hosted user directory that owns accounts, passwords and tokens.
package identity

import (
	"context"

	"golang.org/x/oauth2"
)

// Tokens is the result of a successful authentication. The embedded
// oauth2.Token carries the access and refresh tokens and their expiry;
// IDToken is the bearer credential the backend accepts.
type Tokens struct {
	oauth2.Token
	IDToken string `json:"id_token"`
}

// Bearer returns the credential to present to the backend
func (t *Tokens) Bearer() string {
	if t == nil {
		return ""
	}
	return t.IDToken
}

// Attributes are the profile attributes sent with a sign-up.
type Attributes map[string]string

// Provider is the identity collaborator the session manager depends on.
//
// All methods return *errors.Failure values on failure so callers can
// branch on the failure kind.
type Provider interface {
	// SignUp creates an unconfirmed account.
	SignUp(ctx context.Context, email, password string, attrs Attributes) error

	// ConfirmSignUp confirms an account with the code delivered by email.
	ConfirmSignUp(ctx context.Context, email, code string) error

	// ResendConfirmationCode asks the directory to deliver a new code.
	ResendConfirmationCode(ctx context.Context, email string) error

	// Authenticate exchanges credentials for tokens. The tokens are not
	// remembered until RememberSession is called with them.
	Authenticate(ctx context.Context, email, password string) (*Tokens, error)

	// RememberSession stores tokens so RestoreSession can find them later.
	RememberSession(ctx context.Context, tokens *Tokens) error

	// RestoreSession returns the remembered tokens, refreshing them if
	// needed. It returns nil, nil when nothing is remembered.
	RestoreSession(ctx context.Context) (*Tokens, error)

	// ForgetSession drops any remembered tokens.
	ForgetSession(ctx context.Context) error
}
