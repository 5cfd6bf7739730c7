package domain

// UserRecord is an account as seen by an administrator.
type UserRecord struct {
	Username      string   `json:"username" yaml:"username"`
	Email         string   `json:"email" yaml:"email"`
	Name          string   `json:"name,omitempty" yaml:"name,omitempty"`
	Created       string   `json:"created,omitempty" yaml:"created,omitempty"`
	Status        string   `json:"status" yaml:"status"`
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	EmailVerified bool     `json:"emailVerified" yaml:"emailVerified"`
	Groups        []string `json:"groups" yaml:"groups"`
}

// UserStatusResult is the response to a block or unblock.
type UserStatusResult struct {
	Username string     `json:"username" yaml:"username"`
	Action   UserAction `json:"action" yaml:"action"`
	Message  string     `json:"message" yaml:"message"`
}
