package auth

import (
	"strings"
	"time"
)

// PendingVerification is a registration awaiting its email confirmation code.
type PendingVerification struct {
	Email     string    `json:"email" yaml:"email"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

// Matches reports whether the pending registration is for email
func (p *PendingVerification) Matches(email string) bool {
	return p != nil && strings.EqualFold(p.Email, normalizeEmail(email))
}

// PendingStore keeps the pending registration between processes.
// security.Slot and security.MemorySlot satisfy it.
type PendingStore interface {
	Load(v any) (bool, error)
	Save(v any) error
	Clear() error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
