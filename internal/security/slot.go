package security

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/felixgeelhaar/lostfound/internal/errors"
)

// Slot stores one JSON document under a fixed credential name.
type Slot struct {
	store *CredentialStore
	name  string
	ttl   time.Duration
}

// Slot returns a JSON slot for name. A positive ttl makes each saved
// document expire ttl after it was written.
func (s *CredentialStore) Slot(name string, ttl time.Duration) *Slot {
	return &Slot{store: s, name: name, ttl: ttl}
}

// Load decodes the stored document into v. It reports false when nothing
// is stored or the document has expired.
func (s *Slot) Load(v any) (bool, error) {
	raw, found, err := s.store.Get(s.name)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, errors.Wrap(errors.KindUnknown, errors.ErrCodeFileReadFailed, "stored "+s.name+" is corrupt", err)
	}
	return true, nil
}

// Save encodes v and replaces the stored document
func (s *Slot) Save(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(errors.KindUnknown, errors.ErrCodeFileWriteFailed, "failed to encode "+s.name, err)
	}
	var expiresAt *time.Time
	if s.ttl > 0 {
		t := s.store.now().Add(s.ttl)
		expiresAt = &t
	}
	return s.store.Store(s.name, string(data), expiresAt)
}

// Clear removes the stored document
func (s *Slot) Clear() error {
	return s.store.Delete(s.name)
}

// MemorySlot is an in-process Slot with the same JSON semantics.
type MemorySlot struct {
	mu   sync.Mutex
	data []byte
}

// NewMemorySlot returns an empty in-memory slot
func NewMemorySlot() *MemorySlot {
	return &MemorySlot{}
}

// Load decodes the held document into v
func (m *MemorySlot) Load(v any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return false, nil
	}
	if err := json.Unmarshal(m.data, v); err != nil {
		return false, err
	}
	return true, nil
}

// Save replaces the held document
func (m *MemorySlot) Save(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data = data
	m.mu.Unlock()
	return nil
}

// Clear drops the held document
func (m *MemorySlot) Clear() error {
	m.mu.Lock()
	m.data = nil
	m.mu.Unlock()
	return nil
}
