package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/felixgeelhaar/lostfound/internal/errors"
)

const (
	storeVersion     = 1
	saltSize         = 16
	keyIterations    = 100000
	keySize          = 32
	storeDirPerm     = 0700
	storeFilePerm    = 0600
	missingStoreSalt = ""
)

// Credential represents a securely stored credential
type Credential struct {
	// Name identifies the credential (e.g., "session", "pending")
	Name string `json:"name"`

	// Value is the encrypted credential value
	Value string `json:"value"`

	// CreatedAt is when the credential was first stored
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is when the credential was last replaced
	UpdatedAt time.Time `json:"updatedAt"`

	// ExpiresAt is when the credential stops being returned (optional)
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// storeFile is the on-disk layout
type storeFile struct {
	Version     int                    `json:"version"`
	Salt        string                 `json:"salt"`
	Credentials map[string]*Credential `json:"credentials"`
}

// CredentialStore keeps named secrets in a single encrypted JSON file.
// Values are sealed with AES-GCM under a key derived from the passphrase
// with PBKDF2 and a per-file random salt.
type CredentialStore struct {
	mu sync.RWMutex

	// storePath is the file path where credentials are stored
	storePath string

	// masterKey is the encryption key derived from passphrase
	masterKey []byte

	salt []byte

	// credentials maps credential names to encrypted credentials
	credentials map[string]*Credential

	now func() time.Time
}

// NewCredentialStore opens the store at storePath, creating nothing on disk
// until the first write.
func NewCredentialStore(storePath, passphrase string) (*CredentialStore, error) {
	if passphrase == "" {
		return nil, errors.New(errors.KindValidation, errors.ErrCodeInputInvalid, "credential store passphrase must not be empty").
			WithSuggestion("Set credentials.passphrase or LOSTFOUND_PASSPHRASE")
	}

	store := &CredentialStore{
		storePath:   storePath,
		credentials: make(map[string]*Credential),
		now:         time.Now,
	}

	salt := missingStoreSalt
	if _, err := os.Stat(storePath); err == nil {
		file, err := store.load()
		if err != nil {
			return nil, errors.Wrap(errors.KindUnknown, errors.ErrCodeFileReadFailed, "failed to load credentials", err).
				WithSuggestion(fmt.Sprintf("Remove %s to start with an empty store", storePath))
		}
		salt = file.Salt
		store.credentials = file.Credentials
	}

	if err := store.deriveKey(passphrase, salt); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *CredentialStore) deriveKey(passphrase, encodedSalt string) error {
	if encodedSalt == missingStoreSalt {
		s.salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, s.salt); err != nil {
			return errors.Wrap(errors.KindUnknown, errors.ErrCodeFileWriteFailed, "failed to generate salt", err)
		}
	} else {
		salt, err := base64.StdEncoding.DecodeString(encodedSalt)
		if err != nil {
			return errors.Wrap(errors.KindUnknown, errors.ErrCodeFileReadFailed, "credential store salt is corrupt", err)
		}
		s.salt = salt
	}
	s.masterKey = pbkdf2.Key([]byte(passphrase), s.salt, keyIterations, keySize, sha256.New)
	return nil
}

// Path returns the file backing the store
func (s *CredentialStore) Path() string {
	return s.storePath
}

// Store stores a credential securely, replacing any value under name
func (s *CredentialStore) Store(name, value string, expiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encryptedValue, err := s.encrypt(value)
	if err != nil {
		return errors.Wrap(errors.KindUnknown, errors.ErrCodeFileWriteFailed, "failed to encrypt credential", err)
	}

	now := s.now()
	createdAt := now
	if existing, exists := s.credentials[name]; exists {
		createdAt = existing.CreatedAt
	}

	s.credentials[name] = &Credential{
		Name:      name,
		Value:     encryptedValue,
		CreatedAt: createdAt,
		UpdatedAt: now,
		ExpiresAt: expiresAt,
	}

	return s.save()
}

// Get retrieves a credential value. A missing or expired credential
// reports found == false with a nil error.
func (s *CredentialStore) Get(name string) (value string, found bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, exists := s.credentials[name]
	if !exists {
		return "", false, nil
	}

	if cred.ExpiresAt != nil && s.now().After(*cred.ExpiresAt) {
		return "", false, nil
	}

	value, err = s.decrypt(cred.Value)
	if err != nil {
		return "", false, errors.Wrap(errors.KindUnknown, errors.ErrCodeFileReadFailed,
			fmt.Sprintf("failed to decrypt credential %s", name), err).
			WithSuggestion("Check that the passphrase matches the one used to write the store")
	}
	return value, true, nil
}

// Delete removes a credential. Deleting a missing credential is a no-op.
func (s *CredentialStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.credentials[name]; !exists {
		return nil
	}
	delete(s.credentials, name)

	return s.save()
}

// List returns all credential names in sorted order
func (s *CredentialStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.credentials))
	for name := range s.credentials {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetInfo returns credential information without the value
func (s *CredentialStore) GetInfo(name string) (*Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, exists := s.credentials[name]
	if !exists {
		return nil, false
	}

	return &Credential{
		Name:      cred.Name,
		CreatedAt: cred.CreatedAt,
		UpdatedAt: cred.UpdatedAt,
		ExpiresAt: cred.ExpiresAt,
	}, true
}

// encrypt encrypts a value using AES-GCM
func (s *CredentialStore) encrypt(plaintext string) (string, error) {
	gcm, err := s.cipher()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a value using AES-GCM
func (s *CredentialStore) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	gcm, err := s.cipher()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertextBytes := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

func (s *CredentialStore) cipher() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.masterKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// save writes the store atomically with restricted permissions
func (s *CredentialStore) save() error {
	dir := filepath.Dir(s.storePath)
	if err := os.MkdirAll(dir, storeDirPerm); err != nil {
		return errors.Wrap(errors.KindUnknown, errors.ErrCodeFileWriteFailed, "failed to create credential directory", err)
	}

	data, err := json.MarshalIndent(storeFile{
		Version:     storeVersion,
		Salt:        base64.StdEncoding.EncodeToString(s.salt),
		Credentials: s.credentials,
	}, "", "  ")
	if err != nil {
		return errors.Wrap(errors.KindUnknown, errors.ErrCodeFileWriteFailed, "failed to encode credentials", err)
	}

	tmp := s.storePath + ".tmp"
	if err := os.WriteFile(tmp, data, storeFilePerm); err != nil {
		return errors.Wrap(errors.KindUnknown, errors.ErrCodeFileWriteFailed, "failed to write credentials", err)
	}
	if err := os.Rename(tmp, s.storePath); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(errors.KindUnknown, errors.ErrCodeFileWriteFailed, "failed to replace credentials", err)
	}
	return nil
}

// load reads the store file from disk
func (s *CredentialStore) load() (*storeFile, error) {
	data, err := os.ReadFile(s.storePath)
	if err != nil {
		return nil, err
	}

	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if file.Version != storeVersion {
		return nil, fmt.Errorf("unsupported credential store version %d", file.Version)
	}
	if file.Credentials == nil {
		file.Credentials = make(map[string]*Credential)
	}
	return &file, nil
}
