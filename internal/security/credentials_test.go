package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*CredentialStore, string) {
	t.Helper()
	storePath := filepath.Join(t.TempDir(), "nested", "credentials.json")
	store, err := NewCredentialStore(storePath, "test-passphrase")
	if err != nil {
		t.Fatalf("Failed to create credential store: %v", err)
	}
	return store, storePath
}

func TestNewCredentialStore(t *testing.T) {
	store, storePath := newTestStore(t)

	if store.Path() != storePath {
		t.Errorf("Store path mismatch: got %s, want %s", store.Path(), storePath)
	}

	if _, err := os.Stat(storePath); !os.IsNotExist(err) {
		t.Errorf("Store should not touch disk before the first write")
	}
}

func TestNewCredentialStoreRequiresPassphrase(t *testing.T) {
	_, err := NewCredentialStore(filepath.Join(t.TempDir(), "c.json"), "")
	if err == nil {
		t.Fatal("Expected error for empty passphrase")
	}
}

func TestStoreAndGetCredential(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.Store("session", "token-value", nil); err != nil {
		t.Fatalf("Failed to store credential: %v", err)
	}

	value, found, err := store.Get("session")
	if err != nil {
		t.Fatalf("Failed to get credential: %v", err)
	}
	if !found {
		t.Fatal("Credential should be found")
	}
	if value != "token-value" {
		t.Errorf("Value mismatch: got %s, want token-value", value)
	}
}

func TestGetNonExistentCredential(t *testing.T) {
	store, _ := newTestStore(t)

	_, found, err := store.Get("nonexistent")
	if err != nil {
		t.Errorf("Missing credential should not be an error: %v", err)
	}
	if found {
		t.Error("Missing credential should not be found")
	}
}

func TestDeleteCredential(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.Store("pending", "{}", nil); err != nil {
		t.Fatalf("Failed to store credential: %v", err)
	}
	if err := store.Delete("pending"); err != nil {
		t.Fatalf("Failed to delete credential: %v", err)
	}
	if _, found, _ := store.Get("pending"); found {
		t.Error("Credential should be gone after delete")
	}
	if err := store.Delete("pending"); err != nil {
		t.Errorf("Deleting twice should be a no-op: %v", err)
	}
}

func TestCredentialExpiration(t *testing.T) {
	store, _ := newTestStore(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	expires := now.Add(time.Hour)
	if err := store.Store("short-lived", "v", &expires); err != nil {
		t.Fatalf("Failed to store credential: %v", err)
	}

	if _, found, _ := store.Get("short-lived"); !found {
		t.Error("Credential should be available before expiry")
	}

	now = now.Add(2 * time.Hour)
	if _, found, err := store.Get("short-lived"); found || err != nil {
		t.Errorf("Expired credential should be absent without error, found=%v err=%v", found, err)
	}
}

func TestPersistenceAcrossInstances(t *testing.T) {
	store, storePath := newTestStore(t)

	if err := store.Store("session", "persisted", nil); err != nil {
		t.Fatalf("Failed to store credential: %v", err)
	}

	reopened, err := NewCredentialStore(storePath, "test-passphrase")
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}

	value, found, err := reopened.Get("session")
	if err != nil || !found {
		t.Fatalf("Reopened store should return credential, found=%v err=%v", found, err)
	}
	if value != "persisted" {
		t.Errorf("Value mismatch after reopen: %s", value)
	}
}

func TestWrongPassphraseFailsToDecrypt(t *testing.T) {
	store, storePath := newTestStore(t)

	if err := store.Store("session", "secret", nil); err != nil {
		t.Fatalf("Failed to store credential: %v", err)
	}

	other, err := NewCredentialStore(storePath, "another-passphrase")
	if err != nil {
		t.Fatalf("Opening with another passphrase should succeed: %v", err)
	}

	if _, _, err := other.Get("session"); err == nil {
		t.Error("Decrypting with the wrong passphrase should fail")
	}
}

func TestEncryptionAtRest(t *testing.T) {
	store, storePath := newTestStore(t)

	if err := store.Store("session", "super-secret-value", nil); err != nil {
		t.Fatalf("Failed to store credential: %v", err)
	}

	data, err := os.ReadFile(storePath)
	if err != nil {
		t.Fatalf("Failed to read store file: %v", err)
	}
	if strings.Contains(string(data), "super-secret-value") {
		t.Error("Plaintext value should not appear in the store file")
	}

	info, err := os.Stat(storePath)
	if err != nil {
		t.Fatalf("Failed to stat store file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Store file permissions = %o, want 600", perm)
	}
}

func TestCorruptStoreFile(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(storePath, []byte("not json"), 0600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if _, err := NewCredentialStore(storePath, "test-passphrase"); err == nil {
		t.Error("Expected error for corrupt store file")
	}
}

func TestListAndGetInfo(t *testing.T) {
	store, _ := newTestStore(t)

	for _, name := range []string{"session", "pending"} {
		if err := store.Store(name, "v", nil); err != nil {
			t.Fatalf("Failed to store %s: %v", name, err)
		}
	}

	names := store.List()
	if len(names) != 2 || names[0] != "pending" || names[1] != "session" {
		t.Errorf("List() = %v, want [pending session]", names)
	}

	info, ok := store.GetInfo("session")
	if !ok {
		t.Fatal("GetInfo should find session")
	}
	if info.Value != "" {
		t.Error("GetInfo should not expose the value")
	}
	if _, ok := store.GetInfo("missing"); ok {
		t.Error("GetInfo should not find missing credential")
	}
}
