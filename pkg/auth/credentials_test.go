package auth

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

// mockStore implements CredentialStore in memory with error injection
type mockStore struct {
	mu       sync.RWMutex
	accounts map[string]Account

	StoreError error
	ListError  error
}

func newMockStore() *mockStore {
	return &mockStore{accounts: make(map[string]Account)}
}

func (m *mockStore) Store(account *Account) error {
	if m.StoreError != nil {
		return m.StoreError
	}
	if account == nil || account.Name == "" {
		return ErrInvalidCredentials
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.Name] = *account
	return nil
}

func (m *mockStore) Retrieve(name string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	account, ok := m.accounts[name]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &account, nil
}

func (m *mockStore) List() ([]*Account, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Account
	for _, a := range m.accounts {
		acc := a
		out = append(out, &acc)
	}
	return out, nil
}

func (m *mockStore) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[name]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.accounts, name)
	return nil
}

func (m *mockStore) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.accounts[name]
	return ok
}

func TestCredentialManager(t *testing.T) {
	store := newMockStore()
	manager := NewManagerWithStores(store)

	account := &Account{
		Name:     "nextcloud",
		URL:      "https://cloud.example.com/remote.php/dav/files/migrator",
		Username: "migrator",
		Password: "app-password-12345",
	}

	if err := manager.Store(account); err != nil {
		t.Fatalf("Failed to store account: %v", err)
	}
	if account.LastModified.IsZero() {
		t.Error("LastModified should be set on store")
	}

	retrieved, err := manager.Retrieve("nextcloud")
	if err != nil {
		t.Fatalf("Failed to retrieve account: %v", err)
	}
	if retrieved.Username != account.Username {
		t.Errorf("Username mismatch: got %s, want %s", retrieved.Username, account.Username)
	}
	if retrieved.Password != account.Password {
		t.Errorf("Password mismatch: got %s, want %s", retrieved.Password, account.Password)
	}

	sanitized := SanitizeAccount(account)
	if sanitized.Password == account.Password {
		t.Error("Password should be masked")
	}
	if sanitized.Username != account.Username {
		t.Error("Username should not be masked")
	}

	if err := manager.Delete("nextcloud"); err != nil {
		t.Errorf("Failed to delete account: %v", err)
	}
	if _, err := manager.Retrieve("nextcloud"); !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("Expected ErrCredentialsNotFound, got %v", err)
	}
	if err := manager.Delete("nextcloud"); err == nil {
		t.Error("Expected error deleting missing account")
	}
}

func TestManagerStoreValidation(t *testing.T) {
	manager := NewManagerWithStores(newMockStore())

	tests := []struct {
		name    string
		account Account
	}{
		{"missing name", Account{Username: "u", Password: "p"}},
		{"missing username", Account{Name: "n", Password: "p"}},
		{"missing password", Account{Name: "n", Username: "u"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := tt.account
			assert.Error(t, manager.Store(&acc))
		})
	}
}

func TestManagerFallsBackToNextStore(t *testing.T) {
	failing := newMockStore()
	failing.StoreError = errors.New("keychain locked")
	fallback := newMockStore()

	manager := NewManagerWithStores(failing, fallback)
	require.NoError(t, manager.Store(&Account{Name: "nc", Username: "u", Password: "p"}))

	assert.False(t, failing.Exists("nc"))
	assert.True(t, fallback.Exists("nc"))
}

func TestManagerListKeepsNewest(t *testing.T) {
	older := newMockStore()
	newer := newMockStore()
	now := time.Now()
	require.NoError(t, older.Store(&Account{Name: "nc", Username: "old", Password: "p", LastModified: now.Add(-time.Hour)}))
	require.NoError(t, newer.Store(&Account{Name: "nc", Username: "new", Password: "p", LastModified: now}))
	require.NoError(t, newer.Store(&Account{Name: "archive", Username: "a", Password: "p", LastModified: now}))

	broken := newMockStore()
	broken.ListError = errors.New("unreadable")

	accounts, err := NewManagerWithStores(older, broken, newer).List()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "archive", accounts[0].Name)
	assert.Equal(t, "new", accounts[1].Username)
}

func TestEncryptedFileStore(t *testing.T) {
	t.Setenv("DAVMIGRATE_PASSPHRASE", "test_passphrase_123")
	path := filepath.Join(t.TempDir(), "credentials.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	account := &Account{Name: "nextcloud", Username: "migrator", Password: "encrypted_secret"}
	require.NoError(t, store.Store(account))
	require.NoError(t, store.Store(&Account{Name: "archive", Username: "a", Password: "b"}))

	retrieved, err := store.Retrieve("nextcloud")
	require.NoError(t, err)
	assert.Equal(t, "encrypted_secret", retrieved.Password)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(content, []byte("encrypted_secret")), "file contains plaintext password")

	accounts, err := store.List()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "archive", accounts[0].Name)

	// a second store with the same passphrase reads the same file
	reopened, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	assert.True(t, reopened.Exists("nextcloud"))

	require.NoError(t, store.Delete("nextcloud"))
	require.NoError(t, store.Delete("archive"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "file should be removed with its last account")
	assert.ErrorIs(t, store.Delete("archive"), ErrCredentialsNotFound)
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")

	t.Setenv("DAVMIGRATE_PASSPHRASE", "first")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(&Account{Name: "nc", Username: "u", Password: "p"}))

	t.Setenv("DAVMIGRATE_PASSPHRASE", "second")
	other, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	_, err = other.Retrieve("nc")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCredentialsNotFound)
}

func TestEncryptedFileStoreGeneratesPassphrase(t *testing.T) {
	t.Setenv("DAVMIGRATE_PASSPHRASE", "")
	dir := t.TempDir()

	store, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	require.NoError(t, err)
	require.NoError(t, store.Store(&Account{Name: "nc", Username: "u", Password: "p"}))

	saved, err := os.ReadFile(filepath.Join(dir, passphraseFile))
	require.NoError(t, err)
	assert.Equal(t, store.passphrase, string(saved))
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv("DAVMIGRATE_WEBDAV_USERNAME", "env_user")
	t.Setenv("DAVMIGRATE_WEBDAV_PASSWORD", "env_pass")

	store := NewEnvironmentStore()

	account, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, DefaultEnvAccount, account.Name)
	assert.Equal(t, "env_user", account.Username)
	assert.Equal(t, "env_pass", account.Password)
	assert.True(t, store.Exists(""))

	if err := store.Store(&Account{}); err != ErrStoreUnavailable {
		t.Error("Expected ErrStoreUnavailable for environment store")
	}

	t.Setenv("DAVMIGRATE_WEBDAV_PASSWORD", "")
	_, err = store.Retrieve("")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	accounts, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore()
	require.NoError(t, err)

	require.NoError(t, store.Store(&Account{Name: "nc", Username: "u", Password: "secret"}))
	assert.True(t, store.Exists("nc"))

	got, err := store.Retrieve("nc")
	require.NoError(t, err)
	assert.Equal(t, "secret", got.Password)

	require.NoError(t, store.Delete("nc"))
	_, err = store.Retrieve("nc")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.ErrorIs(t, store.Delete("nc"), ErrCredentialsNotFound)
	assert.ErrorIs(t, store.Store(&Account{}), ErrInvalidCredentials)
}
