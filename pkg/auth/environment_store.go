package auth

import (
	"os"
	"time"
)

// DefaultEnvAccount is the account name reported for credentials taken
// from the environment
const DefaultEnvAccount = "default"

// EnvironmentStore implements CredentialStore using environment variables.
// It is read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve gets credentials from DAVMIGRATE_WEBDAV_USERNAME and
// DAVMIGRATE_WEBDAV_PASSWORD
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	username := os.Getenv("DAVMIGRATE_WEBDAV_USERNAME")
	password := os.Getenv("DAVMIGRATE_WEBDAV_PASSWORD")
	if username == "" || password == "" {
		return nil, ErrCredentialsNotFound
	}

	if name == "" {
		name = DefaultEnvAccount
	}

	return &Account{
		Name:         name,
		URL:          os.Getenv("DAVMIGRATE_WEBDAV_URL"),
		Username:     username,
		Password:     password,
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if environment variables are set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(name string) bool {
	return os.Getenv("DAVMIGRATE_WEBDAV_USERNAME") != "" && os.Getenv("DAVMIGRATE_WEBDAV_PASSWORD") != ""
}
