package credentials

import (
	"errors"
	"fmt"
	"sync"

	zkeyring "github.com/zalando/go-keyring"
)

// ErrKeyringNotAvailable signals that no keyring daemon is reachable.
var ErrKeyringNotAvailable = errors.New("system keyring not available")

// Keyring is the interface for keyring operations
type Keyring interface {
	Set(service, account, password string) error
	Get(service, account string) (string, error)
	Delete(service, account string) error
}

// systemKeyring is the real keyring implementation backed by the OS
// keyring (Secret Service on Linux, Keychain on macOS, Credential
// Manager on Windows).
type systemKeyring struct{}

// Set stores a secret in the system keyring
func (s *systemKeyring) Set(service, account, password string) error {
	if err := zkeyring.Set(service, account, password); err != nil {
		return fmt.Errorf("%w: %v", ErrKeyringNotAvailable, err)
	}
	return nil
}

// Get retrieves a secret from the system keyring
func (s *systemKeyring) Get(service, account string) (string, error) {
	secret, err := zkeyring.Get(service, account)
	if err != nil {
		if errors.Is(err, zkeyring.ErrNotFound) {
			return "", fmt.Errorf("secret not found for %s/%s", service, account)
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringNotAvailable, err)
	}
	return secret, nil
}

// Delete removes a secret from the system keyring
func (s *systemKeyring) Delete(service, account string) error {
	if err := zkeyring.Delete(service, account); err != nil {
		if errors.Is(err, zkeyring.ErrNotFound) {
			return fmt.Errorf("secret not found for %s/%s", service, account)
		}
		return fmt.Errorf("%w: %v", ErrKeyringNotAvailable, err)
	}
	return nil
}

// MockKeyring is a test implementation of the Keyring interface
type MockKeyring struct {
	mu    sync.RWMutex
	store map[string]map[string]string // service -> account -> secret
}

// NewMockKeyring creates a new mock keyring for testing
func NewMockKeyring() *MockKeyring {
	return &MockKeyring{
		store: make(map[string]map[string]string),
	}
}

// Set stores a secret in the mock keyring
func (m *MockKeyring) Set(service, account, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store[service] == nil {
		m.store[service] = make(map[string]string)
	}
	m.store[service][account] = password
	return nil
}

// Get retrieves a secret from the mock keyring
func (m *MockKeyring) Get(service, account string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if accounts, ok := m.store[service]; ok {
		if secret, ok := accounts[account]; ok {
			return secret, nil
		}
	}
	return "", fmt.Errorf("secret not found for %s/%s", service, account)
}

// Delete removes a secret from the mock keyring
func (m *MockKeyring) Delete(service, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if accounts, ok := m.store[service]; ok {
		if _, ok := accounts[account]; ok {
			delete(accounts, account)
			return nil
		}
	}
	return fmt.Errorf("secret not found for %s/%s", service, account)
}
