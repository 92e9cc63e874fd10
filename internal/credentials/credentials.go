// Package credentials stores the service token in the OS-native
// keyring, with an environment variable fallback for headless use.
package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"rtmilk/rtm"
)

// keyringService is the service name entries are filed under.
const keyringService = "rtmilk"

// DefaultAccount is the keyring account used when no profile is named.
const DefaultAccount = "default"

// EnvToken overrides the keyring when set. Headless environments (CI,
// servers) often have no keyring daemon.
const EnvToken = "RTM_AUTH_TOKEN"

// Source indicates where a credential was retrieved from
type Source string

const (
	SourceKeyring     Source = "keyring"
	SourceEnvironment Source = "environment"
	SourceNone        Source = "none"
)

// Status describes the stored credential without exposing the token.
type Status struct {
	Found    bool   `json:"found"`
	Source   string `json:"source"`
	Username string `json:"username,omitempty"`
	Perms    string `json:"perms,omitempty"`
}

// JSON serializes the status (token excluded by construction).
func (s *Status) JSON() ([]byte, error) {
	return json.Marshal(s)
}

// Manager handles credential operations
type Manager struct {
	keyring Keyring
	account string
}

// ManagerOption is a functional option for Manager
type ManagerOption func(*Manager)

// WithKeyring sets a custom keyring implementation
func WithKeyring(k Keyring) ManagerOption {
	return func(m *Manager) {
		m.keyring = k
	}
}

// WithAccount selects a non-default keyring account (profile).
func WithAccount(account string) ManagerOption {
	return func(m *Manager) {
		if account != "" {
			m.account = account
		}
	}
}

// NewManager creates a new credential manager
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		keyring: &systemKeyring{},
		account: DefaultAccount,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store saves a credential to the keyring, replacing any previous one.
func (m *Manager) Store(cred *rtm.Credential) error {
	if cred == nil || cred.Token == "" {
		return fmt.Errorf("refusing to store an empty credential")
	}
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to serialize credential: %w", err)
	}
	if err := m.keyring.Set(keyringService, m.account, string(data)); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// Load retrieves the credential: keyring first, then the RTM_AUTH_TOKEN
// environment variable. A missing credential is not an error; the
// returned source is SourceNone.
func (m *Manager) Load() (*rtm.Credential, Source, error) {
	data, err := m.keyring.Get(keyringService, m.account)
	if err == nil && data != "" {
		cred := &rtm.Credential{}
		if err := json.Unmarshal([]byte(data), cred); err != nil {
			return nil, SourceNone, fmt.Errorf("stored credential is corrupt: %w", err)
		}
		return cred, SourceKeyring, nil
	}

	if token := os.Getenv(EnvToken); token != "" {
		return &rtm.Credential{Token: token}, SourceEnvironment, nil
	}

	return nil, SourceNone, nil
}

// Clear removes the stored credential. Idempotent: clearing an empty
// keyring succeeds.
func (m *Manager) Clear() error {
	err := m.keyring.Delete(keyringService, m.account)
	if err != nil && strings.Contains(err.Error(), "not found") {
		return nil
	}
	return err
}

// GetStatus reports whether a credential exists and where it came from.
func (m *Manager) GetStatus() (*Status, error) {
	cred, source, err := m.Load()
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return &Status{Found: false, Source: string(SourceNone)}, nil
	}
	return &Status{
		Found:    true,
		Source:   string(source),
		Username: cred.User.Username,
		Perms:    cred.Perms,
	}, nil
}
