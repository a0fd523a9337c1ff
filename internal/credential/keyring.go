package credential

import (
	"errors"
	"fmt"
	"sync"

	"github.com/99designs/keyring"

	"github.com/amrut/notifydesk/internal/model"
)

// Keys under which the session is persisted.
const (
	KeyAccessToken = "access-token"
	KeyUserID      = "user-id"
)

// ErrNotFound is returned when no value is stored under a key.
var ErrNotFound = errors.New("credential not found")

// Store persists small secrets by key.
type Store interface {
	Get(key string) (string, error)
	Set(key string, value string) error
	Delete(key string) error
}

// KeyringStore implements Store on top of the system keyring.
type KeyringStore struct {
	mu   sync.Mutex
	ring keyring.Keyring
}

var _ Store = (*KeyringStore)(nil)

// Open returns a keyring-backed store for the configured service.
func Open(cfg model.CredentialConfig) (*KeyringStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: cfg.Service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  cfg.FileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(cfg.Service + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewKeyringStore(ring), nil
}

// NewKeyringStore wraps an already opened keyring.
func NewKeyringStore(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

// Get retrieves a credential value by key.
func (s *KeyringStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key.
func (s *KeyringStore) Set(key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "notifydesk " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key. Deleting a missing key is not an error.
func (s *KeyringStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// LoadSession reads the persisted user id and token. Missing entries
// yield empty fields rather than an error.
func LoadSession(s Store) (model.Credentials, error) {
	var creds model.Credentials

	token, err := s.Get(KeyAccessToken)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return creds, err
	}
	userID, err := s.Get(KeyUserID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return creds, err
	}

	creds.Token = token
	creds.UserID = userID
	return creds, nil
}

// SaveSession persists the user id and token.
func SaveSession(s Store, creds model.Credentials) error {
	if err := s.Set(KeyUserID, creds.UserID); err != nil {
		return err
	}
	return s.Set(KeyAccessToken, creds.Token)
}

// ClearSession removes the persisted session.
func ClearSession(s Store) error {
	if err := s.Delete(KeyAccessToken); err != nil {
		return err
	}
	return s.Delete(KeyUserID)
}
