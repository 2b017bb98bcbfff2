package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/Nikita-812/WebProject/internal/models"
)

// credentialKey is the single fixed key the auth payload lives under.
const credentialKey = "flowboard.auth"

// CredentialStore persists the last-obtained bearer credential and user
// identity in a local file-backed key-value store. The payload is written on
// successful authentication, rehydrated at startup and erased on sign-out.
type CredentialStore struct {
	mu   sync.Mutex
	path string
}

// NewCredentialStore stores credentials at path, e.g. ~/.config/flowboard/auth.json.
func NewCredentialStore(path string) *CredentialStore {
	return &CredentialStore{path: path}
}

// DefaultCredentialPath resolves the per-user config location.
func DefaultCredentialPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "flowboard", "auth.json"), nil
}

// Save writes the credential under the fixed key.
func (s *CredentialStore) Save(auth models.AuthResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(map[string]models.AuthResponse{credentialKey: auth}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// Load rehydrates the stored credential. A missing or unreadable store yields
// (nil, nil): the user simply is not signed in.
func (s *CredentialStore) Load() (*models.AuthResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var entries map[string]models.AuthResponse
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, nil
	}
	auth, ok := entries[credentialKey]
	if !ok || auth.AccessToken == "" {
		return nil, nil
	}
	return &auth, nil
}

// Erase removes the stored credential. Missing store is not an error.
func (s *CredentialStore) Erase() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("erase credentials: %w", err)
	}
	return nil
}
