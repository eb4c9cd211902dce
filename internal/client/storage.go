package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// State is the locally persisted profile plus the live session id, the
// minimum needed to restore a session after an app restart.
type State struct {
	FirstName string         `json:"firstName"`
	Contacts  []ContactInput `json:"contacts"`
	SessionID string         `json:"sessionId,omitempty"`
}

// Store reads and writes State as a JSON file under the user's config
// directory.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultStorePath resolves to ~/.config/beaver/state.json (or the
// platform equivalent).
func DefaultStorePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "beaver", "state.json"), nil
}

// Load returns nil with no error when no state has been saved yet.
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	return &state, nil
}

func (s *Store) Save(state *State) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	// Contacts and session ids are sensitive; keep the file private.
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// ClearSession drops the session id but keeps the profile, so the next
// SOS does not require re-entering contacts.
func (s *Store) ClearSession() error {
	state, err := s.Load()
	if err != nil || state == nil {
		return err
	}
	state.SessionID = ""
	return s.Save(state)
}
