package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ashureev/chatcord/internal/domain"
)

// JSONStore implements PreferenceRepository on a single JSON document
// mapping user ID to preference. Every mutation rewrites the whole file.
type JSONStore struct {
	path  string
	mu    sync.Mutex
	prefs map[string]domain.UserPreference
}

// NewJSON loads the preference file at path. A missing or malformed file
// yields an empty table.
func NewJSON(path string) (*JSONStore, error) {
	s := &JSONStore{
		path:  path,
		prefs: make(map[string]domain.UserPreference),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Info("Preference file not found, starting empty", "path", path)
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read preferences: %w", err)
	}

	var loaded map[string]domain.UserPreference
	if err := json.Unmarshal(data, &loaded); err != nil {
		slog.Warn("Preference file is malformed, starting empty", "path", path, "error", err)
		return s, nil
	}
	for userID, pref := range loaded {
		s.prefs[userID] = pref
	}
	slog.Info("Preferences loaded", "path", path, "users", len(s.prefs))
	return s, nil
}

// Get retrieves a user's preference.
func (s *JSONStore) Get(_ context.Context, userID string) (*domain.UserPreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pref, ok := s.prefs[userID]
	if !ok {
		return nil, nil
	}
	return &pref, nil
}

// SetTemperature stores a user's temperature.
func (s *JSONStore) SetTemperature(_ context.Context, userID string, temperature float64) error {
	return s.update(userID, func(p *domain.UserPreference) {
		p.Temperature = float64Ptr(temperature)
	})
}

// SetSpeechRate stores a user's speech rate.
func (s *JSONStore) SetSpeechRate(_ context.Context, userID string, rate float64) error {
	return s.update(userID, func(p *domain.UserPreference) {
		p.SpeechRate = float64Ptr(rate)
	})
}

// All returns every stored preference.
func (s *JSONStore) All(_ context.Context) (map[string]domain.UserPreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.UserPreference, len(s.prefs))
	for k, v := range s.prefs {
		out[k] = v
	}
	return out, nil
}

// Ping checks that the preference directory is still accessible.
func (s *JSONStore) Ping(_ context.Context) error {
	if _, err := os.Stat(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("stat preference directory: %w", err)
	}
	return nil
}

// Close is a no-op; every mutation is already on disk.
func (s *JSONStore) Close() error {
	return nil
}

// update applies fn and rewrites the file while holding the lock, so the
// in-memory table and the file never diverge between two writers.
func (s *JSONStore) update(userID string, fn func(*domain.UserPreference)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.prefs[userID]
	next := prev
	fn(&next)
	s.prefs[userID] = next

	if err := s.writeLocked(); err != nil {
		if existed {
			s.prefs[userID] = prev
		} else {
			delete(s.prefs, userID)
		}
		return err
	}
	return nil
}

func (s *JSONStore) writeLocked() error {
	data, err := json.MarshalIndent(s.prefs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create preference directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".prefs-*.json")
	if err != nil {
		return fmt.Errorf("create temp preference file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close preferences: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace preferences: %w", err)
	}
	return nil
}
