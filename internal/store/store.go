// Package store provides preference persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/chatcord/internal/domain"
)

// PreferenceRepository persists per-user preferences.
type PreferenceRepository interface {
	// Get returns the stored preference for a user, or nil if none exists.
	Get(ctx context.Context, userID string) (*domain.UserPreference, error)

	// SetTemperature stores the user's temperature and persists it before returning.
	SetTemperature(ctx context.Context, userID string, temperature float64) error

	// SetSpeechRate stores the user's speech rate and persists it before returning.
	SetSpeechRate(ctx context.Context, userID string, rate float64) error

	// All returns a copy of every stored preference keyed by user ID.
	All(ctx context.Context) (map[string]domain.UserPreference, error)

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases the backing storage.
	Close() error
}

func float64Ptr(v float64) *float64 {
	return &v
}
