// Package voice synthesizes replies and plays them into guild voice
// channels, one playback per guild at a time.
package voice

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrStopped is reported by a Playback that was interrupted by Stop.
var ErrStopped = errors.New("playback stopped")

// ErrAlreadyConnected is returned when a guild already has a connection.
var ErrAlreadyConnected = errors.New("voice connection already attached")

// Connection is an established link to a guild voice channel.
type Connection interface {
	// Play starts streaming the audio file and returns immediately.
	Play(path string) (Playback, error)
	// IsPlaying reports whether audio is currently being streamed.
	IsPlaying() bool
	// Stop interrupts the current playback, if any.
	Stop()
	// Disconnect leaves the voice channel.
	Disconnect() error
}

// Playback tracks one in-flight Play call.
type Playback interface {
	// Done is closed when playback finishes or is stopped.
	Done() <-chan struct{}
	// Err is valid after Done is closed.
	Err() error
}

// Audio is a synthesized speech file.
type Audio struct {
	Path     string
	Duration time.Duration
}

// Synthesizer renders text to an audio file. Callers own the file.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, slow bool) (Audio, error)
}

// SplitSentences breaks text into sentence units at '.', '!' and '?'.
// Empty units are dropped.
func SplitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
