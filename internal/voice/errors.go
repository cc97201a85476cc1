package voice

import "fmt"

// Playback failure stages.
const (
	OpSynthesize = "synthesize"
	OpPlay       = "play"
)

// PlaybackError reports a failed Speak call.
type PlaybackError struct {
	GuildID string
	Op      string
	Err     error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("voice %s failed for guild %s: %v", e.Op, e.GuildID, e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}
