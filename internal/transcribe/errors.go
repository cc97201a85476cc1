package transcribe

import (
	"fmt"

	"github.com/ashureev/chatcord/internal/upstream"
)

// ReasonLocalIO marks failures writing the audio to local scratch space.
const ReasonLocalIO upstream.Reason = "local-io"

// TranscriptionError reports a failed speech-to-text attempt.
type TranscriptionError struct {
	Reason     upstream.Reason
	StatusCode int
	Err        error
}

func (e *TranscriptionError) Error() string {
	msg := fmt.Sprintf("transcription failed (%s)", e.Reason)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TranscriptionError) Unwrap() error {
	return e.Err
}
