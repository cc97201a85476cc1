package respond

import (
	"fmt"

	"github.com/ashureev/chatcord/internal/upstream"
)

// ResponseError reports a failed chat completion call.
type ResponseError struct {
	Reason     upstream.Reason
	StatusCode int
	Detail     string
	Err        error
}

func (e *ResponseError) Error() string {
	msg := fmt.Sprintf("chat completion failed (%s)", e.Reason)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}
