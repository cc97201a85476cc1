package upstream

import (
	"context"
	"errors"
	"net"

	"github.com/openai/openai-go/v3"
)

// Reason classifies why an upstream call failed.
type Reason string

// Failure reasons shared by the chat and transcription pipelines.
const (
	ReasonNetwork   Reason = "network"
	ReasonStatus    Reason = "non-200"
	ReasonTimeout   Reason = "timeout"
	ReasonMalformed Reason = "malformed-response"
)

// Classify maps an error returned by the OpenAI client to a Reason and,
// for non-200 responses, the HTTP status code.
func Classify(err error) (Reason, int) {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return ReasonStatus, apiErr.StatusCode
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout, 0
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ReasonTimeout, 0
		}
		return ReasonNetwork, 0
	}
	if errors.Is(err, context.Canceled) {
		return ReasonNetwork, 0
	}
	return ReasonMalformed, 0
}
