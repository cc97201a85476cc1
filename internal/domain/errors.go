package domain

import "fmt"

// Validation failure kinds.
const (
	InvalidNumber = "not a number"
	OutOfRange    = "out of range"
	UnknownOption = "unknown option"
)

// ValidationError reports a command argument that was rejected.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
	Hint   string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}
