package respond

// Discord rejects messages longer than MaxMessageLength characters.
const (
	MaxMessageLength   = 2000
	SegmentLength      = 1994
	ContinuationMarker = "... "
)

// SplitReply cuts reply into segments of at most SegmentLength characters
// when it exceeds MaxMessageLength. Shorter replies come back unchanged as
// a single segment. Segments concatenate back to reply.
func SplitReply(reply string) []string {
	runes := []rune(reply)
	if len(runes) <= MaxMessageLength {
		return []string{reply}
	}

	segments := make([]string, 0, len(runes)/SegmentLength+1)
	for start := 0; start < len(runes); start += SegmentLength {
		end := min(start+SegmentLength, len(runes))
		segments = append(segments, string(runes[start:end]))
	}
	return segments
}

// Messages returns the reply as the ordered list of messages to send,
// marking every segment after the first as a continuation.
func Messages(reply string) []string {
	segments := SplitReply(reply)
	for i := 1; i < len(segments); i++ {
		segments[i] = ContinuationMarker + segments[i]
	}
	return segments
}
