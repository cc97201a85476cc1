package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Accepted ranges for user-tunable settings.
const (
	MinTemperature = 0.1
	MaxTemperature = 1.5
	MinSpeechRate  = 0.5
	MaxSpeechRate  = 2.0

	DefaultTemperature = 0.7
	DefaultSpeechRate  = 1.0
)

// UserPreference holds the settings a user has explicitly chosen.
// Unset fields are nil.
type UserPreference struct {
	Temperature *float64 `json:"temperature,omitempty"`
	SpeechRate  *float64 `json:"speech_rate,omitempty"`
}

// UnmarshalJSON also accepts the older "speaking_speed" key for SpeechRate.
func (p *UserPreference) UnmarshalJSON(data []byte) error {
	var raw struct {
		Temperature   *float64 `json:"temperature"`
		SpeechRate    *float64 `json:"speech_rate"`
		SpeakingSpeed *float64 `json:"speaking_speed"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Temperature = raw.Temperature
	p.SpeechRate = raw.SpeechRate
	if p.SpeechRate == nil {
		p.SpeechRate = raw.SpeakingSpeed
	}
	return nil
}

// ParseTemperature parses and range-checks a temperature argument.
func ParseTemperature(raw string) (float64, error) {
	return parseInRange("temperature", raw, MinTemperature, MaxTemperature)
}

// ParseSpeechRate parses and range-checks a speech rate argument.
func ParseSpeechRate(raw string) (float64, error) {
	return parseInRange("speed", raw, MinSpeechRate, MaxSpeechRate)
}

func parseInRange(field, raw string, lo, hi float64) (float64, error) {
	raw = strings.TrimSpace(raw)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ValidationError{Field: field, Value: raw, Reason: InvalidNumber}
	}
	if v < lo || v > hi {
		return 0, &ValidationError{
			Field:  field,
			Value:  raw,
			Reason: OutOfRange,
			Hint:   "must be between " + formatFloat(lo) + " and " + formatFloat(hi),
		}
	}
	return v, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
