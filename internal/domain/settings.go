package domain

import (
	"sort"
	"strings"
	"sync"
)

// DefaultModelAlias is the model selected at startup.
const DefaultModelAlias = "llama"

// ModelCatalog maps short aliases to upstream chat model identifiers.
var ModelCatalog = map[string]string{
	"llama":   "llama-3.3-70b-versatile",
	"gemma":   "gemma-7b-it",
	"mixtral": "mixtral-8x7b-32768",
	"qwen":    "qwen-2.5-32b",
}

// ModelAliases returns the catalogue aliases in a stable order.
func ModelAliases() []string {
	aliases := make([]string, 0, len(ModelCatalog))
	for alias := range ModelCatalog {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

// Settings is the process-wide model and temperature used for every
// chat completion. Safe for concurrent use.
type Settings struct {
	mu          sync.RWMutex
	model       string
	temperature float64
}

// NewSettings creates settings with the given initial model and temperature.
func NewSettings(model string, temperature float64) *Settings {
	if id, ok := ModelCatalog[strings.ToLower(model)]; ok {
		model = id
	}
	return &Settings{model: model, temperature: temperature}
}

// Model returns the current upstream model identifier.
func (s *Settings) Model() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// SelectModel switches to the model registered under alias.
func (s *Settings) SelectModel(alias string) (string, error) {
	id, ok := ModelCatalog[strings.ToLower(strings.TrimSpace(alias))]
	if !ok {
		return "", &ValidationError{
			Field:  "model",
			Value:  alias,
			Reason: UnknownOption,
			Hint:   "available models: " + strings.Join(ModelAliases(), ", "),
		}
	}
	s.mu.Lock()
	s.model = id
	s.mu.Unlock()
	return id, nil
}

// Temperature returns the current sampling temperature.
func (s *Settings) Temperature() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.temperature
}

// SetTemperature replaces the sampling temperature. Callers validate first.
func (s *Settings) SetTemperature(t float64) {
	s.mu.Lock()
	s.temperature = t
	s.mu.Unlock()
}
