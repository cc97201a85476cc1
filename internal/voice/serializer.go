package voice

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultGrace is added to the audio duration before a playback is
	// considered stuck and forcibly stopped.
	DefaultGrace = 5 * time.Second

	// stopWait bounds how long a stopped playback may take to wind down.
	stopWait = 5 * time.Second
)

type guildSlot struct {
	conn Connection

	// mu serializes stop-then-start so only one playback is active.
	mu       sync.Mutex
	current  Playback
	detached bool
}

// Serializer owns every guild voice connection and guarantees at most one
// active playback per guild. A newer Speak call stops the playback in
// progress and replaces it; nothing is queued.
type Serializer struct {
	synth       Synthesizer
	defaultRate float64
	grace       time.Duration
	logger      *slog.Logger

	mu    sync.RWMutex
	slots map[string]*guildSlot
	rates map[string]float64
}

// NewSerializer creates a Serializer.
func NewSerializer(synth Synthesizer, defaultRate float64, grace time.Duration, logger *slog.Logger) *Serializer {
	if defaultRate <= 0 {
		defaultRate = 1.0
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Serializer{
		synth:       synth,
		defaultRate: defaultRate,
		grace:       grace,
		logger:      logger,
		slots:       make(map[string]*guildSlot),
		rates:       make(map[string]float64),
	}
}

// Attach registers the voice connection for a guild.
func (s *Serializer) Attach(guildID string, conn Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slots[guildID]; ok {
		return ErrAlreadyConnected
	}
	s.slots[guildID] = &guildSlot{conn: conn}
	s.logger.Info("Voice connection attached", "guild_id", guildID)
	return nil
}

// Connected reports whether the guild has a voice connection.
func (s *Serializer) Connected(guildID string) bool {
	return s.slot(guildID) != nil
}

// Guilds returns the IDs of guilds with a voice connection.
func (s *Serializer) Guilds() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.slots))
	for id := range s.slots {
		out = append(out, id)
	}
	return out
}

// Detach stops any playback, disconnects, and forgets the guild's
// connection. It reports whether a connection existed.
func (s *Serializer) Detach(guildID string) (bool, error) {
	s.mu.Lock()
	slot, ok := s.slots[guildID]
	delete(s.slots, guildID)
	s.mu.Unlock()
	if !ok {
		return false, nil
	}

	slot.mu.Lock()
	s.stopLocked(slot)
	slot.detached = true
	slot.mu.Unlock()

	s.logger.Info("Voice connection detached", "guild_id", guildID)
	return true, slot.conn.Disconnect()
}

// Close detaches every guild.
func (s *Serializer) Close() {
	for _, guildID := range s.Guilds() {
		if _, err := s.Detach(guildID); err != nil {
			s.logger.Warn("Voice disconnect failed", "guild_id", guildID, "error", err)
		}
	}
}

// SetSpeechRate sets the guild's speech rate. Callers validate the range.
func (s *Serializer) SetSpeechRate(guildID string, rate float64) {
	s.mu.Lock()
	s.rates[guildID] = rate
	s.mu.Unlock()
}

// SpeechRate returns the guild's speech rate or the default.
func (s *Serializer) SpeechRate(guildID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rate, ok := s.rates[guildID]; ok {
		return rate
	}
	return s.defaultRate
}

func (s *Serializer) slot(guildID string) *guildSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slots[guildID]
}

// Speak synthesizes text and plays it in the guild, blocking until the
// playback finishes, is superseded, or ctx ends. Without a connection it
// does nothing. The synthesized file is removed before returning.
func (s *Serializer) Speak(ctx context.Context, guildID, text string) error {
	slot := s.slot(guildID)
	if slot == nil {
		return nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	rate := s.SpeechRate(guildID)
	slow := rate < 1.0
	s.logger.Debug("Synthesizing speech",
		"guild_id", guildID,
		"sentences", len(SplitSentences(text)),
		"rate", rate,
		"slow", slow)

	audio, err := s.synth.Synthesize(ctx, text, slow)
	if err != nil {
		return &PlaybackError{GuildID: guildID, Op: OpSynthesize, Err: err}
	}
	defer func() {
		if rmErr := os.Remove(audio.Path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			s.logger.Warn("Failed to remove synthesized audio", "path", audio.Path, "error", rmErr)
		}
	}()

	pb, err := s.start(slot, audio.Path)
	if err != nil {
		return &PlaybackError{GuildID: guildID, Op: OpPlay, Err: err}
	}
	if pb == nil {
		s.logger.Debug("Voice connection detached during synthesis", "guild_id", guildID)
		return nil
	}
	return s.await(ctx, guildID, slot, pb, audio.Duration)
}

// start returns a nil Playback when the slot was detached.
func (s *Serializer) start(slot *guildSlot, path string) (Playback, error) {
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.detached {
		return nil, nil
	}
	s.stopLocked(slot)
	pb, err := slot.conn.Play(path)
	if err != nil {
		return nil, err
	}
	slot.current = pb
	return pb, nil
}

// stopLocked stops the active playback and waits for it to wind down.
// slot.mu must be held.
func (s *Serializer) stopLocked(slot *guildSlot) {
	active := slot.current != nil && !isDone(slot.current)
	if !active && !slot.conn.IsPlaying() {
		slot.current = nil
		return
	}

	slot.conn.Stop()
	if slot.current != nil {
		select {
		case <-slot.current.Done():
		case <-time.After(stopWait):
			s.logger.Warn("Stopped playback did not finish in time")
		}
	}
	slot.current = nil
}

func (s *Serializer) await(ctx context.Context, guildID string, slot *guildSlot, pb Playback, dur time.Duration) error {
	var watchdog <-chan time.Time
	if dur > 0 {
		timer := time.NewTimer(dur + s.grace)
		defer timer.Stop()
		watchdog = timer.C
	}

	select {
	case <-pb.Done():
		if err := pb.Err(); err != nil && !errors.Is(err, ErrStopped) {
			return &PlaybackError{GuildID: guildID, Op: OpPlay, Err: err}
		}
		return nil
	case <-ctx.Done():
		s.stopIfCurrent(slot, pb)
		return &PlaybackError{GuildID: guildID, Op: OpPlay, Err: ctx.Err()}
	case <-watchdog:
		s.logger.Warn("Playback exceeded expected duration, stopping", "guild_id", guildID, "duration", dur)
		s.stopIfCurrent(slot, pb)
		return nil
	}
}

func (s *Serializer) stopIfCurrent(slot *guildSlot, pb Playback) {
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.current == pb {
		s.stopLocked(slot)
	}
}

func isDone(pb Playback) bool {
	select {
	case <-pb.Done():
		return true
	default:
		return false
	}
}
