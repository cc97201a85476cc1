// Package session tracks per-channel conversation state.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/ashureev/chatcord/internal/domain"
)

// DefaultHistoryLimit is the number of turns retained per channel.
const DefaultHistoryLimit = 20

// Canceler is a running background task bound to a channel.
type Canceler interface {
	Cancel()
}

// Summary describes one channel for inspection.
type Summary struct {
	ChannelID    string    `json:"channel_id"`
	Turns        int       `json:"turns"`
	LastActivity time.Time `json:"last_activity"`
	Typing       bool      `json:"typing"`
}

type channelSession struct {
	mu           sync.Mutex
	history      []domain.Turn
	lastActivity time.Time

	// typingMu is separate from mu so cancelling a typing task never
	// blocks history access on the same channel.
	typingMu sync.Mutex
	typing   Canceler
}

// Table holds every channel session seen during the process lifetime.
// Different channels never contend on the same lock; turns on one channel
// are serialized.
type Table struct {
	mu       sync.RWMutex
	sessions map[string]*channelSession
	limit    int
	now      func() time.Time
}

// Option configures a Table.
type Option func(*Table)

// WithClock overrides the time source used for activity timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Table) {
		t.now = now
	}
}

// NewTable creates a table that keeps at most limit turns per channel.
func NewTable(limit int, opts ...Option) *Table {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	t := &Table{
		sessions: make(map[string]*channelSession),
		limit:    limit,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Table) lookup(channelID string) *channelSession {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessions[channelID]
}

func (t *Table) getOrCreate(channelID string) *channelSession {
	if s := t.lookup(channelID); s != nil {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[channelID]; ok {
		return s
	}
	s := &channelSession{lastActivity: t.now()}
	t.sessions[channelID] = s
	return s
}

// Touch marks the channel as active now, creating its session if needed.
func (t *Table) Touch(channelID string) {
	s := t.getOrCreate(channelID)
	now := t.now()
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

// LastActivity returns the channel's last activity time.
func (t *Table) LastActivity(channelID string) (time.Time, bool) {
	s := t.lookup(channelID)
	if s == nil {
		return time.Time{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity, true
}

// RecordTurn appends a turn, dropping the oldest turns beyond the limit.
func (t *Table) RecordTurn(channelID string, role domain.Role, content string) {
	s := t.getOrCreate(channelID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, domain.Turn{Role: role, Content: content})
	if over := len(s.history) - t.limit; over > 0 {
		trimmed := make([]domain.Turn, t.limit)
		copy(trimmed, s.history[over:])
		s.history = trimmed
	}
}

// History returns a copy of the channel's turns in chronological order.
func (t *Table) History(channelID string) []domain.Turn {
	s := t.lookup(channelID)
	if s == nil {
		return []domain.Turn{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Clear empties the channel's history and reports whether any turns
// were removed.
func (t *Table) Clear(channelID string) bool {
	s := t.lookup(channelID)
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	had := len(s.history) > 0
	s.history = nil
	return had
}

// Activity returns the last activity time of every known channel.
func (t *Table) Activity() map[string]time.Time {
	t.mu.RLock()
	sessions := make(map[string]*channelSession, len(t.sessions))
	for id, s := range t.sessions {
		sessions[id] = s
	}
	t.mu.RUnlock()

	out := make(map[string]time.Time, len(sessions))
	for id, s := range sessions {
		s.mu.Lock()
		out[id] = s.lastActivity
		s.mu.Unlock()
	}
	return out
}

// StartTyping cancels the channel's current typing task, if any, then
// installs the task returned by start.
func (t *Table) StartTyping(channelID string, start func() Canceler) Canceler {
	s := t.getOrCreate(channelID)
	s.typingMu.Lock()
	defer s.typingMu.Unlock()

	if s.typing != nil {
		s.typing.Cancel()
		s.typing = nil
	}
	s.typing = start()
	return s.typing
}

// StopTyping cancels handle and clears it if it is still the channel's
// current typing task. A replaced handle is cancelled without touching
// its successor.
func (t *Table) StopTyping(channelID string, handle Canceler) {
	if handle == nil {
		return
	}
	handle.Cancel()

	s := t.lookup(channelID)
	if s == nil {
		return
	}
	s.typingMu.Lock()
	if s.typing == handle {
		s.typing = nil
	}
	s.typingMu.Unlock()
}

// Snapshot summarizes every channel, ordered by channel ID.
func (t *Table) Snapshot() []Summary {
	t.mu.RLock()
	ids := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	t.mu.RUnlock()
	sort.Strings(ids)

	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		s := t.lookup(id)
		s.mu.Lock()
		sum := Summary{ChannelID: id, Turns: len(s.history), LastActivity: s.lastActivity}
		s.mu.Unlock()

		s.typingMu.Lock()
		sum.Typing = s.typing != nil
		s.typingMu.Unlock()
		out = append(out, sum)
	}
	return out
}

// Close cancels every active typing task.
func (t *Table) Close() {
	t.mu.RLock()
	sessions := make([]*channelSession, 0, len(t.sessions))
	for _, s := range t.sessions {
		sessions = append(sessions, s)
	}
	t.mu.RUnlock()

	for _, s := range sessions {
		s.typingMu.Lock()
		if s.typing != nil {
			s.typing.Cancel()
			s.typing = nil
		}
		s.typingMu.Unlock()
	}
}
