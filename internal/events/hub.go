// Package events fans orchestrator activity out to live subscribers.
package events

import (
	"container/list"
	"log/slog"
	"sync"
	"time"
)

// Kind identifies what happened.
type Kind string

// Event kinds published by the orchestrator.
const (
	KindMessage    Kind = "message"
	KindReply      Kind = "reply"
	KindTranscript Kind = "transcript"
	KindNudge      Kind = "idle_nudge"
	KindCommand    Kind = "command"
	KindVoice      Kind = "voice"
	KindError      Kind = "error"
)

// Event is one published activity record.
type Event struct {
	ID        int64          `json:"id"`
	Kind      Kind           `json:"kind"`
	ChannelID string         `json:"channel_id,omitempty"`
	GuildID   string         `json:"guild_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Content   string         `json:"content,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	Time      time.Time      `json:"time"`
}

const (
	defaultReplaySize = 100
	defaultBufferSize = 32
)

// Subscription receives events until closed.
type Subscription struct {
	id   int64
	ch   chan Event
	hub  *Hub
	once sync.Once
}

// C returns the event stream. It is closed when the subscription ends.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close ends the subscription.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Hub keeps a bounded replay buffer and pushes each event to every
// subscriber without blocking. A subscriber that falls behind loses events.
type Hub struct {
	mu         sync.Mutex
	nextID     int64
	nextSubID  int64
	replay     *list.List
	replaySize int
	bufferSize int
	subs       map[int64]*Subscription
	closed     bool
}

// NewHub creates a Hub. Non-positive sizes fall back to defaults.
func NewHub(replaySize, bufferSize int) *Hub {
	if replaySize <= 0 {
		replaySize = defaultReplaySize
	}
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Hub{
		replay:     list.New(),
		replaySize: replaySize,
		bufferSize: bufferSize,
		subs:       make(map[int64]*Subscription),
	}
}

// Publish stamps e with an ID and time and delivers it. Safe on a nil Hub.
func (h *Hub) Publish(e Event) Event {
	if h == nil {
		return e
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return e
	}

	h.nextID++
	e.ID = h.nextID
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	h.replay.PushBack(e)
	for h.replay.Len() > h.replaySize {
		h.replay.Remove(h.replay.Front())
	}

	for _, sub := range h.subs {
		select {
		case sub.ch <- e:
		default:
			slog.Debug("Dropping event for slow subscriber", "subscriber", sub.id, "event_id", e.ID)
		}
	}
	return e
}

// Subscribe registers a subscriber and returns the buffered events with
// ID greater than afterID.
func (h *Hub) Subscribe(afterID int64) (*Subscription, []Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSubID++
	sub := &Subscription{
		id:  h.nextSubID,
		ch:  make(chan Event, h.bufferSize),
		hub: h,
	}
	if h.closed {
		close(sub.ch)
		return sub, nil
	}
	h.subs[sub.id] = sub

	var missed []Event
	for el := h.replay.Front(); el != nil; el = el.Next() {
		if e := el.Value.(Event); e.ID > afterID {
			missed = append(missed, e)
		}
	}
	return sub, missed
}

func (h *Hub) unsubscribe(sub *Subscription) {
	sub.once.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[sub.id]; ok {
			delete(h.subs, sub.id)
			close(sub.ch)
		}
	})
}

// Recent returns up to n of the most recent events, oldest first.
func (h *Hub) Recent(n int) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || n > h.replay.Len() {
		n = h.replay.Len()
	}
	out := make([]Event, 0, n)
	el := h.replay.Back()
	for i := 0; i < n-1 && el.Prev() != nil; i++ {
		el = el.Prev()
	}
	for ; el != nil; el = el.Next() {
		out = append(out, el.Value.(Event))
	}
	return out
}

// Close ends every subscription. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}
