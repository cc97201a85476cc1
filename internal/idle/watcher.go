// Package idle periodically re-engages channels that have gone quiet.
package idle

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"
)

// Defaults for the idle sweep.
const (
	DefaultInterval    = 300 * time.Second
	DefaultMinAge      = 600 * time.Second
	DefaultMaxAge      = 1800 * time.Second
	DefaultProbability = 0.1
)

// DefaultPhrases are the check-in messages sent to idle channels.
var DefaultPhrases = []string{
	"I'm still here if you want to chat!",
	"Been quiet for a bit. How are you doing?",
	"Just checking in. Need any help with anything?",
	"I'm here whenever you're ready to talk again.",
	"Anything on your mind? I'm all ears!",
	"Feel like chatting about something interesting?",
}

// ActivityTable exposes channel activity to the watcher.
type ActivityTable interface {
	Activity() map[string]time.Time
	Touch(channelID string)
}

// Sender delivers a message to a channel.
type Sender interface {
	SendMessage(ctx context.Context, channelID, content string) (string, error)
}

// Config tunes the sweep.
type Config struct {
	Interval    time.Duration
	MinAge      time.Duration
	MaxAge      time.Duration
	Probability float64
	Phrases     []string
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.MinAge <= 0 {
		c.MinAge = DefaultMinAge
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultMaxAge
	}
	if len(c.Phrases) == 0 {
		c.Phrases = DefaultPhrases
	}
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) { w.now = now }
}

// WithRand makes selection deterministic.
func WithRand(r *rand.Rand) Option {
	return func(w *Watcher) {
		w.chance = r.Float64
		w.pick = r.IntN
	}
}

// OnNudge registers a callback invoked after a check-in is sent.
func OnNudge(fn func(channelID, phrase string)) Option {
	return func(w *Watcher) { w.onNudge = fn }
}

// Watcher is a supervised background sweep over channel activity.
type Watcher struct {
	table  ActivityTable
	sender Sender
	cfg    Config
	logger *slog.Logger

	now     func() time.Time
	chance  func() float64
	pick    func(int) int
	onNudge func(channelID, phrase string)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Watcher. It does nothing until Start is called.
func New(table ActivityTable, sender Sender, cfg Config, logger *slog.Logger, opts ...Option) *Watcher {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		table:  table,
		sender: sender,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		chance: rand.Float64,
		pick:   rand.IntN,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the sweep loop. Calling Start on a running watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.run(ctx, w.done)
}

// Stop ends the sweep loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (w *Watcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	w.logger.Info("Idle watcher started",
		"interval", w.cfg.Interval,
		"min_age", w.cfg.MinAge,
		"max_age", w.cfg.MaxAge,
		"probability", w.cfg.Probability)

	for {
		select {
		case <-ticker.C:
			w.Sweep(ctx)
		case <-ctx.Done():
			w.logger.Info("Idle watcher shutting down", "reason", ctx.Err())
			return
		}
	}
}

// Sweep checks every channel once and returns how many were nudged.
// A channel qualifies when its idle age is strictly inside (MinAge, MaxAge);
// each qualifying channel is nudged with probability Probability.
func (w *Watcher) Sweep(ctx context.Context) int {
	activity := w.table.Activity()
	now := w.now()

	ids := make([]string, 0, len(activity))
	for id := range activity {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	nudged := 0
	for _, channelID := range ids {
		if ctx.Err() != nil {
			break
		}
		age := now.Sub(activity[channelID])
		if age <= w.cfg.MinAge || age >= w.cfg.MaxAge {
			continue
		}
		if w.chance() >= w.cfg.Probability {
			continue
		}
		if err := w.nudge(ctx, channelID); err != nil {
			w.logger.Error("Idle watcher failed to nudge channel", "channel_id", channelID, "error", err)
			continue
		}
		nudged++
	}

	if nudged > 0 {
		w.logger.Info("Idle watcher sweep completed", "channels", len(ids), "nudged", nudged)
	}
	return nudged
}

func (w *Watcher) nudge(ctx context.Context, channelID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while nudging: %v", r)
		}
	}()

	phrase := w.cfg.Phrases[w.pick(len(w.cfg.Phrases))]
	if _, err := w.sender.SendMessage(ctx, channelID, phrase); err != nil {
		return fmt.Errorf("send idle message: %w", err)
	}
	w.table.Touch(channelID)
	if w.onNudge != nil {
		w.onNudge(channelID, phrase)
	}
	return nil
}
