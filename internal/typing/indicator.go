// Package typing keeps a channel's "composing" indicator alive while a
// reply is being produced.
package typing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is how often the composing signal is refreshed.
const DefaultInterval = time.Second

// Signaler emits one composing signal to a channel.
type Signaler interface {
	SignalTyping(ctx context.Context, channelID string) error
}

// Task is a running typing-indicator loop.
type Task struct {
	channelID string
	cancel    context.CancelFunc
	done      chan struct{}
	once      sync.Once
}

// Start signals immediately and then every interval until the task is
// cancelled or ctx ends.
func Start(ctx context.Context, sig Signaler, channelID string, interval time.Duration, logger *slog.Logger) *Task {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	loopCtx, cancel := context.WithCancel(ctx)
	t := &Task{
		channelID: channelID,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	go t.run(loopCtx, sig, interval, logger)
	return t
}

func (t *Task) run(ctx context.Context, sig Signaler, interval time.Duration, logger *slog.Logger) {
	defer close(t.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		if err := sig.SignalTyping(ctx, t.channelID); err != nil && ctx.Err() == nil {
			logger.Debug("Typing signal failed", "channel_id", t.channelID, "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Cancel stops the loop and waits for it to exit. Safe to call any number
// of times; no signal is emitted after the first call returns.
func (t *Task) Cancel() {
	t.once.Do(t.cancel)
	<-t.done
}

// Done is closed once the loop has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}
