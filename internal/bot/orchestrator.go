// Package bot coordinates conversations: it routes inbound messages and
// audio, runs the response and transcription pipelines, drives typing
// indicators and voice playback, and implements the chat commands.
package bot

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/ashureev/chatcord/internal/domain"
	"github.com/ashureev/chatcord/internal/events"
	"github.com/ashureev/chatcord/internal/idle"
	"github.com/ashureev/chatcord/internal/session"
	"github.com/ashureev/chatcord/internal/store"
	"github.com/ashureev/chatcord/internal/typing"
)

// DefaultVoiceMaxChars caps how much of a reply is spoken aloud.
const DefaultVoiceMaxChars = 500

// Deps are the collaborators the orchestrator drives.
type Deps struct {
	Messenger   Messenger
	Joiner      VoiceJoiner
	Fetcher     AttachmentFetcher
	Responder   Responder
	Transcriber Transcriber
	Speaker     Speaker
	Table       *session.Table
	Preferences store.PreferenceRepository
	Settings    *domain.Settings
	Hub         *events.Hub
	Limiter     *RateLimiter
}

// Config tunes orchestrator behaviour.
type Config struct {
	CommandPrefix  string
	TypingInterval time.Duration
	ThinkPauseMax  time.Duration
	VoiceMaxChars  int
	Idle           idle.Config
}

// Orchestrator owns per-channel conversation flow.
type Orchestrator struct {
	Deps
	cfg    Config
	logger *slog.Logger
	idle   *idle.Watcher
	pick   func(int) int
	sleep  func(context.Context, time.Duration)
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithRand makes phrase selection deterministic.
func WithRand(r *rand.Rand) Option {
	return func(o *Orchestrator) { o.pick = r.IntN }
}

// New creates an Orchestrator. Call Start to launch background work.
func New(deps Deps, cfg Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = "!"
	}
	if cfg.TypingInterval <= 0 {
		cfg.TypingInterval = typing.DefaultInterval
	}
	if cfg.VoiceMaxChars <= 0 {
		cfg.VoiceMaxChars = DefaultVoiceMaxChars
	}
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		Deps:   deps,
		cfg:    cfg,
		logger: logger,
		pick:   rand.IntN,
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.idle = idle.New(deps.Table, deps.Messenger, cfg.Idle, logger,
		idle.OnNudge(func(channelID, phrase string) {
			o.Hub.Publish(events.Event{Kind: events.KindNudge, ChannelID: channelID, Content: phrase})
		}))
	return o
}

// Start launches the idle watcher.
func (o *Orchestrator) Start(ctx context.Context) {
	o.idle.Start(ctx)
}

// Close stops background work, cancels typing indicators, and leaves all
// voice channels.
func (o *Orchestrator) Close() {
	o.idle.Stop()
	o.Table.Close()
	if o.Speaker != nil {
		o.Speaker.Close()
	}
}

// HandleMessage routes one inbound message. It blocks until every reply,
// transcription and playback triggered by the message has finished.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg Message) {
	if msg.FromBot {
		return
	}
	o.Table.Touch(msg.ChannelID)

	if cmd, ok := ParseCommand(o.cfg.CommandPrefix, msg.Content); ok {
		o.HandleCommand(ctx, msg, cmd)
		return
	}

	for _, att := range msg.Attachments {
		if isAudio(att.Filename) {
			o.handleAudio(ctx, msg, att)
		}
	}

	if !msg.MentionsBot && !msg.IsDM {
		return
	}

	content := strings.TrimSpace(msg.Content)
	if content == "" {
		if msg.MentionsBot {
			o.send(ctx, msg.ChannelID, pickPhrase(o.pick, greetingPhrases))
		}
		return
	}

	o.Hub.Publish(events.Event{
		Kind:      events.KindMessage,
		ChannelID: msg.ChannelID,
		GuildID:   msg.GuildID,
		UserID:    msg.AuthorID,
		Content:   content,
	})
	o.converse(ctx, msg, content)
}

// send delivers content and logs failures. It returns the message ID.
func (o *Orchestrator) send(ctx context.Context, channelID, content string) string {
	id, err := o.Messenger.SendMessage(ctx, channelID, content)
	if err != nil {
		o.logger.Error("Failed to send message", "channel_id", channelID, "error", err)
		return ""
	}
	return id
}

func (o *Orchestrator) react(ctx context.Context, msg Message, emoji string) {
	if err := o.Messenger.React(ctx, msg.ChannelID, msg.ID, emoji); err != nil {
		o.logger.Warn("Failed to add reaction", "channel_id", msg.ChannelID, "message_id", msg.ID, "emoji", emoji, "error", err)
	}
}

// startTyping installs a typing indicator for the channel, replacing any
// indicator already running there.
func (o *Orchestrator) startTyping(ctx context.Context, channelID string) session.Canceler {
	return o.Table.StartTyping(channelID, func() session.Canceler {
		return typing.Start(ctx, o.Messenger, channelID, o.cfg.TypingInterval, o.logger)
	})
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
