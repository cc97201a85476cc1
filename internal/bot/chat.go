package bot

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/ashureev/chatcord/internal/events"
	"github.com/ashureev/chatcord/internal/respond"
)

// converse runs one full exchange: typing indicator, placeholder, model
// call, chunked reply, and optional speech.
func (o *Orchestrator) converse(ctx context.Context, msg Message, text string) {
	if !o.Limiter.Allow(msg.AuthorID) {
		o.logger.Warn("Rate limit exceeded", "user_id", msg.AuthorID, "channel_id", msg.ChannelID)
		o.send(ctx, msg.ChannelID, msgSlowDown)
		return
	}

	task := o.startTyping(ctx, msg.ChannelID)
	defer o.Table.StopTyping(msg.ChannelID, task)

	o.sleep(ctx, o.thinkPause(text))

	reply, err := o.respondWithPlaceholder(ctx, msg.ChannelID, text)
	if err != nil {
		var rerr *respond.ResponseError
		if errors.As(err, &rerr) {
			o.send(ctx, msg.ChannelID, msgBrainTrouble)
		} else {
			o.send(ctx, msg.ChannelID, msgSomethingWrong)
		}
		o.Hub.Publish(events.Event{
			Kind:      events.KindError,
			ChannelID: msg.ChannelID,
			UserID:    msg.AuthorID,
			Content:   err.Error(),
		})
		return
	}

	for _, part := range respond.Messages(reply) {
		if _, err := o.Messenger.SendMessage(ctx, msg.ChannelID, part); err != nil {
			o.logger.Error("Failed to deliver reply segment", "channel_id", msg.ChannelID, "error", err)
			break
		}
	}
	o.Hub.Publish(events.Event{
		Kind:      events.KindReply,
		ChannelID: msg.ChannelID,
		GuildID:   msg.GuildID,
		Content:   reply,
	})

	if msg.GuildID != "" && o.Speaker != nil && o.Speaker.Connected(msg.GuildID) {
		o.speak(ctx, msg.GuildID, truncateRunes(reply, o.cfg.VoiceMaxChars))
	}
}

// respondWithPlaceholder shows a thinking message for exactly the duration
// of the model call.
func (o *Orchestrator) respondWithPlaceholder(ctx context.Context, channelID, text string) (string, error) {
	placeholderID := o.send(ctx, channelID, pickPhrase(o.pick, thinkingPhrases))

	reply, err := o.Responder.Respond(ctx, channelID, text)

	if placeholderID != "" {
		if delErr := o.Messenger.DeleteMessage(context.WithoutCancel(ctx), channelID, placeholderID); delErr != nil {
			o.logger.Warn("Failed to delete thinking placeholder", "channel_id", channelID, "error", delErr)
		}
	}
	return reply, err
}

// thinkPause scales with message length, capped at ThinkPauseMax.
func (o *Orchestrator) thinkPause(text string) time.Duration {
	if o.cfg.ThinkPauseMax <= 0 {
		return 0
	}
	d := time.Duration(utf8.RuneCountInString(text)) * time.Second / 50
	return min(d, o.cfg.ThinkPauseMax)
}

func (o *Orchestrator) speak(ctx context.Context, guildID, text string) {
	o.Hub.Publish(events.Event{Kind: events.KindVoice, GuildID: guildID, Content: text})
	if err := o.Speaker.Speak(ctx, guildID, text); err != nil {
		o.logger.Error("Voice playback failed", "guild_id", guildID, "error", err)
	}
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
