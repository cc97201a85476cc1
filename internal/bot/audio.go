package bot

import (
	"context"
	"fmt"

	"github.com/ashureev/chatcord/internal/events"
	"github.com/ashureev/chatcord/internal/transcribe"
)

func isAudio(filename string) bool {
	return transcribe.IsAudioFile(filename)
}

// handleAudio transcribes one audio attachment and, on success, answers
// the transcript as if it had been typed.
func (o *Orchestrator) handleAudio(ctx context.Context, msg Message, att Attachment) {
	task := o.startTyping(ctx, msg.ChannelID)
	defer o.Table.StopTyping(msg.ChannelID, task)

	o.react(ctx, msg, reactListening)

	text, err := o.transcribeAttachment(ctx, att)
	if err != nil {
		o.logger.Error("Audio attachment failed", "channel_id", msg.ChannelID, "filename", att.Filename, "error", err)
		o.react(ctx, msg, reactFailure)
		o.send(ctx, msg.ChannelID, msgTranscribeFailed)
		o.Hub.Publish(events.Event{
			Kind:      events.KindError,
			ChannelID: msg.ChannelID,
			UserID:    msg.AuthorID,
			Content:   err.Error(),
		})
		return
	}

	o.react(ctx, msg, reactSuccess)
	o.send(ctx, msg.ChannelID, fmt.Sprintf("🎤 **%s said:** %s", msg.AuthorName, text))
	o.Hub.Publish(events.Event{
		Kind:      events.KindTranscript,
		ChannelID: msg.ChannelID,
		UserID:    msg.AuthorID,
		Content:   text,
		Meta:      map[string]any{"filename": att.Filename},
	})

	o.converse(ctx, msg, text)
}

func (o *Orchestrator) transcribeAttachment(ctx context.Context, att Attachment) (string, error) {
	body, err := o.Fetcher.Fetch(ctx, att.URL)
	if err != nil {
		return "", fmt.Errorf("download attachment: %w", err)
	}
	defer func() { _ = body.Close() }()

	return o.Transcriber.Transcribe(ctx, body, att.Filename)
}
