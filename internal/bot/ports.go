package bot

import (
	"context"
	"errors"
	"io"

	"github.com/ashureev/chatcord/internal/voice"
)

// ErrUserNotInVoice is returned by a VoiceJoiner when the requesting user
// is not in any voice channel of the guild.
var ErrUserNotInVoice = errors.New("user is not in a voice channel")

// Messenger sends and manages text in chat channels.
type Messenger interface {
	SendMessage(ctx context.Context, channelID, content string) (string, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	SignalTyping(ctx context.Context, channelID string) error
	React(ctx context.Context, channelID, messageID, emoji string) error
}

// VoiceJoiner opens a voice connection to the channel a user is in.
type VoiceJoiner interface {
	JoinUserChannel(ctx context.Context, guildID, userID string) (conn voice.Connection, channelName string, err error)
}

// AttachmentFetcher downloads an attachment body.
type AttachmentFetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// Responder produces an assistant reply for a channel.
type Responder interface {
	Respond(ctx context.Context, channelID, userText string) (string, error)
}

// Transcriber turns audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// Speaker plays speech into guild voice channels.
type Speaker interface {
	Attach(guildID string, conn voice.Connection) error
	Detach(guildID string) (bool, error)
	Connected(guildID string) bool
	Speak(ctx context.Context, guildID, text string) error
	SetSpeechRate(guildID string, rate float64)
	SpeechRate(guildID string) float64
	Close()
}

// Attachment is a file attached to an inbound message.
type Attachment struct {
	Filename string
	URL      string
}

// Message is a platform-neutral inbound chat message.
type Message struct {
	ID          string
	ChannelID   string
	GuildID     string
	AuthorID    string
	AuthorName  string
	Content     string
	FromBot     bool
	IsDM        bool
	MentionsBot bool
	Attachments []Attachment
}
