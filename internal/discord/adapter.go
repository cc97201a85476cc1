// Package discord connects the orchestrator to the Discord gateway and
// REST API.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/chatcord/internal/bot"
	"github.com/ashureev/chatcord/internal/voice"
	"github.com/bwmarrin/discordgo"
)

// Intents requested when opening the gateway.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentsMessageContent

// MessageHandler processes one inbound message.
type MessageHandler func(ctx context.Context, msg bot.Message)

// Adapter owns the gateway session and implements bot.Messenger and
// bot.VoiceJoiner on top of it.
type Adapter struct {
	session *discordgo.Session
	ffmpeg  string
	logger  *slog.Logger

	mu       sync.RWMutex
	ctx      context.Context
	handler  MessageHandler
	inflight sync.WaitGroup
}

var (
	_ bot.Messenger   = (*Adapter)(nil)
	_ bot.VoiceJoiner = (*Adapter)(nil)
)

// New creates an adapter for the bot token. Call Open to connect.
func New(token, ffmpeg string, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = Intents

	a := &Adapter{session: s, ffmpeg: ffmpeg, logger: logger, ctx: context.Background()}
	s.AddHandler(a.onMessageCreate)
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		logger.Info("Discord session ready", "user", r.User.Username, "guilds", len(r.Guilds))
	})
	return a, nil
}

// Open connects to the gateway. Messages are dispatched to handler with a
// context derived from ctx.
func (a *Adapter) Open(ctx context.Context, handler MessageHandler) error {
	a.mu.Lock()
	a.ctx = ctx
	a.handler = handler
	a.mu.Unlock()

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	return nil
}

// Close disconnects from the gateway after in-flight handlers return.
func (a *Adapter) Close() error {
	a.mu.Lock()
	a.handler = nil
	a.mu.Unlock()
	a.inflight.Wait()
	return a.session.Close()
}

func (a *Adapter) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	a.mu.RLock()
	ctx, handler := a.ctx, a.handler
	if handler != nil {
		a.inflight.Add(1)
	}
	a.mu.RUnlock()
	if handler == nil {
		return
	}
	defer a.inflight.Done()

	botID := ""
	if s.State != nil && s.State.User != nil {
		botID = s.State.User.ID
	}
	msg, ok := convertMessage(m, botID)
	if !ok {
		return
	}
	handler(ctx, msg)
}

// convertMessage maps a gateway event to a bot.Message. The bot's own
// mention is stripped from the content.
func convertMessage(m *discordgo.MessageCreate, botID string) (bot.Message, bool) {
	if m == nil || m.Message == nil || m.Author == nil {
		return bot.Message{}, false
	}

	msg := bot.Message{
		ID:         m.ID,
		ChannelID:  m.ChannelID,
		GuildID:    m.GuildID,
		AuthorID:   m.Author.ID,
		AuthorName: displayName(m),
		Content:    m.Content,
		FromBot:    m.Author.Bot || m.Author.ID == botID,
		IsDM:       m.GuildID == "",
	}
	for _, u := range m.Mentions {
		if u != nil && u.ID == botID {
			msg.MentionsBot = true
		}
	}
	if msg.MentionsBot {
		msg.Content = stripMention(msg.Content, botID)
	}
	for _, att := range m.Attachments {
		if att == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, bot.Attachment{Filename: att.Filename, URL: att.URL})
	}
	return msg, true
}

func displayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

func stripMention(content, botID string) string {
	re := regexp.MustCompile(`<@!?` + regexp.QuoteMeta(botID) + `>`)
	return strings.TrimSpace(re.ReplaceAllString(content, ""))
}

// SendMessage posts content and returns the new message ID.
func (a *Adapter) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	m, err := a.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return m.ID, nil
}

// DeleteMessage removes a message.
func (a *Adapter) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	err := a.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// SignalTyping shows the typing indicator for a few seconds.
func (a *Adapter) SignalTyping(ctx context.Context, channelID string) error {
	return a.session.ChannelTyping(channelID, discordgo.WithContext(ctx))
}

// React adds an emoji reaction to a message.
func (a *Adapter) React(ctx context.Context, channelID, messageID, emoji string) error {
	return a.session.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx))
}

// voiceJoinTimeout bounds the gateway handshake for a voice connection.
const voiceJoinTimeout = 15 * time.Second

// JoinUserChannel joins the voice channel the user currently occupies.
func (a *Adapter) JoinUserChannel(ctx context.Context, guildID, userID string) (voice.Connection, string, error) {
	vs, err := a.session.State.VoiceState(guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return nil, "", bot.ErrUserNotInVoice
	}

	name := vs.ChannelID
	if ch, err := a.session.State.Channel(vs.ChannelID); err == nil && ch != nil {
		name = ch.Name
	}

	type result struct {
		vc  *discordgo.VoiceConnection
		err error
	}
	done := make(chan result, 1)
	go func() {
		vc, err := a.session.ChannelVoiceJoin(guildID, vs.ChannelID, false, true)
		done <- result{vc, err}
	}()

	ctx, cancel := context.WithTimeout(ctx, voiceJoinTimeout)
	defer cancel()
	select {
	case r := <-done:
		if r.err != nil {
			return nil, "", fmt.Errorf("join voice channel %s: %w", vs.ChannelID, r.err)
		}
		a.logger.Info("Joined voice channel", "guild_id", guildID, "channel_id", vs.ChannelID, "channel", name)
		return NewVoiceConn(r.vc, a.ffmpeg, a.logger), name, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.vc != nil {
				_ = r.vc.Disconnect()
			}
		}()
		return nil, "", fmt.Errorf("join voice channel %s: %w", vs.ChannelID, ctx.Err())
	}
}

// isNotFound reports whether err is a Discord 404, such as deleting a
// message that is already gone.
func isNotFound(err error) bool {
	var rest *discordgo.RESTError
	return errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == 404
}
