package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ashureev/chatcord/internal/domain"
	"github.com/ashureev/chatcord/internal/events"
)

// Command names understood by HandleCommand.
const (
	CmdJoin  = "join"
	CmdLeave = "leave"
	CmdModel = "model"
	CmdTemp  = "temp"
	CmdSpeed = "speed"
	CmdClear = "clear"
)

var knownCommands = map[string]bool{
	CmdJoin:  true,
	CmdLeave: true,
	CmdModel: true,
	CmdTemp:  true,
	CmdSpeed: true,
	CmdClear: true,
}

// Command is a parsed chat command.
type Command struct {
	Name string
	Args []string
}

// Arg returns the i-th argument or "" when absent.
func (c Command) Arg(i int) string {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return ""
}

// ParseCommand recognizes "<prefix><name> [args...]". Unknown names are not
// commands, so the message falls through to normal chat handling.
func ParseCommand(prefix, content string) (Command, bool) {
	content = strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return Command{}, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return Command{}, false
	}
	name := strings.ToLower(fields[0])
	if !knownCommands[name] {
		return Command{}, false
	}
	return Command{Name: name, Args: fields[1:]}, true
}

// HandleCommand executes cmd on behalf of msg's author. Every outcome,
// including rejected input, produces exactly one user-visible reply path.
func (o *Orchestrator) HandleCommand(ctx context.Context, msg Message, cmd Command) {
	o.logger.Info("Command received", "command", cmd.Name, "channel_id", msg.ChannelID, "user_id", msg.AuthorID)
	o.Hub.Publish(events.Event{
		Kind:      events.KindCommand,
		ChannelID: msg.ChannelID,
		GuildID:   msg.GuildID,
		UserID:    msg.AuthorID,
		Content:   strings.TrimSpace(cmd.Name + " " + strings.Join(cmd.Args, " ")),
	})

	switch cmd.Name {
	case CmdJoin:
		o.cmdJoin(ctx, msg)
	case CmdLeave:
		o.cmdLeave(ctx, msg)
	case CmdModel:
		o.cmdModel(ctx, msg, cmd.Arg(0))
	case CmdTemp:
		o.cmdTemp(ctx, msg, cmd.Arg(0))
	case CmdSpeed:
		o.cmdSpeed(ctx, msg, cmd.Arg(0))
	case CmdClear:
		o.cmdClear(ctx, msg)
	}
}

func (o *Orchestrator) cmdJoin(ctx context.Context, msg Message) {
	if msg.GuildID == "" {
		o.send(ctx, msg.ChannelID, msgGuildOnly)
		return
	}
	if o.Speaker.Connected(msg.GuildID) {
		o.send(ctx, msg.ChannelID, msgAlreadyInVoice)
		return
	}

	conn, channelName, err := o.Joiner.JoinUserChannel(ctx, msg.GuildID, msg.AuthorID)
	if err != nil {
		if errors.Is(err, ErrUserNotInVoice) {
			o.send(ctx, msg.ChannelID, msgNotInVoice)
			return
		}
		o.logger.Error("Voice join failed", "guild_id", msg.GuildID, "user_id", msg.AuthorID, "error", err)
		o.send(ctx, msg.ChannelID, msgJoinFailed)
		return
	}
	if err := o.Speaker.Attach(msg.GuildID, conn); err != nil {
		// Lost a race with a concurrent join.
		if dErr := conn.Disconnect(); dErr != nil {
			o.logger.Warn("Failed to drop duplicate voice connection", "guild_id", msg.GuildID, "error", dErr)
		}
		o.send(ctx, msg.ChannelID, msgAlreadyInVoice)
		return
	}

	o.applyStoredRate(ctx, msg)

	o.send(ctx, msg.ChannelID, fmt.Sprintf("🔊 **Voice Connected**\nJoined %s! Now listening for voice messages.\n*Send audio files or mention me to chat!*", channelName))

	greeting := pickPhrase(o.pick, greetingPhrases)
	o.speak(ctx, msg.GuildID, greeting)
	o.send(ctx, msg.ChannelID, greeting)
}

// applyStoredRate uses the joining user's saved speech rate for the guild.
func (o *Orchestrator) applyStoredRate(ctx context.Context, msg Message) {
	pref, err := o.Preferences.Get(ctx, msg.AuthorID)
	if err != nil {
		o.logger.Warn("Failed to load preferences", "user_id", msg.AuthorID, "error", err)
		return
	}
	if pref != nil && pref.SpeechRate != nil {
		o.Speaker.SetSpeechRate(msg.GuildID, *pref.SpeechRate)
	}
}

func (o *Orchestrator) cmdLeave(ctx context.Context, msg Message) {
	if msg.GuildID == "" || !o.Speaker.Connected(msg.GuildID) {
		o.send(ctx, msg.ChannelID, msgBotNotInVoice)
		return
	}

	farewell := pickPhrase(o.pick, farewellPhrases)
	o.send(ctx, msg.ChannelID, farewell)
	o.speak(ctx, msg.GuildID, farewell)

	if _, err := o.Speaker.Detach(msg.GuildID); err != nil {
		o.logger.Warn("Voice disconnect failed", "guild_id", msg.GuildID, "error", err)
	}
	o.send(ctx, msg.ChannelID, "👋 **Voice Disconnected**\nI've left the voice channel. Thanks for chatting!")
}

func (o *Orchestrator) cmdModel(ctx context.Context, msg Message, alias string) {
	if alias == "" {
		var b strings.Builder
		fmt.Fprintf(&b, "🤖 **Available AI Models**\nCurrent model: **%s**\n\n", o.Settings.Model())
		for _, name := range domain.ModelAliases() {
			fmt.Fprintf(&b, "• **%s**: %s\n", name, domain.ModelCatalog[name])
		}
		b.WriteString("\nUse `" + o.cfg.CommandPrefix + "model [name]` to switch.")
		o.send(ctx, msg.ChannelID, b.String())
		return
	}

	id, err := o.Settings.SelectModel(alias)
	if err != nil {
		o.send(ctx, msg.ChannelID, "❌ Model not found. Available models: "+strings.Join(domain.ModelAliases(), ", "))
		return
	}
	o.logger.Info("Chat model changed", "model", id, "user_id", msg.AuthorID)
	o.send(ctx, msg.ChannelID, fmt.Sprintf("🔄 Model changed to **%s**", id))
}

func (o *Orchestrator) cmdTemp(ctx context.Context, msg Message, raw string) {
	if raw == "" {
		o.send(ctx, msg.ChannelID, fmt.Sprintf("🌡️ Current temperature: **%s**\nUse `%stemp [0.1-1.5]` to change.",
			formatSetting(o.Settings.Temperature()), o.cfg.CommandPrefix))
		return
	}

	temp, err := domain.ParseTemperature(raw)
	if err != nil {
		o.send(ctx, msg.ChannelID, validationMessage(err, msgTemperatureRange))
		return
	}
	o.Settings.SetTemperature(temp)
	o.send(ctx, msg.ChannelID, fmt.Sprintf("🌡️ Temperature set to **%s**", formatSetting(temp)))

	if err := o.Preferences.SetTemperature(ctx, msg.AuthorID, temp); err != nil {
		o.logger.Error("Failed to save temperature preference", "user_id", msg.AuthorID, "error", err)
	}
}

func (o *Orchestrator) cmdSpeed(ctx context.Context, msg Message, raw string) {
	if raw == "" {
		o.send(ctx, msg.ChannelID, fmt.Sprintf("🔊 Current speaking speed: **%sx**\nUse `%sspeed [0.5-2.0]` to change.",
			formatSetting(o.Speaker.SpeechRate(msg.GuildID)), o.cfg.CommandPrefix))
		return
	}

	rate, err := domain.ParseSpeechRate(raw)
	if err != nil {
		o.send(ctx, msg.ChannelID, validationMessage(err, msgSpeedRange))
		return
	}
	o.Speaker.SetSpeechRate(msg.GuildID, rate)
	o.send(ctx, msg.ChannelID, fmt.Sprintf("🔊 Speaking speed set to **%sx**", formatSetting(rate)))

	if err := o.Preferences.SetSpeechRate(ctx, msg.AuthorID, rate); err != nil {
		o.logger.Error("Failed to save speech rate preference", "user_id", msg.AuthorID, "error", err)
	}
}

func (o *Orchestrator) cmdClear(ctx context.Context, msg Message) {
	if o.Table.Clear(msg.ChannelID) {
		o.send(ctx, msg.ChannelID, msgHistoryCleared)
		return
	}
	o.send(ctx, msg.ChannelID, msgNoHistory)
}

// validationMessage maps a rejected setting to its user-facing text.
func validationMessage(err error, rangeMsg string) string {
	var verr *domain.ValidationError
	if errors.As(err, &verr) && verr.Reason == domain.OutOfRange {
		return rangeMsg
	}
	return msgInvalidNumber
}

func formatSetting(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
