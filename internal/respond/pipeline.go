// Package respond turns a user's message and the channel history into an
// assistant reply using an OpenAI-compatible chat completion endpoint.
package respond

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/chatcord/internal/domain"
	"github.com/ashureev/chatcord/internal/upstream"
	"github.com/openai/openai-go/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultMaxTokens caps the length of a generated reply.
const DefaultMaxTokens = 2000

// History is the per-channel conversation log the pipeline reads and extends.
type History interface {
	RecordTurn(channelID string, role domain.Role, content string)
	History(channelID string) []domain.Turn
}

// ModelSettings supplies the model and temperature for each call.
type ModelSettings interface {
	Model() string
	Temperature() float64
}

// Config configures a Pipeline.
type Config struct {
	MaxTokens    int64
	Timeout      time.Duration
	SystemPrompt string
}

// Pipeline produces replies for channel conversations.
type Pipeline struct {
	client   openai.Client
	history  History
	settings ModelSettings
	cfg      Config
	logger   *slog.Logger
}

// New creates a Pipeline.
func New(client openai.Client, history History, settings ModelSettings, cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		client:   client,
		history:  history,
		settings: settings,
		cfg:      cfg,
		logger:   logger,
	}
}

// Respond records userText as a user turn, asks the model for a reply over
// the channel's history, and records the reply as an assistant turn.
// Failures return *ResponseError and leave no assistant turn behind.
func (p *Pipeline) Respond(ctx context.Context, channelID, userText string) (string, error) {
	ctx, span := tracer.Start(ctx, "respond")
	defer span.End()

	p.history.RecordTurn(channelID, domain.RoleUser, userText)
	history := p.history.History(channelID)

	model := p.settings.Model()
	temperature := p.settings.Temperature()
	span.SetAttributes(
		attribute.String("channel_id", channelID),
		attribute.String("model", model),
		attribute.Int("history_turns", len(history)),
	)

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:    p.compose(history),
		Model:       openai.ChatModel(model),
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(p.cfg.MaxTokens),
		TopP:        openai.Float(1),
	})
	if err != nil {
		reason, status := upstream.Classify(err)
		rerr := &ResponseError{Reason: reason, StatusCode: status, Err: err}
		span.RecordError(rerr)
		span.SetStatus(codes.Error, rerr.Error())
		p.logger.Error("Chat completion failed",
			"channel_id", channelID,
			"model", model,
			"reason", reason,
			"status", status,
			"error", err)
		return "", rerr
	}

	if len(resp.Choices) == 0 {
		rerr := &ResponseError{Reason: upstream.ReasonMalformed, Detail: "no choices in response"}
		span.RecordError(rerr)
		span.SetStatus(codes.Error, rerr.Error())
		p.logger.Error("Chat completion returned no choices", "channel_id", channelID, "model", model)
		return "", rerr
	}

	reply := resp.Choices[0].Message.Content
	if strings.TrimSpace(reply) == "" {
		rerr := &ResponseError{Reason: upstream.ReasonMalformed, Detail: "empty reply"}
		span.RecordError(rerr)
		span.SetStatus(codes.Error, rerr.Error())
		p.logger.Error("Chat completion returned empty content", "channel_id", channelID, "model", model)
		return "", rerr
	}

	p.history.RecordTurn(channelID, domain.RoleAssistant, reply)
	span.SetAttributes(attribute.Int("reply_chars", len([]rune(reply))))
	p.logger.Debug("Chat completion succeeded", "channel_id", channelID, "model", model, "reply_chars", len(reply))
	return reply, nil
}

func (p *Pipeline) compose(history []domain.Turn) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	msgs = append(msgs, openai.SystemMessage(p.cfg.SystemPrompt))
	for _, turn := range history {
		switch turn.Role {
		case domain.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(turn.Content))
		case domain.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(turn.Content))
		default:
			msgs = append(msgs, openai.UserMessage(turn.Content))
		}
	}
	return msgs
}
