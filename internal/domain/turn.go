// Package domain contains core domain types for the chatcord assistant.
package domain

// Role identifies who produced a conversation turn.
type Role string

// Conversation roles understood by the chat completion endpoint.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single entry in a channel's conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
