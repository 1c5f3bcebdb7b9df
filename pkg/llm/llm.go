// Package llm defines the language model contract used by pipeline modules.
package llm

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

var ErrUnknownRole = errors.New("unknown chat role")

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ParseRole validates s.
func ParseRole(s string) (Role, error) {
	switch role := Role(strings.ToLower(s)); role {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return role, nil
	default:
		return "", errors.Wrapf(ErrUnknownRole, "%q", s)
	}
}

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// Metadata describes a model.
type Metadata struct {
	ModelName     string `json:"model_name"`
	ContextWindow int    `json:"context_window"`
	NumOutput     int    `json:"num_output"`
	IsChatModel   bool   `json:"is_chat_model"`
}

// CompletionResponse is the answer to a completion request.
type CompletionResponse struct {
	Text string `json:"text"`
	Raw  any    `json:"-"`
}

func (c *CompletionResponse) String() string {
	return c.Text
}

// ChatResponse is the answer to a chat request.
type ChatResponse struct {
	Message ChatMessage `json:"message"`
	Raw     any         `json:"-"`
}

func (c *ChatResponse) String() string {
	return c.Message.Content
}

// LLM is a text completion and chat model.
type LLM interface {
	Metadata() Metadata
	Complete(ctx context.Context, prompt string) (*CompletionResponse, error)
	Chat(ctx context.Context, messages []ChatMessage) (*ChatResponse, error)
}

// MessagesToPrompt flattens messages for models without a chat endpoint.
// The prompt ends with an open assistant turn.
func MessagesToPrompt(messages []ChatMessage) string {
	var sb strings.Builder
	for _, msg := range messages {
		sb.WriteString(string(msg.Role))
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	sb.WriteString(string(RoleAssistant))
	sb.WriteString(": ")

	return sb.String()
}
