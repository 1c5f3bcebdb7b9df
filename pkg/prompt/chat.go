package prompt

import (
	"maps"
	"slices"

	"github.com/pkg/errors"

	"github.com/askiada/go-query-pipeline/pkg/llm"
)

// MessageTemplate is the template of one chat message.
type MessageTemplate struct {
	Role     llm.Role
	Template *Template
}

// ChatTemplate renders a list of chat messages.
type ChatTemplate struct {
	Messages []MessageTemplate
}

// NewChatTemplate parses the content of every message as a [Template].
func NewChatTemplate(messages ...llm.ChatMessage) (*ChatTemplate, error) {
	res := &ChatTemplate{Messages: make([]MessageTemplate, len(messages))}
	for i, msg := range messages {
		tpl, err := NewTemplate(msg.Content)
		if err != nil {
			return nil, errors.Wrapf(err, "message %d", i)
		}
		res.Messages[i] = MessageTemplate{Role: msg.Role, Template: tpl}
	}

	return res, nil
}

func (c *ChatTemplate) Vars() []string {
	seen := map[string]struct{}{}
	for _, msg := range c.Messages {
		for _, v := range msg.Template.Vars() {
			seen[v] = struct{}{}
		}
	}

	return slices.Sorted(maps.Keys(seen))
}

// Partial binds vars in every message.
func (c *ChatTemplate) Partial(vars map[string]any) *ChatTemplate {
	res := &ChatTemplate{Messages: make([]MessageTemplate, len(c.Messages))}
	for i, msg := range c.Messages {
		res.Messages[i] = MessageTemplate{Role: msg.Role, Template: msg.Template.Partial(vars)}
	}

	return res
}

// FormatMessages renders every message.
func (c *ChatTemplate) FormatMessages(vars map[string]any) ([]llm.ChatMessage, error) {
	res := make([]llm.ChatMessage, len(c.Messages))
	for i, msg := range c.Messages {
		content, err := msg.Template.Format(vars)
		if err != nil {
			return nil, errors.Wrapf(err, "message %d", i)
		}
		res[i] = llm.ChatMessage{Role: msg.Role, Content: content}
	}

	return res, nil
}

// Format renders the messages flattened into one prompt.
func (c *ChatTemplate) Format(vars map[string]any) (string, error) {
	messages, err := c.FormatMessages(vars)
	if err != nil {
		return "", err
	}

	return llm.MessagesToPrompt(messages), nil
}

var _ Prompt = (*ChatTemplate)(nil)
