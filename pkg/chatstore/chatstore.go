// Package chatstore keeps chat histories by conversation key.
package chatstore

import (
	"context"

	"github.com/askiada/go-query-pipeline/pkg/llm"
)

// ChatStore persists the messages of conversations. A message is addressed by its position
// in the conversation; deleting one moves the following messages up.
type ChatStore interface {
	// SetMessages replaces the conversation key.
	SetMessages(ctx context.Context, key string, messages []llm.ChatMessage) error
	// GetMessages returns the conversation key in order, empty when unknown.
	GetMessages(ctx context.Context, key string) ([]llm.ChatMessage, error)
	// AddMessage appends message to the conversation key.
	AddMessage(ctx context.Context, key string, message llm.ChatMessage) error
	// DeleteMessages removes the conversation key and returns its messages.
	DeleteMessages(ctx context.Context, key string) ([]llm.ChatMessage, error)
	// DeleteMessage removes the message at idx. It returns nil when there is none.
	DeleteMessage(ctx context.Context, key string, idx int) (*llm.ChatMessage, error)
	// DeleteLastMessage removes the last message. It returns nil when the conversation is empty.
	DeleteLastMessage(ctx context.Context, key string) (*llm.ChatMessage, error)
	// GetKeys returns the sorted keys of every conversation.
	GetKeys(ctx context.Context) ([]string, error)
}
