package chatstore

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/askiada/go-query-pipeline/pkg/llm"
)

// MemoryChatStore keeps conversations in a map.
type MemoryChatStore struct {
	mu    sync.RWMutex
	chats map[string][]llm.ChatMessage
}

// NewMemoryChatStore creates an empty store.
func NewMemoryChatStore() *MemoryChatStore {
	return &MemoryChatStore{chats: make(map[string][]llm.ChatMessage)}
}

func (m *MemoryChatStore) SetMessages(_ context.Context, key string, messages []llm.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chats[key] = slices.Clone(messages)

	return nil
}

func (m *MemoryChatStore) GetMessages(_ context.Context, key string) ([]llm.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := slices.Clone(m.chats[key])
	if res == nil {
		res = []llm.ChatMessage{}
	}

	return res, nil
}

func (m *MemoryChatStore) AddMessage(_ context.Context, key string, message llm.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chats[key] = append(m.chats[key], message)

	return nil
}

func (m *MemoryChatStore) DeleteMessages(_ context.Context, key string) ([]llm.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.chats[key]
	if !ok {
		return []llm.ChatMessage{}, nil
	}
	delete(m.chats, key)

	return res, nil
}

func (m *MemoryChatStore) deleteAt(key string, idx int) *llm.ChatMessage {
	messages := m.chats[key]
	if idx < 0 || idx >= len(messages) {
		return nil
	}

	res := messages[idx]
	m.chats[key] = slices.Delete(messages, idx, idx+1)
	if len(m.chats[key]) == 0 {
		delete(m.chats, key)
	}

	return &res
}

func (m *MemoryChatStore) DeleteMessage(_ context.Context, key string, idx int) (*llm.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.deleteAt(key, idx), nil
}

func (m *MemoryChatStore) DeleteLastMessage(_ context.Context, key string) (*llm.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.deleteAt(key, len(m.chats[key])-1), nil
}

func (m *MemoryChatStore) GetKeys(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Sorted(maps.Keys(m.chats)), nil
}

var _ ChatStore = (*MemoryChatStore)(nil)
