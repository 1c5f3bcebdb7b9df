package llm

import (
	"context"
	"sync"
)

// MockLLM answers without calling a model. It returns ResponseFn(prompt) when set, Response when
// not empty, and echoes the prompt otherwise.
type MockLLM struct {
	Response   string
	ResponseFn func(prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

func (m *MockLLM) answer(ctx context.Context, prompt string) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	switch {
	case m.ResponseFn != nil:
		return m.ResponseFn(prompt)
	case m.Response != "":
		return m.Response, nil
	default:
		return prompt, nil
	}
}

func (m *MockLLM) Metadata() Metadata {
	return Metadata{ModelName: "mock", ContextWindow: 4096, NumOutput: 256}
}

func (m *MockLLM) Complete(ctx context.Context, prompt string) (*CompletionResponse, error) {
	text, err := m.answer(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return &CompletionResponse{Text: text}, nil
}

func (m *MockLLM) Chat(ctx context.Context, messages []ChatMessage) (*ChatResponse, error) {
	text, err := m.answer(ctx, MessagesToPrompt(messages))
	if err != nil {
		return nil, err
	}

	return &ChatResponse{Message: ChatMessage{Role: RoleAssistant, Content: text}}, nil
}

// Calls returns the number of requests answered.
func (m *MockLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.prompts)
}

// Prompts returns every prompt received, in order.
func (m *MockLLM) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.prompts...)
}

var _ LLM = (*MockLLM)(nil)
