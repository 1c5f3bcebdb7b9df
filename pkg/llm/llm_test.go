package llm_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-query-pipeline/pkg/llm"
)

func TestMessagesToPrompt(t *testing.T) {
	t.Parallel()

	got := llm.MessagesToPrompt([]llm.ChatMessage{
		{Role: llm.RoleSystem, Content: "be brief"},
		{Role: llm.RoleUser, Content: "hi"},
	})
	assert.Equal(t, "system: be brief\nuser: hi\nassistant: ", got)
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	role, err := llm.ParseRole("User")
	require.NoError(t, err)
	assert.Equal(t, llm.RoleUser, role)

	_, err = llm.ParseRole("narrator")
	require.ErrorIs(t, err, llm.ErrUnknownRole)
}

func TestMockLLM(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		mock *llm.MockLLM
		want string
	}{
		"echo":     {mock: &llm.MockLLM{}, want: "question"},
		"fixed":    {mock: &llm.MockLLM{Response: "42"}, want: "42"},
		"function": {mock: &llm.MockLLM{ResponseFn: func(p string) (string, error) { return strings.ToUpper(p), nil }}, want: "QUESTION"},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			res, err := tc.mock.Complete(t.Context(), "question")
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Text)
			assert.Equal(t, 1, tc.mock.Calls())
		})
	}
}

func TestMockLLMChat(t *testing.T) {
	t.Parallel()

	mock := &llm.MockLLM{}
	res, err := mock.Chat(t.Context(), []llm.ChatMessage{{Role: llm.RoleUser, Content: "hello"}})
	require.NoError(t, err)
	assert.Equal(t, llm.RoleAssistant, res.Message.Role)
	assert.Equal(t, "user: hello\nassistant: ", res.String())
	assert.Equal(t, []string{"user: hello\nassistant: "}, mock.Prompts())
}

func TestMockLLMError(t *testing.T) {
	t.Parallel()

	mock := &llm.MockLLM{ResponseFn: func(string) (string, error) { return "", assert.AnError }}
	_, err := mock.Complete(t.Context(), "q")
	require.ErrorIs(t, err, assert.AnError)
}
