package openai_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-query-pipeline/integrations/llms/openai"
	"github.com/askiada/go-query-pipeline/pkg/integration"
	"github.com/askiada/go-query-pipeline/pkg/llm"
)

type request struct {
	Model       string            `json:"model"`
	Messages    []llm.ChatMessage `json:"messages"`
	Temperature float64           `json:"temperature"`
	MaxTokens   int               `json:"max_tokens"`
}

func newServer(t *testing.T, status int, body string, received *request) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		data, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		if received != nil {
			assert.NoError(t, jsoniter.Unmarshal(data, received))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestChat(t *testing.T) {
	t.Parallel()

	received := &request{}
	srv := newServer(t, http.StatusOK, `{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"Paris"},"finish_reason":"stop"}],"usage":{"prompt_tokens":9,"completion_tokens":1}}`, received)

	model, err := openai.New(
		openai.WithBaseURL(srv.URL+"/v1/"),
		openai.WithAPIKey("secret"),
		openai.WithModel("test-model"),
		openai.WithTemperature(0.5),
		openai.WithMaxTokens(16),
		openai.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	res, err := model.Chat(t.Context(), []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: "answer briefly"},
		{Role: llm.RoleUser, Content: "capital of France?"},
	})
	require.NoError(t, err)
	assert.Equal(t, llm.ChatMessage{Role: llm.RoleAssistant, Content: "Paris"}, res.Message)

	assert.Equal(t, "test-model", received.Model)
	assert.InDelta(t, 0.5, received.Temperature, 1e-9)
	assert.Equal(t, 16, received.MaxTokens)
	require.Len(t, received.Messages, 2)
	assert.Equal(t, llm.RoleSystem, received.Messages[0].Role)

	assert.Equal(t, llm.Metadata{ModelName: "test-model", ContextWindow: openai.DefaultContextWindow, NumOutput: 16, IsChatModel: true}, model.Metadata())
}

func TestComplete(t *testing.T) {
	t.Parallel()

	received := &request{}
	srv := newServer(t, http.StatusOK, `{"choices":[{"message":{"content":"42"}}]}`, received)

	model, err := openai.New(openai.WithBaseURL(srv.URL+"/v1"), openai.WithAPIKey("secret"))
	require.NoError(t, err)

	res, err := model.Complete(t.Context(), "meaning of life?")
	require.NoError(t, err)
	assert.Equal(t, "42", res.Text)
	assert.Equal(t, []llm.ChatMessage{{Role: llm.RoleUser, Content: "meaning of life?"}}, received.Messages)
	assert.Equal(t, openai.DefaultModel, received.Model)
}

func TestChatErrors(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		status   int
		body     string
		expected error
		contains string
	}{
		"api error":      {status: http.StatusUnauthorized, body: `{"error":{"message":"bad key","type":"auth"}}`, expected: openai.ErrAPI, contains: "status 401: bad key"},
		"raw error body": {status: http.StatusBadGateway, body: `upstream down`, expected: openai.ErrAPI, contains: "upstream down"},
		"no choice":      {status: http.StatusOK, body: `{"choices":[]}`, expected: openai.ErrNoChoice},
		"invalid json":   {status: http.StatusOK, body: `{`, contains: "unable to decode response"},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv := newServer(t, tc.status, tc.body, nil)
			model, err := openai.New(openai.WithBaseURL(srv.URL+"/v1"), openai.WithAPIKey("secret"))
			require.NoError(t, err)

			_, err = model.Chat(t.Context(), []llm.ChatMessage{{Role: llm.RoleUser, Content: "hi"}})
			require.Error(t, err)
			if tc.expected != nil {
				require.ErrorIs(t, err, tc.expected)
			}
			assert.Contains(t, err.Error(), tc.contains)
		})
	}
}

func TestNewMissingKey(t *testing.T) {
	t.Parallel()

	_, err := openai.New()
	require.ErrorIs(t, err, openai.ErrMissingKey)

	_, err = openai.New(openai.WithBaseURL("http://localhost:8080/v1"))
	require.NoError(t, err)
}

func TestManifest(t *testing.T) {
	t.Parallel()

	m, err := integration.LoadManifest(".")
	require.NoError(t, err)
	require.NoError(t, m.Validate())
	assert.Contains(t, m.ClassAuthors, "OpenAILLM")
}
