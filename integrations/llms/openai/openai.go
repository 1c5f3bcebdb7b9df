package openai

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/yaoapp/kun/log"

	"github.com/askiada/go-query-pipeline/pkg/llm"
)

const (
	DefaultBaseURL       = "https://api.openai.com/v1"
	DefaultModel         = "gpt-4o-mini"
	DefaultContextWindow = 128000
	DefaultMaxTokens     = 512
	DefaultTimeout       = 60 * time.Second
)

var (
	ErrAPI        = errors.New("openai api error")
	ErrNoChoice   = errors.New("openai returned no choice")
	ErrMissingKey = errors.New("openai api key must be set")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OpenAILLM calls the chat completions endpoint.
type OpenAILLM struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

// Option configures an [OpenAILLM].
type Option func(*OpenAILLM)

func WithBaseURL(baseURL string) Option {
	return func(o *OpenAILLM) {
		o.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

func WithAPIKey(apiKey string) Option {
	return func(o *OpenAILLM) {
		o.apiKey = apiKey
	}
}

func WithModel(model string) Option {
	return func(o *OpenAILLM) {
		o.model = model
	}
}

func WithTemperature(temperature float64) Option {
	return func(o *OpenAILLM) {
		o.temperature = temperature
	}
}

func WithMaxTokens(maxTokens int) Option {
	return func(o *OpenAILLM) {
		o.maxTokens = maxTokens
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *OpenAILLM) {
		o.client = client
	}
}

// New creates a client. The API key is required unless the base URL is changed, local servers
// usually accept anonymous requests.
func New(opts ...Option) (*OpenAILLM, error) {
	o := &OpenAILLM{
		baseURL:   DefaultBaseURL,
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
		client:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.apiKey == "" && o.baseURL == DefaultBaseURL {
		return nil, ErrMissingKey
	}

	return o, nil
}

type chatRequest struct {
	Model       string            `json:"model"`
	Messages    []llm.ChatMessage `json:"messages"`
	Temperature float64           `json:"temperature"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Index        int             `json:"index"`
		Message      llm.ChatMessage `json:"message"`
		FinishReason string          `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (o *OpenAILLM) Metadata() llm.Metadata {
	return llm.Metadata{
		ModelName:     o.model,
		ContextWindow: DefaultContextWindow,
		NumOutput:     o.maxTokens,
		IsChatModel:   true,
	}
}

func (o *OpenAILLM) Complete(ctx context.Context, prompt string) (*llm.CompletionResponse, error) {
	res, err := o.Chat(ctx, []llm.ChatMessage{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		return nil, err
	}

	return &llm.CompletionResponse{Text: res.Message.Content, Raw: res.Raw}, nil
}

func (o *OpenAILLM) Chat(ctx context.Context, messages []llm.ChatMessage) (*llm.ChatResponse, error) {
	body, err := json.Marshal(chatRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "unable to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	start := time.Now()
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "unable to call chat completions")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read response")
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := errorResponse{}
		_ = json.Unmarshal(data, &apiErr)
		if apiErr.Error.Message == "" {
			apiErr.Error.Message = string(data)
		}

		return nil, errors.Wrapf(ErrAPI, "status %d: %s", resp.StatusCode, apiErr.Error.Message)
	}

	res := chatResponse{}
	err = json.Unmarshal(data, &res)
	if err != nil {
		return nil, errors.Wrap(err, "unable to decode response")
	}
	if len(res.Choices) == 0 {
		return nil, ErrNoChoice
	}

	log.With(log.F{
		"model":             o.model,
		"prompt_tokens":     res.Usage.PromptTokens,
		"completion_tokens": res.Usage.CompletionTokens,
		"elapsed":           time.Since(start).String(),
	}).Trace("chat completion")

	msg := res.Choices[0].Message
	if msg.Role == "" {
		msg.Role = llm.RoleAssistant
	}

	return &llm.ChatResponse{Message: msg, Raw: res}, nil
}

var _ llm.LLM = (*OpenAILLM)(nil)
