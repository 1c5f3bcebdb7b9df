package openai

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/yaoapp/kun/log"

	"github.com/askiada/go-query-pipeline/pkg/embedding"
)

const (
	DefaultBaseURL   = "https://api.openai.com/v1"
	DefaultModel     = "text-embedding-3-small"
	DefaultBatchSize = 100
	DefaultTimeout   = 60 * time.Second
)

var (
	ErrAPI            = errors.New("openai api error")
	ErrMissingKey     = errors.New("openai api key must be set")
	ErrUnexpectedData = errors.New("unexpected embeddings in response")
)

// OpenAIEmbedder calls the embeddings endpoint.
type OpenAIEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	batchSize  int
	client     *http.Client
}

// Option configures an [OpenAIEmbedder].
type Option func(*OpenAIEmbedder)

func WithBaseURL(baseURL string) Option {
	return func(o *OpenAIEmbedder) {
		o.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

func WithAPIKey(apiKey string) Option {
	return func(o *OpenAIEmbedder) {
		o.apiKey = apiKey
	}
}

func WithModel(model string) Option {
	return func(o *OpenAIEmbedder) {
		o.model = model
	}
}

// WithDimensions asks the model to shorten the embeddings. Zero keeps the model default.
func WithDimensions(dimensions int) Option {
	return func(o *OpenAIEmbedder) {
		o.dimensions = dimensions
	}
}

// WithBatchSize sets the number of texts sent in one request.
func WithBatchSize(size int) Option {
	return func(o *OpenAIEmbedder) {
		o.batchSize = size
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *OpenAIEmbedder) {
		o.client = client
	}
}

// New creates a client. The API key is required for the default base URL only.
func New(opts ...Option) (*OpenAIEmbedder, error) {
	o := &OpenAIEmbedder{
		baseURL:   DefaultBaseURL,
		model:     DefaultModel,
		batchSize: DefaultBatchSize,
		client:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.apiKey == "" && o.baseURL == DefaultBaseURL {
		return nil, ErrMissingKey
	}
	if o.batchSize < 1 {
		o.batchSize = DefaultBatchSize
	}

	return o, nil
}

type embeddingsRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (o *OpenAIEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := jsoniter.Marshal(embeddingsRequest{Model: o.model, Input: texts, Dimensions: o.dimensions})
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "unable to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "unable to call embeddings")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read response")
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := errorResponse{}
		_ = jsoniter.Unmarshal(data, &apiErr)
		if apiErr.Error.Message == "" {
			apiErr.Error.Message = string(data)
		}

		return nil, errors.Wrapf(ErrAPI, "status %d: %s", resp.StatusCode, apiErr.Error.Message)
	}

	res := embeddingsResponse{}
	err = jsoniter.Unmarshal(data, &res)
	if err != nil {
		return nil, errors.Wrap(err, "unable to decode response")
	}

	if len(res.Data) != len(texts) {
		return nil, errors.Wrapf(ErrUnexpectedData, "%d embeddings for %d texts", len(res.Data), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for _, item := range res.Data {
		if item.Index < 0 || item.Index >= len(texts) || vecs[item.Index] != nil {
			return nil, errors.Wrapf(ErrUnexpectedData, "index %d", item.Index)
		}
		vecs[item.Index] = item.Embedding
	}

	log.With(log.F{"model": o.model, "texts": len(texts), "tokens": res.Usage.TotalTokens}).Trace("embeddings")

	return vecs, nil
}

// EmbedDocuments embeds texts in batches, keeping their order.
func (o *OpenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	res := make([][]float32, 0, len(texts))

	for batch := range slices.Chunk(texts, o.batchSize) {
		vecs, err := o.embed(ctx, batch)
		if err != nil {
			return nil, err
		}
		res = append(res, vecs...)
	}

	return res, nil
}

func (o *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return vecs[0], nil
}

var _ embedding.Embedder = (*OpenAIEmbedder)(nil)
