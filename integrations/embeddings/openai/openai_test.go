package openai_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-query-pipeline/integrations/embeddings/openai"
	"github.com/askiada/go-query-pipeline/pkg/integration"
)

type request struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions"`
}

type item struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// newServer embeds every text as [len(text), index in batch], answering in reverse order.
func newServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)

		data, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		req := request{}
		assert.NoError(t, jsoniter.Unmarshal(data, &req))

		items := []item{}
		for i := len(req.Input) - 1; i >= 0; i-- {
			items = append(items, item{Index: i, Embedding: []float32{float32(len(req.Input[i])), float32(i)}})
		}

		body, err := jsoniter.Marshal(map[string]any{"data": items})
		assert.NoError(t, err)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestEmbedDocuments(t *testing.T) {
	t.Parallel()

	calls := &atomic.Int32{}
	srv := newServer(t, calls)

	emb, err := openai.New(openai.WithBaseURL(srv.URL), openai.WithBatchSize(2), openai.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	vecs, err := emb.EmbedDocuments(t.Context(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {2, 1}, {3, 0}, {4, 1}, {5, 0}}, vecs)
	assert.Equal(t, int32(3), calls.Load())

	vec, err := emb.EmbedQuery(t.Context(), "query")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 0}, vec)
}

func TestEmbedRequest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		req := request{}
		data, _ := io.ReadAll(r.Body)
		assert.NoError(t, jsoniter.Unmarshal(data, &req))
		assert.Equal(t, "small", req.Model)
		assert.Equal(t, 8, req.Dimensions)

		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.5]}]}`))
	}))
	t.Cleanup(srv.Close)

	emb, err := openai.New(openai.WithBaseURL(srv.URL), openai.WithAPIKey("secret"), openai.WithModel("small"), openai.WithDimensions(8))
	require.NoError(t, err)

	vec, err := emb.EmbedQuery(t.Context(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5}, vec)
}

func TestEmbedErrors(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		status   int
		body     string
		expected error
	}{
		"api error":       {status: http.StatusTooManyRequests, body: `{"error":{"message":"slow down"}}`, expected: openai.ErrAPI},
		"missing vectors": {status: http.StatusOK, body: `{"data":[]}`, expected: openai.ErrUnexpectedData},
		"bad index":       {status: http.StatusOK, body: `{"data":[{"index":3,"embedding":[1]}]}`, expected: openai.ErrUnexpectedData},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			t.Cleanup(srv.Close)

			emb, err := openai.New(openai.WithBaseURL(srv.URL))
			require.NoError(t, err)

			_, err = emb.EmbedQuery(t.Context(), "x")
			require.ErrorIs(t, err, tc.expected)
		})
	}
}

func TestNewMissingKey(t *testing.T) {
	t.Parallel()

	_, err := openai.New()
	require.ErrorIs(t, err, openai.ErrMissingKey)
}

func TestManifest(t *testing.T) {
	t.Parallel()

	m, err := integration.LoadManifest(".")
	require.NoError(t, err)
	require.NoError(t, m.Validate())
	assert.Equal(t, integration.KindEmbedding, m.Kind)
}
