package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-query-pipeline/pkg/schema"
)

func TestNewDocument(t *testing.T) {
	t.Parallel()

	doc := schema.NewDocument("the cat sat on the mat", nil)
	other := schema.NewDocument("the cat sat on the mat", map[string]any{"source": "a.txt"})

	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, doc.ID, other.ID)
	assert.Equal(t, doc.ID, doc.Hash())
	assert.NotEqual(t, doc.ID, schema.NewDocument("the dog", nil).ID)
	assert.NotNil(t, doc.Metadata)
}

func TestEnsureID(t *testing.T) {
	t.Parallel()

	doc := &schema.Document{Text: "hello"}
	doc.EnsureID()
	assert.Equal(t, schema.Hash("hello"), doc.ID)

	doc = &schema.Document{ID: "fixed", Text: "hello"}
	doc.EnsureID()
	assert.Equal(t, "fixed", doc.ID)
}

func TestParseNodeKind(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input   string
		want    schema.NodeKind
		wantErr bool
	}{
		"text":    {input: "text", want: schema.TextNode},
		"image":   {input: " Image ", want: schema.ImageNode},
		"table":   {input: "TABLE", want: schema.TableNode},
		"unknown": {input: "audio", wantErr: true},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := schema.ParseNodeKind(tc.input)
			if tc.wantErr {
				require.ErrorIs(t, err, schema.ErrUnknownNodeKind)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNodeContent(t *testing.T) {
	t.Parallel()

	node := schema.NewTextNode("body", map[string]any{"page": 3, "author": "ann"})

	got, err := node.Content(schema.MetadataNone)
	require.NoError(t, err)
	assert.Equal(t, "body", got)

	got, err = node.Content(schema.MetadataAll)
	require.NoError(t, err)
	assert.Equal(t, "author: ann\npage: 3\n\nbody", got)

	_, err = node.Content("llm")
	require.ErrorIs(t, err, schema.ErrUnknownMetadataMode)
}

func TestNodesWithScoreTexts(t *testing.T) {
	t.Parallel()

	nodes := schema.NodesWithScore{
		{Node: schema.NewTextNode("a", nil), Score: 0.9},
		{Node: nil},
		{Node: schema.NewTextNode("b", nil), Score: 0.1},
	}
	assert.Equal(t, []string{"a", "b"}, nodes.Texts())
}

func TestNodesWithScoreString(t *testing.T) {
	t.Parallel()

	nodes := schema.NodesWithScore{
		{Node: schema.NewTextNode("first", nil)},
		{Node: schema.NewTextNode("second", nil)},
	}
	assert.Equal(t, "first\n\nsecond", nodes.String())
}
