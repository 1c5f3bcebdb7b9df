package schema

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// NodeKind is the type of content held by a node.
type NodeKind string

const (
	TextNode  NodeKind = "text"
	ImageNode NodeKind = "image"
	TableNode NodeKind = "table"
)

// ParseNodeKind validates s.
func ParseNodeKind(s string) (NodeKind, error) {
	switch kind := NodeKind(strings.ToLower(strings.TrimSpace(s))); kind {
	case TextNode, ImageNode, TableNode:
		return kind, nil
	default:
		return "", errors.Wrapf(ErrUnknownNodeKind, "%q", s)
	}
}

// Relationship links a node to another node or to its document.
type Relationship string

const (
	SourceRelationship   Relationship = "source"
	PreviousRelationship Relationship = "previous"
	NextRelationship     Relationship = "next"
)

// MetadataMode selects what Content renders.
type MetadataMode string

const (
	MetadataAll  MetadataMode = "all"
	MetadataNone MetadataMode = "none"
)

// Node is a chunk of a document.
type Node struct {
	ID            string                  `json:"id"`
	Kind          NodeKind                `json:"kind"`
	Text          string                  `json:"text"`
	Metadata      map[string]any          `json:"metadata,omitempty"`
	RefDocID      string                  `json:"ref_doc_id,omitempty"`
	StartChar     int                     `json:"start_char"`
	EndChar       int                     `json:"end_char"`
	Embedding     []float32               `json:"embedding,omitempty"`
	Relationships map[Relationship]string `json:"relationships,omitempty"`
	// ImageURL is set on image nodes.
	ImageURL string `json:"image_url,omitempty"`
}

// NewTextNode creates a text node with a random id.
func NewTextNode(text string, metadata map[string]any) *Node {
	if metadata == nil {
		metadata = map[string]any{}
	}

	return &Node{
		ID:            uuid.NewString(),
		Kind:          TextNode,
		Text:          text,
		Metadata:      metadata,
		EndChar:       len(text),
		Relationships: map[Relationship]string{},
	}
}

// Content returns the node text. With MetadataAll the metadata is rendered first as sorted
// "key: value" lines.
func (n *Node) Content(mode MetadataMode) (string, error) {
	switch mode {
	case MetadataNone, "":
		return n.Text, nil
	case MetadataAll:
	default:
		return "", errors.Wrapf(ErrUnknownMetadataMode, "%q", mode)
	}

	if len(n.Metadata) == 0 {
		return n.Text, nil
	}

	keys := make([]string, 0, len(n.Metadata))
	for k := range n.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(cast.ToString(n.Metadata[k]))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(n.Text)

	return sb.String(), nil
}

// NodeWithScore is a node returned by a retrieval with its similarity.
type NodeWithScore struct {
	Node  *Node   `json:"node"`
	Score float32 `json:"score"`
}

// NodesWithScore is a ranked retrieval result.
type NodesWithScore []NodeWithScore

// Texts returns the text of every node, in order.
func (ns NodesWithScore) Texts() []string {
	res := make([]string, 0, len(ns))
	for _, n := range ns {
		if n.Node == nil {
			continue
		}
		res = append(res, n.Node.Text)
	}

	return res
}

// String joins the node texts with blank lines.
func (ns NodesWithScore) String() string {
	return strings.Join(ns.Texts(), "\n\n")
}

// QueryBundle is a query string with an optional precomputed embedding.
type QueryBundle struct {
	QueryStr  string    `json:"query_str"`
	Embedding []float32 `json:"embedding,omitempty"`
}

func (q QueryBundle) String() string {
	return q.QueryStr
}
