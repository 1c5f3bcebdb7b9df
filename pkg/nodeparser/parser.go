// Package nodeparser splits documents into nodes.
package nodeparser

import (
	"context"

	"github.com/pkg/errors"

	"github.com/askiada/go-query-pipeline/pkg/schema"
)

var (
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
	ErrOverlapTooLarge  = errors.New("chunk overlap must be smaller than chunk size")
)

// Parser turns a document into nodes.
type Parser interface {
	Parse(ctx context.Context, doc *schema.Document) ([]*schema.Node, error)
}

// GetNodesFromDocuments parses every document and returns all nodes in document order.
func GetNodesFromDocuments(ctx context.Context, parser Parser, docs []*schema.Document) ([]*schema.Node, error) {
	res := []*schema.Node{}
	for _, doc := range docs {
		nodes, err := parser.Parse(ctx, doc)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to parse document %s", doc.ID)
		}
		res = append(res, nodes...)
	}

	return res, nil
}
