package nodeparser

import (
	"context"
	"maps"
	"unicode"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/askiada/go-query-pipeline/pkg/schema"
)

const (
	DefaultChunkSize    = 200
	DefaultChunkOverlap = 20
)

// SentenceSplitter packs whole sentences into chunks of at most ChunkSize words.
// The last ChunkOverlap words of a chunk are repeated at the start of the next one.
type SentenceSplitter struct {
	ChunkSize    int
	ChunkOverlap int
}

// SplitterOption configures a [SentenceSplitter].
type SplitterOption func(*SentenceSplitter)

// WithChunkSize sets the maximum number of words in a chunk.
func WithChunkSize(size int) SplitterOption {
	return func(s *SentenceSplitter) {
		s.ChunkSize = size
	}
}

// WithChunkOverlap sets the number of words shared by consecutive chunks.
func WithChunkOverlap(overlap int) SplitterOption {
	return func(s *SentenceSplitter) {
		s.ChunkOverlap = overlap
	}
}

// NewSentenceSplitter creates a splitter with the default sizes overridden by opts.
func NewSentenceSplitter(opts ...SplitterOption) (*SentenceSplitter, error) {
	s := &SentenceSplitter{ChunkSize: DefaultChunkSize, ChunkOverlap: DefaultChunkOverlap}
	for _, opt := range opts {
		opt(s)
	}

	err := s.validate()
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *SentenceSplitter) validate() error {
	if s.ChunkSize <= 0 {
		return ErrInvalidChunkSize
	}
	if s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize {
		return errors.Wrapf(ErrOverlapTooLarge, "overlap %d, size %d", s.ChunkOverlap, s.ChunkSize)
	}

	return nil
}

type word struct {
	start, end int
}

// sentences returns the words of text grouped by sentence. A sentence ends after '.', '!' or '?'
// followed by a space, or at a blank line.
func sentences(text string) [][]word {
	res := [][]word{}
	curr := []word{}
	runes := []rune(text)
	byteOffsets := make([]int, len(runes)+1)
	offset := 0
	for i, r := range runes {
		byteOffsets[i] = offset
		offset += len(string(r))
	}
	byteOffsets[len(runes)] = offset

	flush := func() {
		if len(curr) > 0 {
			res = append(res, curr)
			curr = []word{}
		}
	}

	start := -1
	newlines := 0
	for i, r := range runes {
		if !unicode.IsSpace(r) {
			if start < 0 {
				start = i
			}
			newlines = 0

			continue
		}

		if start >= 0 {
			curr = append(curr, word{start: byteOffsets[start], end: byteOffsets[i]})
			last := runes[i-1]
			start = -1
			if last == '.' || last == '!' || last == '?' {
				flush()
			}
		}

		if r == '\n' {
			newlines++
			if newlines == 2 {
				flush()
			}
		}
	}
	if start >= 0 {
		curr = append(curr, word{start: byteOffsets[start], end: byteOffsets[len(runes)]})
	}
	flush()

	return res
}

// pieces cuts sentences longer than the chunk size into chunk sized runs of words.
func (s *SentenceSplitter) pieces(text string) [][]word {
	res := [][]word{}
	for _, sentence := range sentences(text) {
		for len(sentence) > s.ChunkSize {
			res = append(res, sentence[:s.ChunkSize])
			sentence = sentence[s.ChunkSize:]
		}
		res = append(res, sentence)
	}

	return res
}

func (s *SentenceSplitter) chunks(text string) [][]word {
	res := [][]word{}
	curr := []word{}
	fresh := 0

	for _, piece := range s.pieces(text) {
		if len(curr)+len(piece) <= s.ChunkSize {
			curr = append(curr, piece...)
			fresh += len(piece)

			continue
		}

		res = append(res, curr)

		overlap := min(s.ChunkOverlap, s.ChunkSize-len(piece), len(curr))
		next := make([]word, 0, s.ChunkSize)
		next = append(next, curr[len(curr)-overlap:]...)
		curr = append(next, piece...)
		fresh = len(piece)
	}

	if fresh > 0 {
		res = append(res, curr)
	}

	return res
}

// Parse splits the document text. Empty text yields no nodes.
func (s *SentenceSplitter) Parse(ctx context.Context, doc *schema.Document) ([]*schema.Node, error) {
	err := s.validate()
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}

	doc.EnsureID()

	chunks := s.chunks(doc.Text)
	nodes := make([]*schema.Node, 0, len(chunks))

	for _, chunk := range chunks {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		start, end := chunk[0].start, chunk[len(chunk)-1].end
		nodes = append(nodes, &schema.Node{
			ID:        uuid.NewString(),
			Kind:      schema.TextNode,
			Text:      doc.Text[start:end],
			Metadata:  maps.Clone(doc.Metadata),
			RefDocID:  doc.ID,
			StartChar: start,
			EndChar:   end,
			Relationships: map[schema.Relationship]string{
				schema.SourceRelationship: doc.ID,
			},
		})
	}

	for i, node := range nodes {
		if i > 0 {
			node.Relationships[schema.PreviousRelationship] = nodes[i-1].ID
		}
		if i < len(nodes)-1 {
			node.Relationships[schema.NextRelationship] = nodes[i+1].ID
		}
	}

	return nodes, nil
}

var _ Parser = (*SentenceSplitter)(nil)
