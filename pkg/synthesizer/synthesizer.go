// Package synthesizer writes an answer to a query from retrieved nodes.
package synthesizer

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/yaoapp/kun/log"

	"github.com/askiada/go-query-pipeline/pkg/llm"
	"github.com/askiada/go-query-pipeline/pkg/prompt"
	"github.com/askiada/go-query-pipeline/pkg/schema"
)

var (
	ErrNoNodes        = errors.New("no nodes to synthesize from")
	ErrUnknownMode    = errors.New("unknown response mode")
	ErrLLMMustBeSet   = errors.New("llm must be set")
	ErrEmptyQueryText = errors.New("query must not be empty")
)

// Mode is the strategy used to fit the nodes into LLM calls.
type Mode string

const (
	// Compact joins every node into a single call.
	Compact Mode = "compact"
	// Refine answers from the first node then refines the answer once per extra node.
	Refine Mode = "refine"
)

// ParseMode validates s. An empty string is [Compact].
func ParseMode(s string) (Mode, error) {
	switch mode := Mode(strings.ToLower(s)); mode {
	case "":
		return Compact, nil
	case Compact, Refine:
		return mode, nil
	default:
		return "", errors.Wrapf(ErrUnknownMode, "%q", s)
	}
}

// Response is a synthesized answer with the nodes it is based on.
type Response struct {
	Text        string               `json:"response"`
	SourceNodes schema.NodesWithScore `json:"source_nodes"`
}

func (r *Response) String() string {
	return r.Text
}

// Synthesizer answers queries with an LLM.
type Synthesizer struct {
	LLM            llm.LLM
	Template       prompt.Prompt
	RefineTemplate prompt.Prompt
	Mode           Mode
}

// Option configures a [Synthesizer].
type Option func(*Synthesizer)

// WithMode sets the response mode.
func WithMode(mode Mode) Option {
	return func(s *Synthesizer) {
		s.Mode = mode
	}
}

// WithTemplate replaces the question answering template. It needs context_str and query_str.
func WithTemplate(tpl prompt.Prompt) Option {
	return func(s *Synthesizer) {
		s.Template = tpl
	}
}

// WithRefineTemplate replaces the refine template.
func WithRefineTemplate(tpl prompt.Prompt) Option {
	return func(s *Synthesizer) {
		s.RefineTemplate = tpl
	}
}

// New creates a compact synthesizer using the default templates.
func New(model llm.LLM, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		LLM:            model,
		Template:       prompt.DefaultQATemplate,
		RefineTemplate: prompt.DefaultRefineTemplate,
		Mode:           Compact,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Synthesizer) complete(ctx context.Context, tpl prompt.Prompt, vars map[string]any) (string, error) {
	text, err := tpl.Format(vars)
	if err != nil {
		return "", errors.Wrap(err, "unable to format prompt")
	}

	res, err := s.LLM.Complete(ctx, text)
	if err != nil {
		return "", errors.Wrap(err, "unable to complete prompt")
	}

	return res.Text, nil
}

// Synthesize answers query from nodes.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, nodes schema.NodesWithScore) (*Response, error) {
	if s.LLM == nil {
		return nil, ErrLLMMustBeSet
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQueryText
	}

	texts := nodes.Texts()
	if len(texts) == 0 {
		return nil, ErrNoNodes
	}

	mode, err := ParseMode(string(s.Mode))
	if err != nil {
		return nil, err
	}

	log.Trace("synthesizing %d nodes in %s mode", len(texts), mode)

	var answer string
	switch mode {
	case Compact:
		answer, err = s.complete(ctx, s.Template, map[string]any{
			prompt.ContextVar: texts,
			prompt.QueryVar:   query,
		})
	case Refine:
		answer, err = s.refine(ctx, query, texts)
	}
	if err != nil {
		return nil, err
	}

	return &Response{Text: answer, SourceNodes: nodes}, nil
}

func (s *Synthesizer) refine(ctx context.Context, query string, texts []string) (string, error) {
	answer, err := s.complete(ctx, s.Template, map[string]any{
		prompt.ContextVar: texts[0],
		prompt.QueryVar:   query,
	})
	if err != nil {
		return "", errors.Wrap(err, "node 0")
	}

	for i, text := range texts[1:] {
		answer, err = s.complete(ctx, s.RefineTemplate, map[string]any{
			prompt.QueryVar:          query,
			prompt.ExistingAnswerVar: answer,
			prompt.ContextMsgVar:     text,
		})
		if err != nil {
			return "", errors.Wrapf(err, "node %d", i+1)
		}
	}

	return answer, nil
}
