package query

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/askiada/go-query-pipeline/pkg/llm"
	"github.com/askiada/go-query-pipeline/pkg/prompt"
	"github.com/askiada/go-query-pipeline/pkg/retriever"
	"github.com/askiada/go-query-pipeline/pkg/schema"
	"github.com/askiada/go-query-pipeline/pkg/synthesizer"
)

const (
	InputKey  = "input"
	OutputKey = "output"
	PromptKey = "prompt"
	QueryKey  = "query_str"
	NodesKey  = "nodes"
)

// FnComponent runs an arbitrary function.
type FnComponent struct {
	fn      func(ctx context.Context, inputs map[string]any) (map[string]any, error)
	in, out Keys
}

// NewFnComponent wraps fn. Required input keys are checked before fn is called.
func NewFnComponent(fn func(ctx context.Context, inputs map[string]any) (map[string]any, error), in, out Keys) *FnComponent {
	return &FnComponent{fn: fn, in: in, out: out}
}

// NewValueComponent wraps a function of a single value, read from "input" and written to "output".
func NewValueComponent(fn func(ctx context.Context, value any) (any, error)) *FnComponent {
	return NewFnComponent(func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
		out, err := fn(ctx, inputs[InputKey])
		if err != nil {
			return nil, err
		}

		return map[string]any{OutputKey: out}, nil
	}, NewKeys(InputKey), NewKeys(OutputKey))
}

func (f *FnComponent) InputKeys() Keys  { return f.in }
func (f *FnComponent) OutputKeys() Keys { return f.out }

func (f *FnComponent) Run(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	err := CheckInputs(f, inputs)
	if err != nil {
		return nil, err
	}

	return f.fn(ctx, inputs)
}

// InputComponent passes its inputs through. It is the usual root of a pipeline.
type InputComponent struct {
	keys []string
}

// NewInputComponent accepts keys, "input" when none is given.
func NewInputComponent(keys ...string) *InputComponent {
	if len(keys) == 0 {
		keys = []string{InputKey}
	}

	return &InputComponent{keys: keys}
}

func (i *InputComponent) InputKeys() Keys  { return NewKeys(i.keys...) }
func (i *InputComponent) OutputKeys() Keys { return NewKeys(i.keys...) }

func (i *InputComponent) Run(_ context.Context, inputs map[string]any) (map[string]any, error) {
	err := CheckInputs(i, inputs)
	if err != nil {
		return nil, err
	}

	res := make(map[string]any, len(i.keys))
	for _, key := range i.keys {
		res[key] = inputs[key]
	}

	return res, nil
}

// ArgPackComponent collects every input into a slice ordered by input key.
type ArgPackComponent struct{}

func NewArgPackComponent() *ArgPackComponent { return &ArgPackComponent{} }

func (*ArgPackComponent) InputKeys() Keys  { return VariadicKeys() }
func (*ArgPackComponent) OutputKeys() Keys { return NewKeys(OutputKey) }

func (*ArgPackComponent) Run(_ context.Context, inputs map[string]any) (map[string]any, error) {
	res := make([]any, 0, len(inputs))
	for _, key := range slices.Sorted(maps.Keys(inputs)) {
		res = append(res, inputs[key])
	}

	return map[string]any{OutputKey: res}, nil
}

// KwargPackComponent collects every input into a map.
type KwargPackComponent struct{}

func NewKwargPackComponent() *KwargPackComponent { return &KwargPackComponent{} }

func (*KwargPackComponent) InputKeys() Keys  { return VariadicKeys() }
func (*KwargPackComponent) OutputKeys() Keys { return NewKeys(OutputKey) }

func (*KwargPackComponent) Run(_ context.Context, inputs map[string]any) (map[string]any, error) {
	return map[string]any{OutputKey: maps.Clone(inputs)}, nil
}

// PromptComponent formats a prompt from its template variables. Chat templates output
// []llm.ChatMessage, other prompts a string.
type PromptComponent struct {
	prompt prompt.Prompt
}

func NewPromptComponent(p prompt.Prompt) *PromptComponent {
	return &PromptComponent{prompt: p}
}

func (p *PromptComponent) InputKeys() Keys  { return NewKeys(p.prompt.Vars()...) }
func (p *PromptComponent) OutputKeys() Keys { return NewKeys(PromptKey) }

func (p *PromptComponent) Run(_ context.Context, inputs map[string]any) (map[string]any, error) {
	if chat, ok := p.prompt.(*prompt.ChatTemplate); ok {
		messages, err := chat.FormatMessages(inputs)
		if err != nil {
			return nil, err
		}

		return map[string]any{PromptKey: messages}, nil
	}

	text, err := p.prompt.Format(inputs)
	if err != nil {
		return nil, err
	}

	return map[string]any{PromptKey: text}, nil
}

// toText converts a value flowing between modules to text.
func toText(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	}

	s, err := cast.ToStringE(value)
	if err != nil {
		return "", errors.Wrapf(ErrUnexpectedType, "%T is not text", value)
	}

	return s, nil
}

// LLMComponent calls a model. Message lists always go to the chat endpoint; text goes to the
// completion endpoint unless the component is in chat mode.
type LLMComponent struct {
	model llm.LLM
	chat  bool
}

// NewLLMComponent creates a completion component.
func NewLLMComponent(model llm.LLM) *LLMComponent {
	return &LLMComponent{model: model}
}

// NewChatComponent creates a component sending text as a user message.
func NewChatComponent(model llm.LLM) *LLMComponent {
	return &LLMComponent{model: model, chat: true}
}

func (l *LLMComponent) InputKeys() Keys  { return NewKeys(InputKey) }
func (l *LLMComponent) OutputKeys() Keys { return NewKeys(OutputKey) }

func (l *LLMComponent) Run(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	err := CheckInputs(l, inputs)
	if err != nil {
		return nil, err
	}

	var messages []llm.ChatMessage
	switch v := inputs[InputKey].(type) {
	case []llm.ChatMessage:
		messages = v
	case llm.ChatMessage:
		messages = []llm.ChatMessage{v}
	default:
		text, err := toText(v)
		if err != nil {
			return nil, err
		}

		if !l.chat {
			res, err := l.model.Complete(ctx, text)
			if err != nil {
				return nil, errors.Wrap(err, "unable to complete")
			}

			return map[string]any{OutputKey: res}, nil
		}
		messages = []llm.ChatMessage{{Role: llm.RoleUser, Content: text}}
	}

	res, err := l.model.Chat(ctx, messages)
	if err != nil {
		return nil, errors.Wrap(err, "unable to chat")
	}

	return map[string]any{OutputKey: res}, nil
}

// RetrieverComponent retrieves the nodes for a query string or bundle.
type RetrieverComponent struct {
	retriever retriever.Retriever
}

func NewRetrieverComponent(r retriever.Retriever) *RetrieverComponent {
	return &RetrieverComponent{retriever: r}
}

func (r *RetrieverComponent) InputKeys() Keys  { return NewKeys(InputKey) }
func (r *RetrieverComponent) OutputKeys() Keys { return NewKeys(OutputKey) }

func toQueryBundle(value any) (schema.QueryBundle, error) {
	switch v := value.(type) {
	case schema.QueryBundle:
		return v, nil
	case *schema.QueryBundle:
		return *v, nil
	}

	text, err := toText(value)
	if err != nil {
		return schema.QueryBundle{}, err
	}

	return schema.QueryBundle{QueryStr: text}, nil
}

func (r *RetrieverComponent) Run(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	err := CheckInputs(r, inputs)
	if err != nil {
		return nil, err
	}

	query, err := toQueryBundle(inputs[InputKey])
	if err != nil {
		return nil, err
	}

	nodes, err := r.retriever.Retrieve(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "unable to retrieve")
	}

	return map[string]any{OutputKey: nodes}, nil
}

// SynthesizerComponent answers query_str from nodes.
type SynthesizerComponent struct {
	synth *synthesizer.Synthesizer
}

func NewSynthesizerComponent(s *synthesizer.Synthesizer) *SynthesizerComponent {
	return &SynthesizerComponent{synth: s}
}

func (s *SynthesizerComponent) InputKeys() Keys  { return NewKeys(QueryKey, NodesKey) }
func (s *SynthesizerComponent) OutputKeys() Keys { return NewKeys(OutputKey) }

func (s *SynthesizerComponent) Run(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	err := CheckInputs(s, inputs)
	if err != nil {
		return nil, err
	}

	query, err := toQueryBundle(inputs[QueryKey])
	if err != nil {
		return nil, err
	}

	var nodes schema.NodesWithScore
	switch v := inputs[NodesKey].(type) {
	case schema.NodesWithScore:
		nodes = v
	case []schema.NodeWithScore:
		nodes = v
	default:
		return nil, errors.Wrapf(ErrUnexpectedType, "%T is not a node list", v)
	}

	res, err := s.synth.Synthesize(ctx, query.QueryStr, nodes)
	if err != nil {
		return nil, err
	}

	return map[string]any{OutputKey: res}, nil
}

type partialComponent struct {
	Component
	fixed map[string]any
}

// Partial binds some inputs of c. The bound keys are no longer input keys, so a link to a
// bound key is rejected with [ErrUnknownKey]. A bound key given to a root module at run time
// overrides the bound value.
func Partial(c Component, fixed map[string]any) Component {
	return &partialComponent{Component: c, fixed: maps.Clone(fixed)}
}

func (p *partialComponent) InputKeys() Keys {
	keys := p.Component.InputKeys()
	unbound := func(in []string) []string {
		return slices.DeleteFunc(slices.Clone(in), func(key string) bool {
			_, ok := p.fixed[key]

			return ok
		})
	}

	return Keys{Required: unbound(keys.Required), Optional: unbound(keys.Optional), Variadic: keys.Variadic}
}

func (p *partialComponent) Run(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	merged := make(map[string]any, len(p.fixed)+len(inputs))
	maps.Copy(merged, p.fixed)
	maps.Copy(merged, inputs)

	return p.Component.Run(ctx, merged)
}
