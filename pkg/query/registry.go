package query

import (
	"maps"
	"slices"

	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/askiada/go-query-pipeline/pkg/llm"
	"github.com/askiada/go-query-pipeline/pkg/prompt"
	"github.com/askiada/go-query-pipeline/pkg/retriever"
	"github.com/askiada/go-query-pipeline/pkg/synthesizer"
)

// Factory builds a component from the options of a module definition.
type Factory func(r *Registry, options map[string]any) (Component, error)

// Registry builds pipelines from definitions. It maps module types to factories and holds
// the LLM and retriever shared by the modules it builds.
type Registry struct {
	factories map[string]Factory
	llm       llm.LLM
	retriever retriever.Retriever
}

// RegistryOption configures a registry.
type RegistryOption func(*Registry)

func WithLLM(model llm.LLM) RegistryOption {
	return func(r *Registry) {
		r.llm = model
	}
}

func WithRetriever(ret retriever.Retriever) RegistryOption {
	return func(r *Registry) {
		r.retriever = ret
	}
}

// NewRegistry returns a registry knowing the built-in module types.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		factories: map[string]Factory{
			"input":       inputFactory,
			"prompt":      promptFactory,
			"llm":         llmFactory,
			"retriever":   retrieverFactory,
			"synthesizer": synthesizerFactory,
			"arg_pack": func(*Registry, map[string]any) (Component, error) {
				return NewArgPackComponent(), nil
			},
			"kwarg_pack": func(*Registry, map[string]any) (Component, error) {
				return NewKwargPackComponent(), nil
			},
		},
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds or replaces the factory of a module type.
func (r *Registry) Register(moduleType string, factory Factory) {
	r.factories[moduleType] = factory
}

// Types returns the known module types, sorted.
func (r *Registry) Types() []string {
	return slices.Sorted(maps.Keys(r.factories))
}

func (r *Registry) LLM() llm.LLM {
	return r.llm
}

func (r *Registry) Retriever() retriever.Retriever {
	return r.retriever
}

// Component builds a single module.
func (r *Registry) Component(def ModuleDef) (Component, error) {
	factory, ok := r.factories[def.Type]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownModuleType, "type %q", def.Type)
	}

	c, err := factory(r, def.Options)
	if err != nil {
		return nil, errors.Wrapf(err, "type %s", def.Type)
	}

	if len(def.Partial) > 0 {
		c = Partial(c, def.Partial)
	}

	return c, nil
}

// Build creates the pipeline declared by def. opts are applied after the definition settings.
func (r *Registry) Build(def *Definition, opts ...Option) (*Pipeline, error) {
	err := def.check()
	if err != nil {
		return nil, err
	}

	pipeOpts := []Option{}
	if def.Name != "" {
		pipeOpts = append(pipeOpts, WithName(def.Name))
	}
	if def.Concurrency > 0 {
		pipeOpts = append(pipeOpts, WithConcurrency(def.Concurrency))
	}
	if def.Verbose {
		pipeOpts = append(pipeOpts, WithVerbose())
	}

	p := New(append(pipeOpts, opts...)...)

	for _, name := range slices.Sorted(maps.Keys(def.Modules)) {
		c, err := r.Component(def.Modules[name])
		if err != nil {
			return nil, errors.Wrapf(err, "module %s", name)
		}

		err = p.AddModule(name, c)
		if err != nil {
			return nil, err
		}
	}

	for i := 1; i < len(def.Chain); i++ {
		err := p.AddLink(def.Chain[i-1], def.Chain[i])
		if err != nil {
			return nil, err
		}
	}

	err = p.AddLinks(def.Links...)
	if err != nil {
		return nil, err
	}

	return p, nil
}

func inputFactory(_ *Registry, options map[string]any) (Component, error) {
	raw, ok := options["keys"]
	if !ok {
		return NewInputComponent(), nil
	}

	keys, err := cast.ToStringSliceE(raw)
	if err != nil {
		return nil, errors.Wrap(err, "keys")
	}

	return NewInputComponent(keys...), nil
}

func promptFactory(_ *Registry, options map[string]any) (Component, error) {
	if raw, ok := options["messages"]; ok {
		items, err := cast.ToSliceE(raw)
		if err != nil {
			return nil, errors.Wrap(err, "messages")
		}

		messages := make([]llm.ChatMessage, 0, len(items))
		for i, item := range items {
			fields, err := cast.ToStringMapStringE(item)
			if err != nil {
				return nil, errors.Wrapf(err, "message %d", i)
			}

			role, err := llm.ParseRole(fields["role"])
			if err != nil {
				return nil, errors.Wrapf(err, "message %d", i)
			}
			messages = append(messages, llm.ChatMessage{Role: role, Content: fields["content"]})
		}

		tpl, err := prompt.NewChatTemplate(messages...)
		if err != nil {
			return nil, err
		}

		return NewPromptComponent(tpl), nil
	}

	text := cast.ToString(options["template"])
	if text == "" {
		return NewPromptComponent(prompt.DefaultQATemplate), nil
	}

	tpl, err := prompt.NewTemplate(text)
	if err != nil {
		return nil, err
	}

	return NewPromptComponent(tpl), nil
}

func llmFactory(r *Registry, options map[string]any) (Component, error) {
	if r.llm == nil {
		return nil, errors.Wrap(ErrNilComponent, "registry has no LLM")
	}

	if cast.ToBool(options["chat"]) {
		return NewChatComponent(r.llm), nil
	}

	return NewLLMComponent(r.llm), nil
}

func retrieverFactory(r *Registry, options map[string]any) (Component, error) {
	if r.retriever == nil {
		return nil, errors.Wrap(ErrNilComponent, "registry has no retriever")
	}

	ret := r.retriever
	if raw, ok := options["top_k"]; ok {
		topK, err := cast.ToIntE(raw)
		if err != nil {
			return nil, errors.Wrap(err, "top_k")
		}

		vector, ok := ret.(*retriever.VectorRetriever)
		if !ok {
			return nil, errors.Wrapf(ErrInvalidDefinition, "top_k is not supported by %T", ret)
		}

		clone := *vector
		clone.TopK = topK
		ret = &clone
	}

	return NewRetrieverComponent(ret), nil
}

func synthesizerFactory(r *Registry, options map[string]any) (Component, error) {
	if r.llm == nil {
		return nil, errors.Wrap(ErrNilComponent, "registry has no LLM")
	}

	mode, err := synthesizer.ParseMode(cast.ToString(options["mode"]))
	if err != nil {
		return nil, err
	}

	opts := []synthesizer.Option{synthesizer.WithMode(mode)}
	if text := cast.ToString(options["template"]); text != "" {
		tpl, err := prompt.NewTemplate(text)
		if err != nil {
			return nil, err
		}
		opts = append(opts, synthesizer.WithTemplate(tpl))
	}

	return NewSynthesizerComponent(synthesizer.New(r.llm, opts...)), nil
}
