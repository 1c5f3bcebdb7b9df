package query_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-query-pipeline/pkg/llm"
	"github.com/askiada/go-query-pipeline/pkg/prompt"
	"github.com/askiada/go-query-pipeline/pkg/query"
	"github.com/askiada/go-query-pipeline/pkg/retriever"
	"github.com/askiada/go-query-pipeline/pkg/schema"
	"github.com/askiada/go-query-pipeline/pkg/stream/measure"
	"github.com/askiada/go-query-pipeline/pkg/synthesizer"
)

func double() query.Component {
	return query.NewValueComponent(func(_ context.Context, value any) (any, error) {
		return value.(int) * 2, nil
	})
}

func staticRetriever(texts ...string) retriever.Retriever {
	return retriever.Func(func(_ context.Context, _ schema.QueryBundle) (schema.NodesWithScore, error) {
		res := make(schema.NodesWithScore, len(texts))
		for i, text := range texts {
			res[i] = schema.NodeWithScore{Node: schema.NewTextNode(text, nil), Score: 1}
		}

		return res, nil
	})
}

func TestRunChain(t *testing.T) {
	t.Parallel()

	p, err := query.NewChain([]query.Component{upper(), suffix("!")})
	require.NoError(t, err)

	out, err := p.Run(t.Context(), map[string]any{query.InputKey: "abc"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{query.OutputKey: "ABC!"}, out)

	value, err := p.RunValue(t.Context(), "xyz")
	require.NoError(t, err)
	assert.Equal(t, "XYZ!", value)
}

func TestRunPromptToLLM(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		component func(llm.LLM) query.Component
		prompt    prompt.Prompt
		expected  string
	}{
		"completion": {
			component: func(m llm.LLM) query.Component { return query.NewLLMComponent(m) },
			prompt:    prompt.MustTemplate("tell me about {topic}"),
			expected:  "tell me about cats",
		},
		"chat mode": {
			component: func(m llm.LLM) query.Component { return query.NewChatComponent(m) },
			prompt:    prompt.MustTemplate("tell me about {topic}"),
			expected:  "user: tell me about cats\nassistant: ",
		},
		"chat template": {
			component: func(m llm.LLM) query.Component { return query.NewLLMComponent(m) },
			prompt: func() prompt.Prompt {
				tpl, err := prompt.NewChatTemplate(
					llm.ChatMessage{Role: llm.RoleSystem, Content: "be brief"},
					llm.ChatMessage{Role: llm.RoleUser, Content: "{topic}?"},
				)
				require.NoError(t, err)

				return tpl
			}(),
			expected: "system: be brief\nuser: cats?\nassistant: ",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			model := &llm.MockLLM{}
			p, err := query.NewChain([]query.Component{query.NewPromptComponent(tc.prompt), tc.component(model)})
			require.NoError(t, err)

			out, err := p.RunValue(t.Context(), "cats")
			require.NoError(t, err)

			stringer, ok := out.(interface{ String() string })
			require.True(t, ok)
			assert.Equal(t, tc.expected, stringer.String())
			assert.Equal(t, 1, model.Calls())
		})
	}
}

func TestRunRetrievalDAG(t *testing.T) {
	t.Parallel()

	model := &llm.MockLLM{}
	p := query.New(query.WithConcurrency(2))
	require.NoError(t, p.AddModules(map[string]query.Component{
		"input":     query.NewInputComponent(),
		"retriever": query.NewRetrieverComponent(staticRetriever("cats purr", "dogs bark")),
		"synth":     query.NewSynthesizerComponent(synthesizer.New(model)),
	}))
	require.NoError(t, p.AddLink("input", "retriever"))
	require.NoError(t, p.AddLink("input", "synth", query.WithDestKey(query.QueryKey)))
	require.NoError(t, p.AddLink("retriever", "synth", query.WithDestKey(query.NodesKey)))
	require.NoError(t, p.Validate())

	res, err := p.RunWithIntermediates(t.Context(), map[string]map[string]any{"input": {query.InputKey: "what do cats do?"}})
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Len(t, res.Intermediates, 3)

	answer, ok := res.Outputs["synth"][query.OutputKey].(*synthesizer.Response)
	require.True(t, ok)
	assert.Contains(t, answer.Text, "cats purr\n\ndogs bark")
	assert.Contains(t, answer.Text, "what do cats do?")
	assert.Len(t, answer.SourceNodes, 2)

	synthInputs := res.Intermediates["synth"].Inputs
	assert.Equal(t, "what do cats do?", synthInputs[query.QueryKey])
	assert.IsType(t, schema.NodesWithScore{}, synthInputs[query.NodesKey])
}

func TestRunConditionalLinks(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		value    int
		ran      string
		skipped  []string
		expected int
	}{
		"small": {value: 3, ran: "small", skipped: []string{"big", "after big"}, expected: 6},
		"big":   {value: 30, ran: "after big", skipped: []string{"small"}, expected: 120},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			p := query.New()
			require.NoError(t, p.AddModules(map[string]query.Component{
				"input":     query.NewInputComponent(),
				"small":     double(),
				"big":       double(),
				"after big": double(),
			}))
			require.NoError(t, p.AddLink("input", "small", query.WithCondition("value <= 10")))
			require.NoError(t, p.AddLink("input", "big", query.WithConditionFn(func(value any) (bool, error) {
				return value.(int) > 10, nil
			})))
			require.NoError(t, p.AddLink("big", "after big"))

			res, err := p.RunWithIntermediates(t.Context(), map[string]map[string]any{"input": {query.InputKey: tc.value}})
			require.NoError(t, err)

			assert.Equal(t, map[string]map[string]any{tc.ran: {query.OutputKey: tc.expected}}, res.Outputs)
			for _, name := range tc.skipped {
				assert.True(t, res.Intermediates[name].Skipped, name)
			}
			assert.False(t, res.Intermediates[tc.ran].Skipped)
		})
	}
}

func TestRunConditionOnOutput(t *testing.T) {
	t.Parallel()

	p := query.New()
	require.NoError(t, p.AddModules(map[string]query.Component{
		"input": query.NewInputComponent("text", "lang"),
		"upper": upper(),
	}))
	require.NoError(t, p.AddLink("input", "upper", query.WithSrcKey("text"), query.WithCondition(`output.lang == "en"`)))

	out, err := p.RunMultiple(t.Context(), map[string]map[string]any{"input": {"text": "hi", "lang": "en"}})
	require.NoError(t, err)
	assert.Equal(t, "HI", out["upper"][query.OutputKey])

	out, err = p.RunMultiple(t.Context(), map[string]map[string]any{"input": {"text": "hi", "lang": "fr"}})
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = p.Run(t.Context(), map[string]any{"text": "hi", "lang": "fr"})
	require.ErrorIs(t, err, query.ErrNoOutput)
}

func TestRunWholeOutputMap(t *testing.T) {
	t.Parallel()

	p := query.New()
	require.NoError(t, p.AddModules(map[string]query.Component{
		"input": query.NewInputComponent("a", "b"),
		"pack":  query.NewKwargPackComponent(),
	}))
	require.NoError(t, p.AddLink("input", "pack", query.WithDestKey("all")))

	out, err := p.RunValue(t.Context(), nil)
	require.ErrorIs(t, err, query.ErrAmbiguousKey)
	assert.Nil(t, out)

	res, err := p.Run(t.Context(), map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"all": map[string]any{"a": 1, "b": 2}}, res[query.OutputKey])
}

func TestRunArgPack(t *testing.T) {
	t.Parallel()

	p := query.New()
	require.NoError(t, p.AddModules(map[string]query.Component{
		"input": query.NewInputComponent(),
		"x":     double(),
		"y":     double(),
		"pack":  query.NewArgPackComponent(),
	}))
	require.NoError(t, p.AddLink("input", "x"))
	require.NoError(t, p.AddLink("input", "y"))
	require.NoError(t, p.AddLink("x", "pack"))
	require.NoError(t, p.AddLink("y", "pack"))
	require.NoError(t, p.AddLink("input", "pack"))

	out, err := p.RunValue(t.Context(), 5)
	require.NoError(t, err)
	assert.Equal(t, []any{5, 10, 10}, out)
}

func TestRunMultipleRoots(t *testing.T) {
	t.Parallel()

	p := query.New()
	require.NoError(t, p.AddModules(map[string]query.Component{
		"query": query.NewInputComponent(),
		"nodes": query.NewInputComponent(),
		"synth": synth(),
		"echo":  upper(),
	}))
	require.NoError(t, p.AddLink("query", "synth", query.WithDestKey(query.QueryKey)))
	require.NoError(t, p.AddLink("nodes", "synth", query.WithDestKey(query.NodesKey)))
	require.NoError(t, p.AddLink("query", "echo"))

	_, err := p.Run(t.Context(), map[string]any{query.InputKey: "q"})
	require.ErrorIs(t, err, query.ErrSingleRoot)

	nodes := schema.NodesWithScore{{Node: schema.NewTextNode("context", nil), Score: 1}}
	out, err := p.RunMultiple(t.Context(), map[string]map[string]any{
		"query": {query.InputKey: "q"},
		"nodes": {query.InputKey: nodes},
	})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, "Q", out["echo"][query.OutputKey])

	// nodes is not given: synth is skipped
	out, err = p.RunMultiple(t.Context(), map[string]map[string]any{"query": {query.InputKey: "q"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]any{"echo": {query.OutputKey: "Q"}}, out)

	_, err = p.RunMultiple(t.Context(), map[string]map[string]any{"nope": {}})
	require.ErrorIs(t, err, query.ErrModuleNotFound)

	_, err = p.RunMultiple(t.Context(), map[string]map[string]any{"synth": {}})
	require.ErrorIs(t, err, query.ErrNotRoot)

	_, err = p.RunMultiple(t.Context(), map[string]map[string]any{"query": {"other": "q"}})
	require.ErrorIs(t, err, query.ErrMissingInput)
}

func TestRunSingleLeaf(t *testing.T) {
	t.Parallel()

	p := query.New()
	require.NoError(t, p.AddModules(map[string]query.Component{"input": query.NewInputComponent(), "a": upper(), "b": upper()}))
	require.NoError(t, p.AddLink("input", "a"))
	require.NoError(t, p.AddLink("input", "b"))

	_, err := p.Run(t.Context(), map[string]any{query.InputKey: "x"})
	require.ErrorIs(t, err, query.ErrSingleLeaf)

	_, err = p.RunValue(t.Context(), "x")
	require.ErrorIs(t, err, query.ErrSingleLeaf)
}

func TestRunNoModules(t *testing.T) {
	t.Parallel()

	p := query.New()

	_, err := p.Run(t.Context(), nil)
	require.ErrorIs(t, err, query.ErrNoModules)

	_, err = p.RunMultiple(t.Context(), nil)
	require.ErrorIs(t, err, query.ErrNoModules)
}

func TestRunMissingInput(t *testing.T) {
	t.Parallel()

	p := query.New()
	require.NoError(t, p.AddModules(map[string]query.Component{"input": query.NewInputComponent(), "synth": synth()}))
	require.NoError(t, p.AddLink("input", "synth", query.WithDestKey(query.QueryKey)))

	_, err := p.RunValue(t.Context(), "q")
	require.ErrorIs(t, err, query.ErrMissingInput)
	assert.Contains(t, err.Error(), "module synth")
	assert.Contains(t, err.Error(), query.NodesKey)
}

func TestRunModuleError(t *testing.T) {
	t.Parallel()

	failing := query.NewValueComponent(func(context.Context, any) (any, error) {
		return nil, assert.AnError
	})

	p, err := query.NewChain([]query.Component{upper(), failing, upper()})
	require.NoError(t, err)

	_, err = p.RunValue(t.Context(), "x")
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "module 1")
}

func TestRunErrorCancelsRunningModules(t *testing.T) {
	t.Parallel()

	failing := query.NewValueComponent(func(context.Context, any) (any, error) {
		return nil, assert.AnError
	})
	waiting := query.NewValueComponent(func(ctx context.Context, _ any) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return nil, nil
		}
	})

	p := query.New(query.WithConcurrency(2))
	require.NoError(t, p.AddModules(map[string]query.Component{"input": query.NewInputComponent(), "fail": failing, "wait": waiting}))
	require.NoError(t, p.AddLink("input", "fail"))
	require.NoError(t, p.AddLink("input", "wait"))

	start := time.Now()
	_, err := p.RunMultiple(t.Context(), map[string]map[string]any{"input": {query.InputKey: 1}})
	require.ErrorIs(t, err, assert.AnError)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunConcurrentModules(t *testing.T) {
	t.Parallel()

	var wg sync.WaitGroup
	wg.Add(2)

	// both branches only return once the other one has started
	rendezvous := query.NewValueComponent(func(ctx context.Context, value any) (any, error) {
		wg.Done()

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			return value, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return nil, assert.AnError
		}
	})

	p := query.New(query.WithConcurrency(2))
	require.NoError(t, p.AddModules(map[string]query.Component{"input": query.NewInputComponent(), "a": rendezvous, "b": rendezvous}))
	require.NoError(t, p.AddLink("input", "a"))
	require.NoError(t, p.AddLink("input", "b"))

	out, err := p.RunMultiple(t.Context(), map[string]map[string]any{"input": {query.InputKey: 1}})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestRunReadyModuleDoesNotWaitForSiblings(t *testing.T) {
	t.Parallel()

	slowDone := make(chan struct{})
	var dStartedEarly bool

	slow := query.NewValueComponent(func(ctx context.Context, value any) (any, error) {
		defer close(slowDone)

		select {
		case <-time.After(200 * time.Millisecond):
			return value, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	last := query.NewValueComponent(func(_ context.Context, value any) (any, error) {
		select {
		case <-slowDone:
		default:
			dStartedEarly = true
		}

		return value, nil
	})

	p := query.New(query.WithConcurrency(4))
	require.NoError(t, p.AddModules(map[string]query.Component{
		"input": query.NewInputComponent(),
		"a":     slow,
		"b":     upper(),
		"d":     last,
	}))
	require.NoError(t, p.AddLink("input", "a"))
	require.NoError(t, p.AddLink("input", "b"))
	require.NoError(t, p.AddLink("b", "d"))

	out, err := p.RunMultiple(t.Context(), map[string]map[string]any{"input": {query.InputKey: "x"}})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.True(t, dStartedEarly)
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	p, err := query.NewChain([]query.Component{upper()})
	require.NoError(t, err)

	_, err = p.RunValue(ctx, "x")
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunMeasure(t *testing.T) {
	t.Parallel()

	msr := measure.NewDefaultMeasure()
	p, err := query.NewChain([]query.Component{upper(), suffix("!")}, query.WithMeasure(msr), query.WithVerbose())
	require.NoError(t, err)

	for range 3 {
		_, err = p.RunValue(t.Context(), "x")
		require.NoError(t, err)
	}

	metrics := msr.AllMetrics()
	require.Len(t, metrics, 2)
	assert.Equal(t, int64(3), metrics["0"].Count())
	assert.Equal(t, int64(3), metrics["1"].Count())
}
