package query_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-query-pipeline/pkg/query"
	"github.com/askiada/go-query-pipeline/pkg/stream/measure"
)

func TestRunBatch(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		concurrency int
	}{
		"sequential":   {concurrency: 1},
		"concurrent 4": {concurrency: 4},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			msr := measure.NewDefaultMeasure()
			p, err := query.NewChain([]query.Component{upper(), suffix("!")},
				query.WithConcurrency(tc.concurrency),
				query.WithStreamOptions(measure.PipelineMeasure(msr)),
			)
			require.NoError(t, err)

			inputs := make([]map[string]any, 20)
			expected := make([]map[string]any, 20)
			for i := range inputs {
				inputs[i] = map[string]any{query.InputKey: fmt.Sprintf("q%d", i)}
				expected[i] = map[string]any{query.OutputKey: fmt.Sprintf("Q%d!", i)}
			}

			out, err := p.RunBatch(t.Context(), inputs)
			require.NoError(t, err)
			assert.Equal(t, expected, out)
			assert.Equal(t, int64(20), msr.GetMetric("query").Count())
		})
	}
}

func TestRunBatchError(t *testing.T) {
	t.Parallel()

	failing := query.NewValueComponent(func(_ context.Context, value any) (any, error) {
		if value == "q3" {
			return nil, assert.AnError
		}

		return value, nil
	})

	p, err := query.NewChain([]query.Component{failing})
	require.NoError(t, err)

	inputs := make([]map[string]any, 5)
	for i := range inputs {
		inputs[i] = map[string]any{query.InputKey: fmt.Sprintf("q%d", i)}
	}

	_, err = p.RunBatch(t.Context(), inputs)
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "query 3")
}

func TestRunBatchEmpty(t *testing.T) {
	t.Parallel()

	p, err := query.NewChain([]query.Component{upper()})
	require.NoError(t, err)

	out, err := p.RunBatch(t.Context(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
