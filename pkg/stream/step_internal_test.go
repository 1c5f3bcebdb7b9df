package stream

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-query-pipeline/pkg/stream/model"
)

func TestConsume(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		concurrent int
	}{
		"sequential":     {concurrent: 1},
		"sequential v2":  {concurrent: 0},
		"concurrent 2":   {concurrent: 2},
		"concurrent 100": {concurrent: 100},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			input := &model.Step[int]{Output: feed(t, 10, 0, nil)}

			var sum atomic.Int64

			err := consume(t.Context(), tc.concurrent, input, func(_ context.Context, in int, _ time.Duration) error {
				sum.Add(int64(in))

				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, int64(45), sum.Load())
		})
	}
}

func TestConsumeError(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		concurrent int
	}{
		"sequential":   {concurrent: 1},
		"concurrent 4": {concurrent: 4},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			input := &model.Step[int]{Output: feed(t, 10, 0, nil)}
			err := consume(ctx, tc.concurrent, input, func(_ context.Context, in int, _ time.Duration) error {
				if in == 3 {
					return assert.AnError
				}

				return nil
			})
			require.ErrorIs(t, err, assert.AnError)

			// unblock the producer
			cancel()
			for range input.Output { //nolint:revive
			}
		})
	}
}

func TestConsumeCancelInput(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	input := &model.Step[int]{Output: feed(t, 10, 5, cancel)}
	got := []int{}

	err := consume(ctx, 1, input, func(ctx context.Context, in int, _ time.Duration) error {
		got = append(got, in)

		return ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)

	for range input.Output { //nolint:revive
	}
	assert.NotEmpty(t, got)
}

func TestNewStepInfoDefaults(t *testing.T) {
	t.Parallel()

	info := newStepInfo(model.NormalStepType, "embed", StepConcurrency(-1), StepBufferSize(-4))
	assert.Equal(t, &model.StepInfo{Type: model.NormalStepType, Name: "embed", Concurrent: 1}, info)

	info = newStepInfo(model.NormalStepType, "embed", StepConcurrency(8), StepBufferSize(16))
	assert.Equal(t, 8, info.Concurrent)
	assert.Equal(t, 16, info.BufferSize)
}

func TestStepInfoFallback(t *testing.T) {
	t.Parallel()

	step := &model.Step[int]{}
	assert.Equal(t, model.StartStep.Details.Name, step.Info().Name)
}
