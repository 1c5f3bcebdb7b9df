package stream

import (
	"context"

	"github.com/pkg/errors"

	"github.com/askiada/go-query-pipeline/pkg/stream/model"
)

// AddRootStep adds a step with no input. stepFn pushes elements to rootChan and returns when done;
// the output is closed afterwards.
func AddRootStep[O any](p *Pipeline, name string, stepFn func(ctx context.Context, rootChan chan<- O) error, opts ...StepOption) (*model.Step[O], error) {
	if p == nil {
		return nil, ErrPipelineMustBeSet
	}

	info := newStepInfo(model.RootStepType, name, opts...)
	step := &model.Step[O]{
		Details: info,
		Output:  make(chan O, info.BufferSize),
	}

	for _, opt := range p.opts {
		err := opt.PrepareStep(model.StartStep.Details, info)
		if err != nil {
			return nil, errors.Wrap(err, "unable to run prepare step function")
		}
	}

	addStep(p, step, func(ctx context.Context) error {
		return stepFn(ctx, step.Output)
	})

	return step, nil
}

// AddRootSlice adds a root step emitting every element of values.
func AddRootSlice[O any](p *Pipeline, name string, values []O, opts ...StepOption) (*model.Step[O], error) {
	return AddRootStep(p, name, func(ctx context.Context, rootChan chan<- O) error {
		for _, value := range values {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case rootChan <- value:
			}
		}

		return nil
	}, opts...)
}
