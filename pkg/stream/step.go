package stream

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/askiada/go-query-pipeline/pkg/stream/model"
)

// consumeFn handles one element read from the input. waited is the time spent waiting on the input channel.
type consumeFn[I any] func(ctx context.Context, in I, waited time.Duration) error

func sequentialConsume[I any](ctx context.Context, goIdx int, input *model.Step[I], fn consumeFn[I]) error {
	for {
		start := time.Now()
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "go routine %d", goIdx)
		case in, ok := <-input.Output:
			// a cancelled run closes its outputs too
			if !ok {
				return ctx.Err()
			}

			err := fn(ctx, in, time.Since(start))
			if err != nil {
				return errors.Wrapf(err, "go routine %d", goIdx)
			}
		}
	}
}

func concurrentConsume[I any](ctx context.Context, concurrent int, input *model.Step[I], fn consumeFn[I]) error {
	errGrp, dCtx := errgroup.WithContext(ctx)
	errGrp.SetLimit(concurrent)
	// starts many consumers concurrently
	// each consumer stops as soon as an error happens
	for goIdx := range concurrent {
		errGrp.Go(func() error {
			return sequentialConsume(dCtx, goIdx, input, fn)
		})
	}

	return errGrp.Wait()
}

func consume[I any](ctx context.Context, concurrent int, input *model.Step[I], fn consumeFn[I]) error {
	if concurrent <= 1 {
		return sequentialConsume(ctx, 0, input, fn)
	}

	return concurrentConsume(ctx, concurrent, input, fn)
}

// emit pushes out to the step output unless the context is done.
func emit[O any](ctx context.Context, output *model.Step[O], out O) error {
	// we check the context again to make sure all go routines currently running
	// stop to add new elements to the pipeline
	select {
	case <-ctx.Done():
		return ctx.Err()
	case output.Output <- out:
		return nil
	}
}

func (p *Pipeline) onStepOutput(parent, step *model.StepInfo, iteration, computation time.Duration) error {
	for _, opt := range p.opts {
		err := opt.OnStepOutput(parent, step, iteration, computation)
		if err != nil {
			return errors.Wrap(err, "unable to run on step output function")
		}
	}

	return nil
}

func runOneToOne[I, O any](ctx context.Context, p *Pipeline, input *model.Step[I], output *model.Step[O], fn func(context.Context, I) (O, bool, error)) error {
	return consume(ctx, output.Details.Concurrent, input, func(ctx context.Context, in I, waited time.Duration) error {
		startFn := time.Now()
		out, keep, err := fn(ctx, in)
		if err != nil {
			return err
		}
		endFn := time.Since(startFn)
		if !keep {
			return nil
		}

		err = emit(ctx, output, out)
		if err != nil {
			return err
		}

		return p.onStepOutput(input.Details, output.Details, waited, endFn)
	})
}

func runOneToMany[I, O any](ctx context.Context, p *Pipeline, input *model.Step[I], output *model.Step[O], fn func(context.Context, I) ([]O, error)) error {
	return consume(ctx, output.Details.Concurrent, input, func(ctx context.Context, in I, waited time.Duration) error {
		startFn := time.Now()
		outs, err := fn(ctx, in)
		if err != nil {
			return err
		}
		endFn := time.Since(startFn)

		for _, out := range outs {
			err = emit(ctx, output, out)
			if err != nil {
				return err
			}
		}

		return p.onStepOutput(input.Details, output.Details, waited, endFn)
	})
}

func prepareStep[I, O any](p *Pipeline, name string, input *model.Step[I], opts ...StepOption) (*model.Step[O], error) {
	if p == nil {
		return nil, ErrPipelineMustBeSet
	}
	if input == nil {
		return nil, ErrInputMustBeSet
	}

	parent := input.Info()
	info := newStepInfo(model.NormalStepType, name, opts...)
	step := &model.Step[O]{
		Details: info,
		Output:  make(chan O, info.BufferSize),
	}

	for _, opt := range p.opts {
		err := opt.PrepareStep(parent, info)
		if err != nil {
			return nil, errors.Wrap(err, "unable to run prepare step function")
		}
	}

	return step, nil
}

// addStep registers the step goroutine. The step output is closed once run returns.
func addStep[O any](p *Pipeline, step *model.Step[O], run func(ctx context.Context) error) {
	errC := make(chan error, 1)
	p.errs.watch(step.Details.Name, errC)

	p.addFn(func(ctx context.Context) {
		defer func() {
			close(step.Output)
			close(errC)
		}()

		err := run(ctx)
		if err != nil {
			p.abort(step.Details.Name, err)
			errC <- err
		}
	})
}

// AddStepOneToOne adds a step producing exactly one output for each input.
func AddStepOneToOne[I, O any](p *Pipeline, name string, input *model.Step[I], oneToOneFn func(context.Context, I) (O, error), opts ...StepOption) (*model.Step[O], error) {
	step, err := prepareStep[I, O](p, name, input, opts...)
	if err != nil {
		return nil, err
	}

	addStep(p, step, func(ctx context.Context) error {
		return runOneToOne(ctx, p, input, step, func(ctx context.Context, in I) (O, bool, error) {
			out, err := oneToOneFn(ctx, in)

			return out, true, err
		})
	})

	return step, nil
}

// AddStepOneToOneOrZero adds a step producing at most one output for each input.
// The element is dropped when the function returns false.
func AddStepOneToOneOrZero[I, O any](p *Pipeline, name string, input *model.Step[I], fn func(context.Context, I) (O, bool, error), opts ...StepOption) (*model.Step[O], error) {
	step, err := prepareStep[I, O](p, name, input, opts...)
	if err != nil {
		return nil, err
	}

	addStep(p, step, func(ctx context.Context) error {
		return runOneToOne(ctx, p, input, step, fn)
	})

	return step, nil
}

// AddStepOneToMany adds a step producing any number of outputs for each input.
func AddStepOneToMany[I, O any](p *Pipeline, name string, input *model.Step[I], oneToManyFn func(context.Context, I) ([]O, error), opts ...StepOption) (*model.Step[O], error) {
	step, err := prepareStep[I, O](p, name, input, opts...)
	if err != nil {
		return nil, err
	}

	addStep(p, step, func(ctx context.Context) error {
		return runOneToMany(ctx, p, input, step, oneToManyFn)
	})

	return step, nil
}
