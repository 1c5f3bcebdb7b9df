package stream

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-query-pipeline/pkg/stream/model"
)

func prepareMerger[I any](pipe *Pipeline, name string, steps ...*model.Step[I]) (*model.Step[I], error) {
	if pipe == nil {
		return nil, ErrPipelineMustBeSet
	}
	if len(steps) == 0 {
		return nil, ErrMergerInputs
	}

	stepInfos := make([]*model.StepInfo, len(steps))
	for i, step := range steps {
		if step == nil {
			return nil, ErrInputMustBeSet
		}
		stepInfos[i] = step.Info()
	}

	outputStep := &model.Step[I]{
		Details: newStepInfo(model.MergerStepType, name),
		Output:  make(chan I),
	}

	for _, opt := range pipe.opts {
		err := opt.PrepareMerger(stepInfos, outputStep.Details)
		if err != nil {
			return nil, errors.Wrap(err, "unable to run prepare merger function")
		}
	}

	return outputStep, nil
}

func runStepMerger[I any](ctx context.Context, pipe *Pipeline, step, outputStep *model.Step[I]) error {
	for {
		startIter := time.Now()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-step.Output:
			if !ok {
				return ctx.Err()
			}

			err := emit(ctx, outputStep, entry)
			if err != nil {
				return err
			}

			endIter := time.Since(startIter)
			for _, opt := range pipe.opts {
				err := opt.OnMergerOutput(step.Details, outputStep.Details, endIter)
				if err != nil {
					return errors.Wrap(err, "unable to run on merger output function")
				}
			}
		}
	}
}

// AddMerger adds a merger step to the pipeline. It will merge the output of the steps into a single channel.
// Each input is consumed in its own goroutine.
func AddMerger[I any](pipe *Pipeline, name string, steps ...*model.Step[I]) (*model.Step[I], error) {
	outputStep, err := prepareMerger(pipe, name, steps...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to prepare merger")
	}

	errC := make(chan error, len(steps))
	pipe.errs.watch(name, errC)

	wgrp := &sync.WaitGroup{}
	wgrp.Add(len(steps))

	pipe.addFn(func(context.Context) {
		wgrp.Wait()
		close(errC)
		close(outputStep.Output)
	})

	for _, step := range steps {
		pipe.addFn(func(ctx context.Context) {
			defer wgrp.Done()

			err := runStepMerger(ctx, pipe, step, outputStep)
			if err != nil {
				pipe.abort(name, err)
				errC <- err
			}
		})
	}

	return outputStep, nil
}
