package stream

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-query-pipeline/pkg/stream/model"
)

func prepareSink[I any](pipe *Pipeline, name string, input *model.Step[I]) (*model.StepInfo, error) {
	if pipe == nil {
		return nil, ErrPipelineMustBeSet
	}
	if input == nil {
		return nil, ErrInputMustBeSet
	}

	parent := input.Info()
	info := newStepInfo(model.SinkStepType, name)

	for _, opt := range pipe.opts {
		err := opt.PrepareSink(parent, info)
		if err != nil {
			return nil, errors.Wrap(err, "unable to run prepare sink function")
		}
	}

	return info, nil
}

func (p *Pipeline) afterSink(info *model.StepInfo) error {
	for _, opt := range p.opts {
		err := opt.AfterSink(info, time.Since(p.startTime))
		if err != nil {
			return errors.Wrap(err, "unable to run after sink function")
		}
	}

	return nil
}

func (p *Pipeline) onSinkOutput(parent, info *model.StepInfo, waited, computation time.Duration) error {
	for _, opt := range p.opts {
		err := opt.OnSinkOutput(parent, info, waited, computation)
		if err != nil {
			return errors.Wrap(err, "unable to run on sink output function")
		}
	}

	return nil
}

func registerSink(pipe *Pipeline, info *model.StepInfo, run func(ctx context.Context) error) {
	errC := make(chan error, 1)
	pipe.errs.watch(info.Name, errC)

	pipe.addFn(func(ctx context.Context) {
		defer close(errC)

		err := run(ctx)
		if err == nil {
			err = pipe.afterSink(info)
		}
		if err != nil {
			pipe.abort(info.Name, err)
			errC <- err
		}
	})
}

// AddSink consumes every element of input with sinkFn.
func AddSink[I any](pipe *Pipeline, name string, input *model.Step[I], sinkFn func(ctx context.Context, input I) error) error {
	info, err := prepareSink(pipe, name, input)
	if err != nil {
		return err
	}

	registerSink(pipe, info, func(ctx context.Context) error {
		return consume(ctx, 1, input, func(ctx context.Context, in I, waited time.Duration) error {
			startFn := time.Now()
			err := sinkFn(ctx, in)
			if err != nil {
				return err
			}

			return pipe.onSinkOutput(input.Details, info, waited, time.Since(startFn))
		})
	})

	return nil
}

// AddSinkFromChan hands the input elements to stepFn through a channel. Every element read by
// stepFn is reported to the pipeline options. When the run fails, the context passed to stepFn
// is cancelled before the channel is closed: stepFn must check it before committing buffered work.
func AddSinkFromChan[I any](pipe *Pipeline, name string, input *model.Step[I], stepFn func(ctx context.Context, input <-chan I) error) error {
	info, err := prepareSink(pipe, name, input)
	if err != nil {
		return err
	}

	registerSink(pipe, info, func(ctx context.Context) error {
		relayCtx, cancel := context.WithCancelCause(ctx)
		defer cancel(nil)

		relay := make(chan I)
		relayErr := make(chan error, 1)

		go func() {
			err := consume(relayCtx, 1, input, func(ctx context.Context, in I, waited time.Duration) error {
				startFn := time.Now()
				select {
				case <-ctx.Done():
					return ctx.Err()
				case relay <- in:
				}

				return pipe.onSinkOutput(input.Details, info, waited, time.Since(startFn))
			})
			if err != nil {
				cancel(err)
			}
			close(relay)
			relayErr <- err
		}()

		err := stepFn(relayCtx, relay)
		if err != nil {
			cancel(err)
		}

		for range relay { //nolint:revive
		}

		rerr := <-relayErr
		if err != nil {
			return err
		}

		return rerr
	})

	return nil
}
