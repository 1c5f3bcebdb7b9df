package stream

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-query-pipeline/pkg/stream/model"
)

// Splitter fans the elements of one step out to several branches.
type Splitter[I any] struct {
	mu            sync.Mutex
	currIdx       int
	mainStep      *model.Step[I]
	splittedSteps []*model.Step[I]
	bufferSize    int
	Total         int
}

// Get returns the next branch not yet handed out.
func (s *Splitter[I]) Get() (*model.Step[I], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currIdx >= len(s.splittedSteps) {
		return nil, false
	}

	step := s.splittedSteps[s.currIdx]
	s.currIdx++

	return step, true
}

// SplitterOption configures a splitter.
type SplitterOption[I any] func(s *Splitter[I])

// SplitterBufferSize sets the capacity of every branch channel.
func SplitterBufferSize[I any](bufferSize int) SplitterOption[I] {
	return func(s *Splitter[I]) {
		s.bufferSize = bufferSize
	}
}

// SplitterFn decides whether an element is sent to a branch.
type SplitterFn[I any] func(input I) (bool, error)

func newSplitter[I any](p *Pipeline, name string, input *model.Step[I], total int, opts ...SplitterOption[I]) (*Splitter[I], error) {
	if p == nil {
		return nil, ErrPipelineMustBeSet
	}
	if input == nil {
		return nil, ErrInputMustBeSet
	}
	if total <= 0 {
		return nil, ErrSplitterTotal
	}

	splitter := &Splitter[I]{
		Total: total,
		mainStep: &model.Step[I]{
			Details: newStepInfo(model.SplitterStepType, name),
		},
		bufferSize: 1,
	}
	for _, opt := range opts {
		opt(splitter)
	}
	if splitter.bufferSize < 0 {
		splitter.bufferSize = 0
	}

	splitter.splittedSteps = make([]*model.Step[I], total)
	for i := range total {
		splitter.splittedSteps[i] = &model.Step[I]{
			Details: splitter.mainStep.Details,
			Output:  make(chan I, splitter.bufferSize),
		}
	}

	parent := input.Info()
	for _, opt := range p.opts {
		err := opt.PrepareSplitter(parent, splitter.mainStep.Details)
		if err != nil {
			return nil, errors.Wrap(err, "unable to run prepare splitter function")
		}
	}

	return splitter, nil
}

func runSplitter[I any](ctx context.Context, p *Pipeline, input *model.Step[I], splitter *Splitter[I], fns []SplitterFn[I]) error {
	for {
		startIter := time.Now()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-input.Output:
			if !ok {
				return ctx.Err()
			}

			startFn := time.Now()
			for i, branch := range splitter.splittedSteps {
				keep, err := fns[i](entry)
				if err != nil {
					return errors.Wrapf(err, "unable to run splitter function %d", i)
				}
				if !keep {
					continue
				}

				err = emit(ctx, branch, entry)
				if err != nil {
					return err
				}
			}

			endFn := time.Since(startFn)
			endIter := time.Since(startIter) - endFn

			for _, opt := range p.opts {
				err := opt.OnSplitterOutput(input.Details, splitter.mainStep.Details, endIter, endFn)
				if err != nil {
					return errors.Wrap(err, "unable to run on splitter output function")
				}
			}
		}
	}
}

func registerSplitter[I any](p *Pipeline, input *model.Step[I], splitter *Splitter[I], fns []SplitterFn[I]) {
	errC := make(chan error, 1)
	p.errs.watch(splitter.mainStep.Details.Name, errC)

	p.addFn(func(ctx context.Context) {
		defer func() {
			for _, branch := range splitter.splittedSteps {
				close(branch.Output)
			}
			close(errC)
		}()

		err := runSplitter(ctx, p, input, splitter, fns)
		if err != nil {
			p.abort(splitter.mainStep.Details.Name, err)
			errC <- err
		}
	})
}

// AddSplitterFn creates one branch per function. An element is sent to a branch when its function returns true.
func AddSplitterFn[I any](p *Pipeline, name string, input *model.Step[I], fns []SplitterFn[I], opts ...SplitterOption[I]) (*Splitter[I], error) {
	splitter, err := newSplitter(p, name, input, len(fns), opts...)
	if err != nil {
		return nil, err
	}

	registerSplitter(p, input, splitter, fns)

	return splitter, nil
}
