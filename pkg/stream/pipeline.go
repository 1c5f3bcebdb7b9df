package stream

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-query-pipeline/pkg/stream/model"
)

// Pipeline is a pipeline of steps connected by channels.
type Pipeline struct {
	errs      *stepErrors
	opts      []model.PipelineOption
	startTime time.Time

	mu     sync.Mutex
	goFn   []func(ctx context.Context)
	ran    bool
	cancel context.CancelCauseFunc
	wg     sync.WaitGroup
}

// New creates a new pipeline.
func New(opts ...model.PipelineOption) (*Pipeline, error) {
	pipe := &Pipeline{
		errs:      &stepErrors{},
		startTime: time.Now(),
		opts:      opts,
	}

	for _, opt := range opts {
		err := opt.New()
		if err != nil {
			return nil, errors.Wrap(err, "unable to apply pipeline option")
		}
	}

	return pipe, nil
}

func (p *Pipeline) addFn(fn func(ctx context.Context)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.goFn = append(p.goFn, fn)
}

// abort cancels the run with the error of step. Steps call it before closing their outputs,
// so downstream steps see a cancelled context instead of a normal end of input.
func (p *Pipeline) abort(step string, err error) {
	p.cancel(errors.Wrap(err, step))
}

// Run starts the pipeline and waits for every step to exit. It returns the error of the first
// failing step. A pipeline can only run once.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.ran {
		p.mu.Unlock()

		return ErrPipelineAlreadyRan
	}
	p.ran = true
	fns := p.goFn
	p.mu.Unlock()

	dCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	p.cancel = cancel

	p.startTime = time.Now()

	for _, fn := range fns {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			fn(dCtx)
		}()
	}

	err := firstError(p.errs.all()...)
	if err != nil {
		cancel(err)
		p.wg.Wait()

		return context.Cause(dCtx)
	}

	p.wg.Wait()

	return p.finishRun()
}

func (p *Pipeline) finishRun() error {
	for _, opt := range p.opts {
		err := opt.Finish()
		if err != nil {
			return errors.Wrap(err, "unable to finish pipeline option")
		}
	}

	return nil
}
