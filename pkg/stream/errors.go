package stream

import (
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrPipelineMustBeSet  = errors.New("pipeline must be set")
	ErrInputMustBeSet     = errors.New("input must be set")
	ErrSplitterTotal      = errors.New("total must be greater than 0")
	ErrMergerInputs       = errors.New("merger needs at least one input")
	ErrPipelineAlreadyRan = errors.New("pipeline already ran")
)

// stepError is the error channel of a step. Every error read from it is wrapped with the step name.
type stepError struct {
	step string
	c    <-chan error
}

// stepErrors collects the error channels of the steps added to a pipeline.
type stepErrors struct {
	mu    sync.Mutex
	steps []stepError
}

func (se *stepErrors) watch(step string, c <-chan error) {
	se.mu.Lock()
	defer se.mu.Unlock()

	se.steps = append(se.steps, stepError{step: step, c: c})
}

func (se *stepErrors) all() []stepError {
	se.mu.Lock()
	defer se.mu.Unlock()

	return append([]stepError(nil), se.steps...)
}

// fanIn forwards the errors of every step to one channel, closed once all step channels are.
func fanIn(steps ...stepError) <-chan error {
	out := make(chan error, len(steps))

	var wg sync.WaitGroup
	for _, s := range steps {
		if s.c == nil {
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			for err := range s.c {
				out <- errors.Wrap(err, s.step)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

// firstError blocks until every step is done or one fails. The remaining errors are drained
// in the background.
func firstError(steps ...stepError) error {
	errc := fanIn(steps...)
	for err := range errc {
		if err == nil {
			continue
		}

		go func() {
			for range errc { //nolint:revive
			}
		}()

		return err
	}

	return nil
}
