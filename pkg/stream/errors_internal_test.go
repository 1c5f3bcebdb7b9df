package stream

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errEmbed = errors.New("embed failed")
	errStore = errors.New("store failed")
)

func closedErrors(errs ...error) <-chan error {
	c := make(chan error, len(errs))
	for _, err := range errs {
		c <- err
	}
	close(c)

	return c
}

func TestStepErrorsWatch(t *testing.T) {
	t.Parallel()

	se := &stepErrors{}
	done := make(chan struct{})

	for _, name := range []string{"parse", "embed"} {
		go func() {
			se.watch(name, nil)
			done <- struct{}{}
		}()
	}

	<-done
	<-done

	names := []string{}
	for _, s := range se.all() {
		names = append(names, s.step)
	}
	assert.ElementsMatch(t, []string{"parse", "embed"}, names)
}

func TestFanIn(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		steps []stepError
		want  []string
	}{
		"no channel": {
			steps: []stepError{{step: "parse"}, {step: "embed"}},
			want:  []string{},
		},
		"one nil channel": {
			steps: []stepError{{step: "parse"}, {step: "embed", c: closedErrors(errEmbed, errStore)}},
			want:  []string{"embed: embed failed", "embed: store failed"},
		},
		"two channels": {
			steps: []stepError{{step: "embed", c: closedErrors(errEmbed)}, {step: "store", c: closedErrors(errStore)}},
			want:  []string{"embed: embed failed", "store: store failed"},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := []string{}
			for err := range fanIn(tc.steps...) {
				got = append(got, err.Error())
			}
			assert.ElementsMatch(t, tc.want, got)
		})
	}
}

func TestFanInKeepsCause(t *testing.T) {
	t.Parallel()

	err, ok := <-fanIn(stepError{step: "embed", c: closedErrors(errEmbed)})
	require.True(t, ok)
	require.ErrorIs(t, err, errEmbed)
}

func TestFirstError(t *testing.T) {
	t.Parallel()

	err := firstError(
		stepError{step: "embed", c: closedErrors(errEmbed, errStore)},
		stepError{step: "store", c: closedErrors()},
	)
	require.ErrorIs(t, err, errEmbed)
	assert.Contains(t, err.Error(), "embed")
}

func TestFirstErrorNone(t *testing.T) {
	t.Parallel()

	err := firstError(stepError{step: "parse", c: closedErrors()}, stepError{step: "sink"})
	require.NoError(t, err)
}
