package stream

import (
	"context"
	"testing"
)

// feed sends 0..total-1 on an unbuffered channel and closes it. When cancel is set, it is
// called before sending cancelAt.
func feed(t *testing.T, total, cancelAt int, cancel context.CancelFunc) chan int {
	t.Helper()

	c := make(chan int)

	go func() {
		defer close(c)

		for i := range total {
			if cancel != nil && i == cancelAt {
				cancel()
			}

			c <- i
		}
	}()

	return c
}
