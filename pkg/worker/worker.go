// Package worker runs one unit of external work at a time on its own
// goroutine and joins it before returning.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// PanicError is returned when the work panicked
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker panicked: %v", e.Value)
}

// Run executes fn on a fresh goroutine and waits for it. A panic inside fn
// is recovered and returned as *PanicError. A positive timeout bounds the
// context handed to fn; zero leaves it unbounded.
func Run(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		done <- fn(ctx)
	}()

	return <-done
}
