package worker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunReturnsResult(t *testing.T) {
	want := errors.New("tx failed")
	if err := Run(context.Background(), 0, func(ctx context.Context) error { return want }); err != want {
		t.Errorf("expected %v, got %v", want, err)
	}
	if err := Run(context.Background(), 0, func(ctx context.Context) error { return nil }); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunRecoversPanic(t *testing.T) {
	err := Run(context.Background(), 0, func(ctx context.Context) error {
		panic("boom")
	})

	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PanicError, got %v", err)
	}
	if pe.Value != "boom" || len(pe.Stack) == 0 {
		t.Errorf("unexpected panic error: %+v", pe)
	}
}

func TestRunJoinsBeforeReturning(t *testing.T) {
	finished := false
	Run(context.Background(), 0, func(ctx context.Context) error {
		time.Sleep(20 * time.Millisecond)
		finished = true
		return nil
	})
	if !finished {
		t.Error("Run returned before the work finished")
	}
}

func TestRunTimeoutBoundsContext(t *testing.T) {
	err := Run(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
