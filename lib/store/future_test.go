package store

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestFutureSuccess(t *testing.T) {
	f := run(context.Background(), func(context.Context) (int, error) {
		return 42, nil
	}, nil)

	v, err := f.Result()
	if err != nil || v != 42 {
		t.Fatalf("Expected (42, nil), got (%d, %v)", v, err)
	}

	select {
	case <-f.Done():
	default:
		t.Errorf("Expected Done to be closed after Result returned")
	}
}

func TestFutureFailureZeroesResult(t *testing.T) {
	cause := errors.New("boom")
	results := make(chan int, 1)

	f := run(context.Background(), func(context.Context) (int, error) {
		return 7, cause
	}, []Callback[int]{func(err error, v int) { results <- v }})

	v, err := f.Result()
	if !errors.Is(err, cause) {
		t.Fatalf("Expected cause, got %v", err)
	}
	if v != 0 {
		t.Errorf("Expected zero result on failure, got %d", v)
	}
	if got := <-results; got != 0 {
		t.Errorf("Expected callback to receive zero result, got %d", got)
	}
}

func TestFutureCallbacksExactlyOnce(t *testing.T) {
	var calls atomic.Int32
	done := make(chan struct{})

	cbs := []Callback[Void]{
		func(error, Void) { calls.Add(1) },
		nil,
		func(error, Void) {
			calls.Add(1)
			close(done)
		},
	}
	f := run(context.Background(), func(context.Context) (Void, error) {
		return Void{}, nil
	}, cbs)

	_ = f.Err()
	<-done
	time.Sleep(10 * time.Millisecond)
	if n := calls.Load(); n != 2 {
		t.Errorf("Expected 2 callback calls, got %d", n)
	}
}

func TestFutureCallbackPanicIsContained(t *testing.T) {
	done := make(chan struct{})
	f := run(context.Background(), func(context.Context) (Void, error) {
		return Void{}, nil
	}, []Callback[Void]{
		func(error, Void) { panic("callback bug") },
		func(error, Void) { close(done) },
	})

	if err := f.Err(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Expected the second callback to run after the first panicked")
	}
}

func TestFutureAwaitTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	f := run(context.Background(), func(context.Context) (string, error) {
		<-release
		return "late", nil
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	v, err := f.Await(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
	if v != "" {
		t.Errorf("Expected zero value on timeout, got %q", v)
	}
}

func TestFutureAwait(t *testing.T) {
	f := run(context.Background(), func(context.Context) (string, error) {
		return "ok", nil
	}, nil)

	v, err := f.Await(context.Background())
	if err != nil || v != "ok" {
		t.Errorf("Expected (ok, nil), got (%q, %v)", v, err)
	}
}
