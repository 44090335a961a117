package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunKeepsInputOrderWithSerialConcurrency(t *testing.T) {
	items := []string{"a", "b", "c", "d"}
	var order []string
	var mu sync.Mutex

	op := func(_ context.Context, item string) error {
		mu.Lock()
		order = append(order, item)
		mu.Unlock()
		return nil
	}

	results := Run(context.Background(), items, op, Options[string]{Concurrency: 1})

	if len(results) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(results))
	}
	for i, r := range results {
		if r.Item != items[i] {
			t.Errorf("result %d: got %q, expected %q", i, r.Item, items[i])
		}
		if r.Err != nil {
			t.Errorf("result %d: unexpected error %v", i, r.Err)
		}
	}
	for i, got := range order {
		if got != items[i] {
			t.Errorf("execution order %d: got %q, expected %q", i, got, items[i])
		}
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	op := func(_ context.Context, n int) error {
		if n == 3 {
			return errors.New("boom")
		}
		return nil
	}

	results := Run(context.Background(), items, op, Options[int]{Concurrency: 2})

	for i, r := range results {
		if items[i] == 3 {
			if r.Err == nil {
				t.Errorf("item 3 should have failed")
			}
			continue
		}
		if r.Err != nil {
			t.Errorf("item %d failed unexpectedly: %v", items[i], r.Err)
		}
	}
}

func TestRunRetriesUpToLimit(t *testing.T) {
	var attempts int32
	op := func(_ context.Context, _ string) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("alltid feil")
	}

	results := Run(context.Background(), []string{"x"}, op, Options[string]{
		Concurrency: 1,
		MaxRetries:  2,
		Delay:       ConstantDelay(time.Millisecond),
	})

	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", got)
	}
	if results[0].Err == nil {
		t.Errorf("expected final error")
	}
	if results[0].Attempts != 3 {
		t.Errorf("expected Attempts=3, got %d", results[0].Attempts)
	}
}

func TestRunStopsOnNonRetryableError(t *testing.T) {
	permanent := errors.New("permanent")
	var attempts int32
	op := func(_ context.Context, _ string) error {
		atomic.AddInt32(&attempts, 1)
		return permanent
	}

	results := Run(context.Background(), []string{"x"}, op, Options[string]{
		Concurrency: 1,
		MaxRetries:  5,
		Delay:       ConstantDelay(time.Millisecond),
		Retryable:   func(err error) bool { return !errors.Is(err, permanent) },
	})

	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("expected 1 attempt for non-retryable error, got %d", got)
	}
	if !errors.Is(results[0].Err, permanent) {
		t.Errorf("expected permanent error, got %v", results[0].Err)
	}
}

func TestRunProgressIsSerializedAndComplete(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	op := func(_ context.Context, _ int) error { return nil }

	var calls []int
	results := Run(context.Background(), items, op, Options[int]{
		Concurrency: 4,
		OnProgress: func(completed, total int, _ Result[int]) {
			// OnProgress kalles fra én goroutine, så ingen lås trengs.
			calls = append(calls, completed)
			if total != len(items) {
				t.Errorf("expected total=%d, got %d", len(items), total)
			}
		},
	})

	if len(results) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(results))
	}
	if len(calls) != len(items) {
		t.Fatalf("expected %d progress calls, got %d", len(items), len(calls))
	}
	for i, c := range calls {
		if c != i+1 {
			t.Errorf("progress call %d: completed=%d, expected %d", i, c, i+1)
		}
	}
}

func TestRunOnRetryReceivesAttemptNumber(t *testing.T) {
	fail := 2
	op := func(_ context.Context, _ string) error {
		if fail > 0 {
			fail--
			return errors.New("midlertidig")
		}
		return nil
	}

	var retries []int
	results := Run(context.Background(), []string{"x"}, op, Options[string]{
		Concurrency: 1,
		MaxRetries:  3,
		Delay:       ConstantDelay(time.Millisecond),
		OnRetry: func(_ string, _ error, attempt int) {
			retries = append(retries, attempt)
		},
	})

	if results[0].Err != nil {
		t.Fatalf("expected success after retries, got %v", results[0].Err)
	}
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Errorf("expected retry attempts [1 2], got %v", retries)
	}
}

func TestRunHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	op := func(_ context.Context, _ int) error {
		return errors.New("skal retries, men ctx er kansellert")
	}

	results := Run(ctx, []int{1}, op, Options[int]{
		Concurrency: 1,
		MaxRetries:  10,
		Delay:       ConstantDelay(time.Hour),
	})

	// Kansellert context skal avslutte etter første forsøk i stedet
	// for å vente en time på retry.
	if len(results) == 1 && results[0].Attempts > 1 {
		t.Errorf("expected at most 1 attempt with cancelled context, got %d", results[0].Attempts)
	}
}

func TestExponentialDelayDoubles(t *testing.T) {
	delay := ExponentialDelay(100*time.Millisecond, 10*time.Second)

	if d := delay(1); d != 100*time.Millisecond {
		t.Errorf("attempt 1: got %v, expected 100ms", d)
	}
	if d := delay(2); d != 200*time.Millisecond {
		t.Errorf("attempt 2: got %v, expected 200ms", d)
	}
	if d := delay(3); d != 400*time.Millisecond {
		t.Errorf("attempt 3: got %v, expected 400ms", d)
	}
}

func TestConstantDelayIsConstant(t *testing.T) {
	delay := ConstantDelay(2 * time.Second)
	for attempt := 1; attempt <= 5; attempt++ {
		if d := delay(attempt); d != 2*time.Second {
			t.Errorf("attempt %d: got %v, expected 2s", attempt, d)
		}
	}
}
