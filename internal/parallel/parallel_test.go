package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestDoInParallelPreservesInputOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	results, err := DoInParallel(context.Background(), 2, items, func(_ context.Context, n int) (int, error) {
		return n * n, nil
	})
	if err != nil {
		t.Fatalf("DoInParallel: %v", err)
	}
	want := []int{1, 4, 9, 16, 25}
	for i, w := range want {
		if results[i] != w {
			t.Errorf("results[%d] = %d, want %d", i, results[i], w)
		}
	}
}

func TestDoInParallelRespectsLimit(t *testing.T) {
	var current, max int32
	items := make([]int, 20)
	_, err := DoInParallel(context.Background(), 3, items, func(_ context.Context, _ int) (struct{}, error) {
		n := atomic.AddInt32(&current, 1)
		for {
			m := atomic.LoadInt32(&max)
			if n <= m || atomic.CompareAndSwapInt32(&max, m, n) {
				break
			}
		}
		atomic.AddInt32(&current, -1)
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("DoInParallel: %v", err)
	}
	if max > 3 {
		t.Errorf("expected concurrency to stay at or below 3, observed %d", max)
	}
}

func TestDoInParallelDefaultLimitWhenNonPositive(t *testing.T) {
	items := []int{1, 2, 3}
	results, err := DoInParallel(context.Background(), 0, items, func(_ context.Context, n int) (int, error) {
		return n, nil
	})
	if err != nil {
		t.Fatalf("DoInParallel with limit 0: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
}

func TestDoInParallelPropagatesFirstError(t *testing.T) {
	wantErr := errors.New("boom")
	items := []int{1, 2, 3}
	_, err := DoInParallel(context.Background(), 1, items, func(_ context.Context, n int) (int, error) {
		if n == 2 {
			return 0, wantErr
		}
		return n, nil
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected the item's error to propagate, got %v", err)
	}
}

func TestDoInParallelVoid(t *testing.T) {
	var sum int32
	items := []int{1, 2, 3, 4}
	err := DoInParallelVoid(context.Background(), 2, items, func(_ context.Context, n int) error {
		atomic.AddInt32(&sum, int32(n))
		return nil
	})
	if err != nil {
		t.Fatalf("DoInParallelVoid: %v", err)
	}
	if sum != 10 {
		t.Errorf("expected sum 10, got %d", sum)
	}
}

func TestDoInParallelEmptyInput(t *testing.T) {
	results, err := DoInParallel(context.Background(), 4, []int{}, func(_ context.Context, n int) (int, error) {
		return n, nil
	})
	if err != nil {
		t.Fatalf("DoInParallel with empty input: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}
