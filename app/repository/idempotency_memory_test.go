package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestMemoryIdempotencyStoreMemoizesFirstResult(t *testing.T) {
	store := NewMemoryIdempotencyStore()
	calls := 0

	first, err := store.WithKey(context.Background(), "key-1", func(context.Context) ([]byte, error) {
		calls++
		return []byte("result-1"), nil
	})
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	second, err := store.WithKey(context.Background(), "key-1", func(context.Context) ([]byte, error) {
		calls++
		return []byte("result-2"), nil
	})
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}

	if calls != 1 {
		t.Fatalf("expected fn to run once, ran %d times", calls)
	}
	if string(first) != "result-1" || string(second) != "result-1" {
		t.Fatalf("expected memoized result-1, got %q and %q", first, second)
	}
}

func TestMemoryIdempotencyStoreFailureReleasesKey(t *testing.T) {
	store := NewMemoryIdempotencyStore()
	transient := errors.New("connection reset by peer")

	_, err := store.WithKey(context.Background(), "key-1", func(context.Context) ([]byte, error) {
		return nil, transient
	})
	if !errors.Is(err, transient) {
		t.Fatalf("expected transient error, got %v", err)
	}

	result, err := store.WithKey(context.Background(), "key-1", func(context.Context) ([]byte, error) {
		return []byte("retried"), nil
	})
	if err != nil {
		t.Fatalf("retry after failure should run fn, got %v", err)
	}
	if string(result) != "retried" {
		t.Fatalf("expected retried result, got %q", result)
	}
}

func TestMemoryIdempotencyStoreConcurrentCallersShareOneExecution(t *testing.T) {
	store := NewMemoryIdempotencyStore()
	var calls int64

	const workers = 8
	results := make([][]byte, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.WithKey(context.Background(), "key-1", func(context.Context) ([]byte, error) {
				atomic.AddInt64(&calls, 1)
				return []byte("shared"), nil
			})
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("expected one execution across concurrent callers, got %d", got)
	}
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if string(results[i]) != "shared" {
			t.Fatalf("caller %d got %q, want shared", i, results[i])
		}
	}
}

func TestMemoryIdempotencyStoreKeysAreIndependent(t *testing.T) {
	store := NewMemoryIdempotencyStore()

	a, err := store.WithKey(context.Background(), "key-a", func(context.Context) ([]byte, error) {
		return []byte("a"), nil
	})
	if err != nil {
		t.Fatalf("key-a failed: %v", err)
	}
	b, err := store.WithKey(context.Background(), "key-b", func(context.Context) ([]byte, error) {
		return []byte("b"), nil
	})
	if err != nil {
		t.Fatalf("key-b failed: %v", err)
	}
	if string(a) != "a" || string(b) != "b" {
		t.Fatalf("keys must not share results, got %q and %q", a, b)
	}
}

func TestMemoryIdempotencyStoreNilResultIsMemoized(t *testing.T) {
	store := NewMemoryIdempotencyStore()
	calls := 0

	fn := func(context.Context) ([]byte, error) {
		calls++
		return nil, nil
	}
	if _, err := store.WithKey(context.Background(), "key-1", fn); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if _, err := store.WithKey(context.Background(), "key-1", fn); err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected nil result to be memoized, fn ran %d times", calls)
	}
}
