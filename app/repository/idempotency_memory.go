package repository

import (
	"context"
	"sync"
)

// MemoryIdempotencyStore is the in-process fallback used when Redis is
// not configured. A concurrent caller with the same key waits for the
// first execution and receives its memoized result; a failed execution
// releases the key for retry.
type MemoryIdempotencyStore struct {
	mu       sync.Mutex
	results  map[string][]byte
	inflight map[string]chan struct{}
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		results:  map[string][]byte{},
		inflight: map[string]chan struct{}{},
	}
}

func (s *MemoryIdempotencyStore) WithKey(ctx context.Context, key string, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	for {
		s.mu.Lock()
		if result, ok := s.results[key]; ok {
			s.mu.Unlock()
			return result, nil
		}

		done, running := s.inflight[key]
		if !running {
			done = make(chan struct{})
			s.inflight[key] = done
			s.mu.Unlock()

			result, err := fn(ctx)
			if err == nil && result == nil {
				result = []byte{}
			}

			s.mu.Lock()
			delete(s.inflight, key)
			if err == nil {
				s.results[key] = result
			}
			close(done)
			s.mu.Unlock()

			return result, err
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-done:
		}
	}
}
