package push

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. State does not survive restarts, so it
// is only suitable for development runs and tests; production deployments use
// the Redis-backed store.
type MemoryStore struct {
	mu    sync.Mutex
	seqs  map[string]uint64
	rates map[string]RateRecord
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seqs:  make(map[string]uint64),
		rates: make(map[string]RateRecord),
	}
}

func (s *MemoryStore) NextSeq(_ context.Context, entity string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqs[entity]++
	return s.seqs[entity], nil
}

func (s *MemoryStore) Seqs(_ context.Context) (map[string]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]uint64, len(s.seqs))
	for entity, seq := range s.seqs {
		out[entity] = seq
	}
	return out, nil
}

func (s *MemoryStore) GetRateRecord(_ context.Context, key string) (*RateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rates[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) PutRateRecord(_ context.Context, rec RateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[rec.Key] = rec
	return nil
}

func (s *MemoryStore) DeleteExpiredRateRecords(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for key, rec := range s.rates {
		if now.After(rec.WindowResetAt) {
			delete(s.rates, key)
			deleted++
		}
	}
	return deleted, nil
}
