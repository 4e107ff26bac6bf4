package chatstore

import (
	"context"
	"sync"
)

// InMemoryTranscriptStore keeps the newest maxEntries exchanges.
type InMemoryTranscriptStore struct {
	mu         sync.Mutex
	maxEntries int
	entries    []Exchange
}

var _ TranscriptStore = &InMemoryTranscriptStore{}

func NewInMemoryTranscriptStore(maxEntries int) *InMemoryTranscriptStore {
	if maxEntries <= 0 {
		maxEntries = 5000
	}
	return &InMemoryTranscriptStore{maxEntries: maxEntries}
}

func (s *InMemoryTranscriptStore) Save(_ context.Context, ex Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, ex)
	if over := len(s.entries) - s.maxEntries; over > 0 {
		s.entries = append([]Exchange(nil), s.entries[over:]...)
	}
	return nil
}

func (s *InMemoryTranscriptStore) List(_ context.Context, q ExchangeQuery) ([]Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit := q.Limit
	if limit <= 0 {
		limit = 200
	}
	out := []Exchange{}
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		ex := s.entries[i]
		if q.TopicID != "" && ex.TopicID != q.TopicID {
			continue
		}
		if q.ClientID != "" && ex.ClientID != q.ClientID {
			continue
		}
		out = append(out, ex)
	}
	return out, nil
}

func (s *InMemoryTranscriptStore) Close() error { return nil }
