package store

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu   sync.Mutex
	docs map[Ref][]byte
}

// NewMemory returns a process-local store. Documents are held encoded so
// callers never share maps with the store.
func NewMemory() Store {
	return &memoryStore{docs: make(map[Ref][]byte)}
}

func (s *memoryStore) Get(_ context.Context, ref Ref) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.docs[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return decode(data)
}

func (s *memoryStore) Set(_ context.Context, ref Ref, doc Document) error {
	data, err := encode(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[ref] = data
	return nil
}

func (s *memoryStore) Update(ctx context.Context, ref Ref, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	var cur Document
	data, exists := s.docs[ref]
	if exists {
		var err error
		if cur, err = decode(data); err != nil {
			return err
		}
	}
	next, err := fn(cur, exists)
	if err != nil {
		return err
	}
	if data, err = encode(next); err != nil {
		return err
	}
	s.docs[ref] = data
	return nil
}

func (s *memoryStore) Close() error { return nil }
