package store

import (
	"context"
	"fmt"
	"sync"

	"consentis/pkg/platform/sentinel"
)

// InMemoryStore keeps policy documents in a map.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewInMemory constructs an empty in-memory policy store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{docs: make(map[string]*Document)}
}

func (s *InMemoryStore) Save(_ context.Context, doc *Document) error {
	if doc == nil || doc.PolicyHash == "" {
		return fmt.Errorf("policy document with hash is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.PolicyHash]; ok {
		return sentinel.ErrConflict
	}
	s.docs[doc.PolicyHash] = clone(doc)
	return nil
}

func (s *InMemoryStore) GetByHash(_ context.Context, policyHash string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[policyHash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(doc), nil
}

func (s *InMemoryStore) Delete(_ context.Context, policyHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[policyHash]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.docs, policyHash)
	return nil
}
