package stores

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oarkflow/xacml"
)

// MemoryPolicyStore is an in-memory PolicyDocumentStore for tests and
// static deployments.
type MemoryPolicyStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]*xacml.PolicyDocument // id -> version -> doc
}

func NewMemoryPolicyStore() *MemoryPolicyStore {
	return &MemoryPolicyStore{docs: make(map[string]map[string]*xacml.PolicyDocument)}
}

func (s *MemoryPolicyStore) Put(_ context.Context, doc *xacml.PolicyDocument) error {
	if doc.ID == "" || doc.Version == "" {
		return fmt.Errorf("policy document requires id and version")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	versions, ok := s.docs[doc.ID]
	if !ok {
		versions = make(map[string]*xacml.PolicyDocument)
		s.docs[doc.ID] = versions
	}
	stored := *doc
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now()
	}
	versions[doc.Version] = &stored
	return nil
}

func (s *MemoryPolicyStore) Get(_ context.Context, id, version string) (*xacml.PolicyDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id][version]
	if !ok {
		return nil, fmt.Errorf("policy document not found: %s version %s", id, version)
	}
	return doc, nil
}

func (s *MemoryPolicyStore) Latest(_ context.Context, id string) (*xacml.PolicyDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *xacml.PolicyDocument
	for _, doc := range s.docs[id] {
		if best == nil || doc.Version > best.Version {
			best = doc
		}
	}
	if best == nil {
		return nil, fmt.Errorf("policy document not found: %s", id)
	}
	return best, nil
}

func (s *MemoryPolicyStore) List(_ context.Context) ([]*xacml.PolicyDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*xacml.PolicyDocument, 0)
	for _, versions := range s.docs {
		for _, doc := range versions {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *MemoryPolicyStore) Delete(_ context.Context, id, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs[id], version)
	return nil
}

func (s *MemoryPolicyStore) Close() error { return nil }
