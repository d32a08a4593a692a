package store

import (
	"context"
	"sync"
	"time"

	"attestia/internal/credential/models"
	dErrors "attestia/pkg/domain-errors"
)

// MemoryStore is an in-memory Store for tests and single-node deployments.
// Subject and issuer secondary indexes keep lookups linear in the result
// size rather than the table size.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[string]*Record
	bySubject map[string][]string
	byIssuer  map[string][]string
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]*Record),
		bySubject: make(map[string][]string),
		byIssuer:  make(map[string][]string),
	}
}

func (s *MemoryStore) Save(_ context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "credential record requires an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; !exists {
		s.bySubject[rec.SubjectDID] = append(s.bySubject[rec.SubjectDID], rec.ID)
		s.byIssuer[rec.IssuerDID] = append(s.byIssuer[rec.IssuerDID], rec.ID)
	}
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "credential not found: "+id)
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) ListBySubject(_ context.Context, subjectDID string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.bySubject[subjectDID]), nil
}

func (s *MemoryStore) ListByIssuer(_ context.Context, issuerDID string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byIssuer[issuerDID]), nil
}

func (s *MemoryStore) collect(ids []string) []*Record {
	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.records[id]; ok {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out
}

func (s *MemoryStore) MarkRevoked(_ context.Context, id, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "credential not found: "+id)
	}
	if rec.State == models.StateRevoked {
		return dErrors.New(dErrors.CodeConflict, "credential already revoked: "+id)
	}
	rec.State = models.StateRevoked
	rec.RevocationReason = reason
	rec.RevokedAt = &at
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "credential not found: "+id)
	}
	delete(s.records, id)
	s.bySubject[rec.SubjectDID] = removeID(s.bySubject[rec.SubjectDID], id)
	s.byIssuer[rec.IssuerDID] = removeID(s.byIssuer[rec.IssuerDID], id)
	return nil
}

// Len returns the number of stored credentials.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func removeID(ids []string, id string) []string {
	for i, candidate := range ids {
		if candidate == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
