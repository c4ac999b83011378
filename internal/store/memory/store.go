// Package memory is the default, process-lifetime document store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"claimsqa/internal/domain"
)

// Store keeps records in a map guarded by a RWMutex. Records are copied on
// the way in and out so callers never share content bytes with the store.
type Store struct {
	mu      sync.RWMutex
	records map[string]*domain.ExtractionRecord
}

func New() *Store {
	return &Store{records: make(map[string]*domain.ExtractionRecord)}
}

func (s *Store) Put(ctx context.Context, rec *domain.ExtractionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := rec.Clone()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.records[cp.DocumentID] = cp
	s.mu.Unlock()
	return nil
}

func (s *Store) Get(ctx context.Context, documentID string) (*domain.ExtractionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	rec, ok := s.records[documentID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return rec.Clone(), nil
}

func (s *Store) List(ctx context.Context) ([]domain.ExtractionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]domain.ExtractionRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}
