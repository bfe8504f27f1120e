package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/hash"
)

// Store implements ports.EffectStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[hash.Hash]domain.Resolution
	mu   sync.RWMutex
	now  func() time.Time
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[hash.Hash]domain.Resolution),
		now:  time.Now,
	}
}

// Resolve records value as the effect's result.
func (s *Store) Resolve(ctx context.Context, effect *domain.Effect, value any) error {
	if _, err := domain.ResultOf(value); err != nil {
		return fmt.Errorf("resolve %s: %w", effect.ID, err)
	}
	s.put(domain.Resolution{EffectID: effect.ID, Type: effect.Type, Value: value})
	return nil
}

// Reject records a failure for the effect.
func (s *Store) Reject(ctx context.Context, effect *domain.Effect, message string) error {
	s.put(domain.Resolution{EffectID: effect.ID, Type: effect.Type, Error: message, Failed: true})
	return nil
}

func (s *Store) put(r domain.Resolution) {
	r.UpdatedAt = s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[r.EffectID] = r
}

// Get retrieves a copy of the stored resolution.
func (s *Store) Get(ctx context.Context, id hash.Hash) (*domain.Resolution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrResolutionNotFound)
	}
	return &r, nil
}

// Lookup serves the store as an effect source.
func (s *Store) Lookup(ctx context.Context, id hash.Hash) (domain.Expression, bool, error) {
	s.mu.RLock()
	r, ok := s.data[id]
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	expr, err := r.Expression()
	if err != nil {
		return nil, false, err
	}
	return expr, true, nil
}

// Forget removes resolutions.
func (s *Store) Forget(ctx context.Context, ids ...hash.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.data, id)
	}
	return nil
}

// List returns the stored effect ids.
func (s *Store) List(ctx context.Context) ([]hash.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]hash.Hash, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}
