package negotiation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryRoundStore is an in-memory RoundStore with the same CAS semantics
// as the KV store. Used by tests, including concurrency simulations.
type MemoryRoundStore struct {
	mu        sync.Mutex
	data      map[string][]byte
	revisions map[string]uint64
}

// NewMemoryRoundStore creates an empty in-memory round store.
func NewMemoryRoundStore() *MemoryRoundStore {
	return &MemoryRoundStore{
		data:      make(map[string][]byte),
		revisions: make(map[string]uint64),
	}
}

// Create stores a new round record.
func (s *MemoryRoundStore) Create(_ context.Context, r *Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[r.ID]; ok {
		return fmt.Errorf("%w: %s", ErrRoundExists, r.ID)
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal round: %w", err)
	}
	s.data[r.ID] = data
	s.revisions[r.ID] = 1
	return nil
}

// Get retrieves a round and its revision.
func (s *MemoryRoundStore) Get(_ context.Context, id string) (*Round, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.data[id]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrRoundNotFound, id)
	}

	var r Round
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, 0, fmt.Errorf("unmarshal round: %w", err)
	}
	return &r, s.revisions[id], nil
}

// Update writes a round if the stored revision still matches rev.
func (s *MemoryRoundStore) Update(_ context.Context, r *Round, rev uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[r.ID]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrRoundNotFound, r.ID)
	}
	if s.revisions[r.ID] != rev {
		return 0, fmt.Errorf("%w: %s", ErrRevisionConflict, r.ID)
	}

	data, err := json.Marshal(r)
	if err != nil {
		return 0, fmt.Errorf("marshal round: %w", err)
	}
	s.data[r.ID] = data
	s.revisions[r.ID] = rev + 1
	return rev + 1, nil
}

// Delete removes a round record.
func (s *MemoryRoundStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, id)
	delete(s.revisions, id)
	return nil
}

// ListByCase returns a case's rounds ordered by number.
func (s *MemoryRoundStore) ListByCase(_ context.Context, caseID string) ([]*Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rounds := make([]*Round, 0, 4)
	for _, data := range s.data {
		var r Round
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}
		if r.CaseID == caseID {
			rounds = append(rounds, &r)
		}
	}

	sort.Slice(rounds, func(i, j int) bool {
		return rounds[i].Number < rounds[j].Number
	})
	return rounds, nil
}

// ListOpen returns rounds that have not been closed yet.
func (s *MemoryRoundStore) ListOpen(_ context.Context) ([]*Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rounds := make([]*Round, 0, 4)
	for _, data := range s.data {
		var r Round
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}
		if !r.Closed() {
			rounds = append(rounds, &r)
		}
	}
	return rounds, nil
}
