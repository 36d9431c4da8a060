package dispute

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryCaseStore is an in-memory CaseStore with the same CAS semantics as
// the KV-backed store. Used by unit tests and the race simulations; the
// service itself always runs against the durable store.
type MemoryCaseStore struct {
	mu    sync.Mutex
	cases map[string][]byte
	revs  map[string]uint64
}

// NewMemoryCaseStore creates an empty in-memory case store.
func NewMemoryCaseStore() *MemoryCaseStore {
	return &MemoryCaseStore{
		cases: make(map[string][]byte),
		revs:  make(map[string]uint64),
	}
}

// Create stores a new case record.
func (s *MemoryCaseStore) Create(_ context.Context, c *Case) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid case: %w", err)
	}

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal case: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cases[c.ID]; exists {
		return fmt.Errorf("%w: %s", ErrCaseExists, c.ID)
	}
	s.cases[c.ID] = data
	s.revs[c.ID] = 1
	return nil
}

// Get retrieves a case and its revision.
func (s *MemoryCaseStore) Get(_ context.Context, id string) (*Case, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.cases[id]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrCaseNotFound, id)
	}

	var c Case
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, 0, fmt.Errorf("unmarshal case: %w", err)
	}
	return &c, s.revs[id], nil
}

// Update writes a case if the stored revision still matches rev.
func (s *MemoryCaseStore) Update(_ context.Context, c *Case, rev uint64) (uint64, error) {
	c.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(c)
	if err != nil {
		return 0, fmt.Errorf("marshal case: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cases[c.ID]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrCaseNotFound, c.ID)
	}
	if s.revs[c.ID] != rev {
		return 0, fmt.Errorf("%w: %s", ErrRevisionConflict, c.ID)
	}
	s.cases[c.ID] = data
	s.revs[c.ID]++
	return s.revs[c.ID], nil
}

// List returns all stored cases.
func (s *MemoryCaseStore) List(_ context.Context) ([]*Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cases := make([]*Case, 0, len(s.cases))
	for _, data := range s.cases {
		var c Case
		if err := json.Unmarshal(data, &c); err != nil {
			continue
		}
		cases = append(cases, &c)
	}
	return cases, nil
}
