package negotiation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"
)

// RoundsBucket is the KV bucket name for round records.
const RoundsBucket = "ACCORD_ROUNDS"

// RoundStore provides durable round storage with revision-based
// compare-and-swap, mirroring the case store contract. The revision from
// Get must accompany Update; a stale write fails with ErrRevisionConflict.
type RoundStore interface {
	// Create stores a new round. Fails with ErrRoundExists on collision.
	Create(ctx context.Context, r *Round) error

	// Get retrieves a round and its current revision.
	// Fails with ErrRoundNotFound.
	Get(ctx context.Context, id string) (*Round, uint64, error)

	// Update writes the round if the stored revision still equals rev.
	// Returns the new revision, or ErrRevisionConflict on a lost race.
	Update(ctx context.Context, r *Round, rev uint64) (uint64, error)

	// ListByCase returns all rounds for a case ordered by round number.
	ListByCase(ctx context.Context, caseID string) ([]*Round, error)

	// ListOpen returns all rounds that have not been closed yet.
	ListOpen(ctx context.Context) ([]*Round, error)

	// Delete removes a round record. Deleting a missing round is not an
	// error.
	Delete(ctx context.Context, id string) error
}

// KVRoundStore stores rounds in a NATS JetStream KV bucket keyed by
// round ID.
type KVRoundStore struct {
	bucket jetstream.KeyValue
}

// NewKVRoundStore creates the round store, provisioning the bucket if needed.
func NewKVRoundStore(ctx context.Context, nc *natsclient.Client) (*KVRoundStore, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("get jetstream: %w", err)
	}

	bucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      RoundsBucket,
		Description: "Negotiation round records",
		History:     10,
	})
	if err != nil {
		return nil, fmt.Errorf("create/update kv bucket: %w", err)
	}

	return &KVRoundStore{bucket: bucket}, nil
}

// Create stores a new round record.
func (s *KVRoundStore) Create(ctx context.Context, r *Round) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal round: %w", err)
	}

	if _, err := s.bucket.Create(ctx, r.ID, data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return fmt.Errorf("%w: %s", ErrRoundExists, r.ID)
		}
		return fmt.Errorf("store round: %w", err)
	}
	return nil
}

// Get retrieves a round and its KV revision.
func (s *KVRoundStore) Get(ctx context.Context, id string) (*Round, uint64, error) {
	entry, err := s.bucket.Get(ctx, id)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || strings.Contains(err.Error(), "key not found") {
			return nil, 0, fmt.Errorf("%w: %s", ErrRoundNotFound, id)
		}
		return nil, 0, fmt.Errorf("get round: %w", err)
	}

	var r Round
	if err := json.Unmarshal(entry.Value(), &r); err != nil {
		return nil, 0, fmt.Errorf("unmarshal round: %w", err)
	}
	return &r, entry.Revision(), nil
}

// Update writes a round if the stored revision still matches rev.
func (s *KVRoundStore) Update(ctx context.Context, r *Round, rev uint64) (uint64, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return 0, fmt.Errorf("marshal round: %w", err)
	}

	newRev, err := s.bucket.Update(ctx, r.ID, data, rev)
	if err != nil {
		if strings.Contains(err.Error(), "wrong last sequence") || errors.Is(err, jetstream.ErrKeyExists) {
			return 0, fmt.Errorf("%w: %s", ErrRevisionConflict, r.ID)
		}
		return 0, fmt.Errorf("update round: %w", err)
	}
	return newRev, nil
}

// Delete removes a round record from the bucket.
func (s *KVRoundStore) Delete(ctx context.Context, id string) error {
	if err := s.bucket.Delete(ctx, id); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || strings.Contains(err.Error(), "key not found") {
			return nil
		}
		return fmt.Errorf("delete round: %w", err)
	}
	return nil
}

// ListByCase scans the bucket for a case's rounds. Round counts per case
// are small (bounded by the compromise budget) so a full scan is fine here.
func (s *KVRoundStore) ListByCase(ctx context.Context, caseID string) ([]*Round, error) {
	keys, err := s.bucket.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return []*Round{}, nil
		}
		return nil, fmt.Errorf("list keys: %w", err)
	}

	rounds := make([]*Round, 0, 4)
	for _, key := range keys {
		entry, err := s.bucket.Get(ctx, key)
		if err != nil {
			continue
		}
		var r Round
		if err := json.Unmarshal(entry.Value(), &r); err != nil {
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

// ListOpen scans the bucket for rounds still accepting selections.
func (s *KVRoundStore) ListOpen(ctx context.Context) ([]*Round, error) {
	keys, err := s.bucket.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return []*Round{}, nil
		}
		return nil, fmt.Errorf("list keys: %w", err)
	}

	rounds := make([]*Round, 0, len(keys))
	for _, key := range keys {
		entry, err := s.bucket.Get(ctx, key)
		if err != nil {
			continue
		}
		var r Round
		if err := json.Unmarshal(entry.Value(), &r); err != nil {
			continue
		}
		if !r.Closed() {
			rounds = append(rounds, &r)
		}
	}
	return rounds, nil
}
