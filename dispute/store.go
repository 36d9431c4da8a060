package dispute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"
)

// CasesBucket is the KV bucket name for case records.
const CasesBucket = "ACCORD_CASES"

// CaseStore provides durable case storage with revision-based
// compare-and-swap. The revision returned by Get must be passed to Update;
// a write against a stale revision fails with ErrRevisionConflict so the
// caller can re-read and retry. This is the per-case serialization point:
// the engine itself holds no state between calls.
type CaseStore interface {
	// Create stores a new case. Fails with ErrCaseExists on ID collision.
	Create(ctx context.Context, c *Case) error

	// Get retrieves a case and its current revision.
	// Fails with ErrCaseNotFound.
	Get(ctx context.Context, id string) (*Case, uint64, error)

	// Update writes the case if the stored revision still equals rev.
	// Returns the new revision, or ErrRevisionConflict on a lost race.
	Update(ctx context.Context, c *Case, rev uint64) (uint64, error)

	// List returns all cases. Intended for status and admin surfaces,
	// not hot paths.
	List(ctx context.Context) ([]*Case, error)
}

// KVCaseStore stores cases in a NATS JetStream KV bucket.
type KVCaseStore struct {
	bucket jetstream.KeyValue
}

// NewKVCaseStore creates the case store, provisioning the bucket if needed.
func NewKVCaseStore(ctx context.Context, nc *natsclient.Client) (*KVCaseStore, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("get jetstream: %w", err)
	}

	// CreateOrUpdateKeyValue is idempotent and handles race conditions
	bucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      CasesBucket,
		Description: "Dispute case records",
		History:     10,
	})
	if err != nil {
		return nil, fmt.Errorf("create/update kv bucket: %w", err)
	}

	return &KVCaseStore{bucket: bucket}, nil
}

// Create stores a new case record.
func (s *KVCaseStore) Create(ctx context.Context, c *Case) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid case: %w", err)
	}

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal case: %w", err)
	}

	if _, err := s.bucket.Create(ctx, c.ID, data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return fmt.Errorf("%w: %s", ErrCaseExists, c.ID)
		}
		return fmt.Errorf("store case: %w", err)
	}
	return nil
}

// Get retrieves a case and its KV revision.
func (s *KVCaseStore) Get(ctx context.Context, id string) (*Case, uint64, error) {
	entry, err := s.bucket.Get(ctx, id)
	if err != nil {
		if isKeyNotFound(err) {
			return nil, 0, fmt.Errorf("%w: %s", ErrCaseNotFound, id)
		}
		return nil, 0, fmt.Errorf("get case: %w", err)
	}

	var c Case
	if err := json.Unmarshal(entry.Value(), &c); err != nil {
		return nil, 0, fmt.Errorf("unmarshal case: %w", err)
	}
	return &c, entry.Revision(), nil
}

// Update writes a case if the stored revision still matches rev.
func (s *KVCaseStore) Update(ctx context.Context, c *Case, rev uint64) (uint64, error) {
	c.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(c)
	if err != nil {
		return 0, fmt.Errorf("marshal case: %w", err)
	}

	newRev, err := s.bucket.Update(ctx, c.ID, data, rev)
	if err != nil {
		if isWrongRevision(err) {
			return 0, fmt.Errorf("%w: %s", ErrRevisionConflict, c.ID)
		}
		return 0, fmt.Errorf("update case: %w", err)
	}
	return newRev, nil
}

// List returns all stored cases.
func (s *KVCaseStore) List(ctx context.Context) ([]*Case, error) {
	keys, err := s.bucket.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return []*Case{}, nil
		}
		return nil, fmt.Errorf("list keys: %w", err)
	}

	cases := make([]*Case, 0, len(keys))
	for _, key := range keys {
		entry, err := s.bucket.Get(ctx, key)
		if err != nil {
			continue
		}
		var c Case
		if err := json.Unmarshal(entry.Value(), &c); err != nil {
			continue
		}
		cases = append(cases, &c)
	}
	return cases, nil
}

// isKeyNotFound checks if an error indicates a missing KV key.
func isKeyNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) ||
		(err != nil && strings.Contains(err.Error(), "key not found"))
}

// isWrongRevision checks if an error indicates a CAS revision mismatch.
func isWrongRevision(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "wrong last sequence") ||
		errors.Is(err, jetstream.ErrKeyExists))
}
