//go:build integration

package dispute

import (
	"context"
	"errors"
	"testing"

	"github.com/c360studio/semstreams/natsclient"
)

func TestKVCaseStore_CreateAndGet(t *testing.T) {
	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())
	ctx := context.Background()

	store, err := NewKVCaseStore(ctx, tc.Client)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	c := NewCase("Unpaid invoice", []Party{
		NewParty(RoleClaimant, "Asha"),
		NewParty(RoleRespondent, "Vikram"),
	})

	if err := store.Create(ctx, c); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Duplicate create fails
	if err := store.Create(ctx, c); !errors.Is(err, ErrCaseExists) {
		t.Errorf("duplicate Create() error = %v, want ErrCaseExists", err)
	}

	got, rev, err := store.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != c.Title {
		t.Errorf("Title = %q, want %q", got.Title, c.Title)
	}
	if got.Stage != StageDraft {
		t.Errorf("Stage = %s, want %s", got.Stage, StageDraft)
	}
	if rev == 0 {
		t.Error("revision should be non-zero")
	}
}

func TestKVCaseStore_UpdateCAS(t *testing.T) {
	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())
	ctx := context.Background()

	store, err := NewKVCaseStore(ctx, tc.Client)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	c := NewCase("Unpaid invoice", []Party{
		NewParty(RoleClaimant, "Asha"),
		NewParty(RoleRespondent, "Vikram"),
	})
	if err := store.Create(ctx, c); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	_, rev, err := store.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	c.Stage = StageAwaitingRespondent
	newRev, err := store.Update(ctx, c, rev)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if newRev <= rev {
		t.Errorf("new revision %d should exceed %d", newRev, rev)
	}

	// A write with the stale revision must lose
	c.Stage = StageStatementCollection
	if _, err := store.Update(ctx, c, rev); !errors.Is(err, ErrRevisionConflict) {
		t.Errorf("stale Update() error = %v, want ErrRevisionConflict", err)
	}
}

func TestKVCaseStore_GetMissing(t *testing.T) {
	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())
	ctx := context.Background()

	store, err := NewKVCaseStore(ctx, tc.Client)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if _, _, err := store.Get(ctx, "c-missing"); !errors.Is(err, ErrCaseNotFound) {
		t.Errorf("Get() error = %v, want ErrCaseNotFound", err)
	}
}

func TestKVCaseStore_List(t *testing.T) {
	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())
	ctx := context.Background()

	store, err := NewKVCaseStore(ctx, tc.Client)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	for i := 0; i < 3; i++ {
		c := NewCase("case", []Party{
			NewParty(RoleClaimant, "A"),
			NewParty(RoleRespondent, "B"),
		})
		if err := store.Create(ctx, c); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	cases, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(cases) != 3 {
		t.Errorf("List() = %d cases, want 3", len(cases))
	}
}
