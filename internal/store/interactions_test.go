// internal/store/interactions_test.go
package store

import (
	"context"
	"strings"
	"testing"

	"github.com/dgraph-io/badger/v4"

	"github.com/user/preflight/internal/crypto"
	"github.com/user/preflight/internal/types"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestStore(t *testing.T) *Interactions {
	t.Helper()
	db, err := Open(InMemoryOptions())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	cipher, err := crypto.New(context.Background(), testKey, NewKV(db))
	if err != nil {
		t.Fatal(err)
	}
	store, err := NewInteractions(db, cipher)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveListRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	recs := []*types.InteractionData{
		{ComponentID: "c1", ActionType: "go-c1", Timestamp: 1},
		{ComponentID: "c2", ActionType: "go-c2", Timestamp: 2},
		{ComponentID: "c1", ActionType: "go-c1", Timestamp: 3},
	}
	for _, rec := range recs {
		if err := store.Save(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(recs) {
		t.Fatalf("expected %d records, got %d", len(recs), len(got))
	}
	for i, rec := range recs {
		if *got[i] != *rec {
			t.Errorf("record %d mismatch: got %+v, want %+v", i, got[i], rec)
		}
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}
}

func TestRowsAreEncrypted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, &types.InteractionData{ComponentID: "c1", ActionType: "go-c1", Timestamp: 1}); err != nil {
		t.Fatal(err)
	}

	// Scan raw rows: the plaintext action must not appear at rest.
	err := store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(interactionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				if strings.Contains(string(val), "go-c1") {
					t.Error("plaintext action found in stored row")
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestLookupByComponent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, &types.InteractionData{ComponentID: "c1", ActionType: "go-c1", Timestamp: 1}); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, &types.InteractionData{ComponentID: "c2", ActionType: "go-c2", Timestamp: 2}); err != nil {
		t.Fatal(err)
	}

	rec, err := store.LookupByComponent(ctx, "c2")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.ActionType != "go-c2" {
		t.Errorf("expected go-c2 interaction, got %+v", rec)
	}

	missing, err := store.LookupByComponent(ctx, "nope")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown component, got %+v", missing)
	}
}

func TestClear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, &types.InteractionData{ComponentID: "c1", ActionType: "go-c1", Timestamp: 1}); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatal(err)
	}

	got, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty store after clear, got %d records", len(got))
	}
	if rec, _ := store.LookupByComponent(ctx, "c1"); rec != nil {
		t.Errorf("expected empty index after clear, got %+v", rec)
	}
}

func TestSubscribersRunInOrderAfterCommit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var order []string
	store.Subscribe(func(rec *types.InteractionData) {
		// The row must already be committed when listeners run.
		count, err := store.Count(ctx)
		if err != nil {
			t.Error(err)
		}
		if count == 0 {
			t.Error("listener ran before commit")
		}
		order = append(order, "first:"+string(rec.ActionType))
	})
	store.Subscribe(func(rec *types.InteractionData) {
		order = append(order, "second:"+string(rec.ActionType))
	})

	if err := store.Save(ctx, &types.InteractionData{ComponentID: "c1", ActionType: "go-c1", Timestamp: 1}); err != nil {
		t.Fatal(err)
	}

	if len(order) != 2 || order[0] != "first:go-c1" || order[1] != "second:go-c1" {
		t.Errorf("unexpected notification order: %v", order)
	}
}
