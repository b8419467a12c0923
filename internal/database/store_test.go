package database

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// storesUnderTest builds each backend that can run without external services.
func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()

	sqlStore, err := NewSQLStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() { sqlStore.Close(context.Background()) })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlStore,
	}
}

func TestStoreGetMissing(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "chats:nobody")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStorePutGetRoundtrip(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			v1, err := store.Put(ctx, "chats:u1", []byte(`["a"]`), 0)
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			if v1 != 1 {
				t.Errorf("Expected version 1 after create, got %d", v1)
			}

			rec, err := store.Get(ctx, "chats:u1")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if string(rec.Data) != `["a"]` {
				t.Errorf("Unexpected data: %s", rec.Data)
			}

			v2, err := store.Put(ctx, "chats:u1", []byte(`["a","b"]`), rec.Version)
			if err != nil {
				t.Fatalf("Update failed: %v", err)
			}
			if v2 != v1+1 {
				t.Errorf("Expected version %d, got %d", v1+1, v2)
			}
		})
	}
}

func TestStoreVersionConflicts(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "messages:c1"

			if _, err := store.Put(ctx, key, []byte("{}"), 0); err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			// Creating an existing key must conflict.
			if _, err := store.Put(ctx, key, []byte("{}"), 0); !errors.Is(err, ErrVersionConflict) {
				t.Errorf("Expected ErrVersionConflict on duplicate create, got %v", err)
			}

			// A stale version must conflict.
			if _, err := store.Put(ctx, key, []byte("{}"), 99); !errors.Is(err, ErrVersionConflict) {
				t.Errorf("Expected ErrVersionConflict on stale version, got %v", err)
			}

			// Updating a missing key must conflict, not create.
			if _, err := store.Put(ctx, "messages:ghost", []byte("{}"), 1); !errors.Is(err, ErrVersionConflict) {
				t.Errorf("Expected ErrVersionConflict on missing key update, got %v", err)
			}
		})
	}
}

func TestStoreDeleteIdempotent(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "messages:c2"

			if _, err := store.Put(ctx, key, []byte("{}"), 0); err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			if err := store.Delete(ctx, key); err != nil {
				t.Fatalf("First delete failed: %v", err)
			}
			if err := store.Delete(ctx, key); err != nil {
				t.Errorf("Second delete should succeed, got %v", err)
			}

			if _, err := store.Get(ctx, key); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound after delete, got %v", err)
			}

			// Deleted keys can be recreated from version 0.
			if _, err := store.Put(ctx, key, []byte("{}"), 0); err != nil {
				t.Errorf("Recreate after delete failed: %v", err)
			}
		})
	}
}

// Two writers racing on the same record: exactly one CAS write wins per
// version, so no append is silently discarded.
func TestStoreConcurrentCAS(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "messages:c3"
			if _, err := store.Put(ctx, key, []byte("0"), 0); err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			const writers = 8
			var wg sync.WaitGroup
			conflicts := make([]bool, writers)

			rec, err := store.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}

			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					// Everyone writes with the same version: only one wins.
					_, err := store.Put(ctx, key, []byte("x"), rec.Version)
					conflicts[i] = errors.Is(err, ErrVersionConflict)
				}(i)
			}
			wg.Wait()

			winners := 0
			for _, conflicted := range conflicts {
				if !conflicted {
					winners++
				}
			}
			if winners != 1 {
				t.Errorf("Expected exactly 1 CAS winner, got %d", winners)
			}

			final, err := store.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if final.Version != rec.Version+1 {
				t.Errorf("Expected version %d, got %d", rec.Version+1, final.Version)
			}
		})
	}
}
