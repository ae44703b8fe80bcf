package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func setupTestDB(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestDigest(t *testing.T) {
	// BLAKE2b-256 of the empty input.
	want := "0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8"
	if got := Digest(nil); got != want {
		t.Errorf("Digest(nil) = %s, want %s", got, want)
	}
	if Digest([]byte("a")) == Digest([]byte("b")) {
		t.Error("different inputs should have different digests")
	}
}

func TestNewRecord(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := NewRecord("alice", "a.txt", []byte("hello"), "/tmp/a.txt", at)

	if len(rec.ID) != 36 {
		t.Errorf("expected a UUID id, got %q", rec.ID)
	}
	if rec.Size != 5 {
		t.Errorf("expected size 5, got %d", rec.Size)
	}
	if rec.Digest != Digest([]byte("hello")) {
		t.Error("digest mismatch")
	}
	if !rec.ReceivedAt.Equal(at) {
		t.Errorf("expected received at %v, got %v", at, rec.ReceivedAt)
	}
}

func TestStore_AddAndGet(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	rec := NewRecord("alice", "a.txt", []byte("hello"), "/tmp/a.txt", time.Now().UTC())
	if err := store.Add(ctx, rec); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	got, err := store.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.FileName != "a.txt" {
		t.Errorf("expected name 'a.txt', got %q", got.FileName)
	}
	if got.SenderName != "alice" {
		t.Errorf("expected sender 'alice', got %q", got.SenderName)
	}
	if got.Digest != rec.Digest {
		t.Errorf("expected digest %s, got %s", rec.Digest, got.Digest)
	}
}

func TestStore_AddFillsID(t *testing.T) {
	store := setupTestDB(t)

	rec := &Record{FileName: "b.bin", ReceivedAt: time.Now()}
	if err := store.Add(context.Background(), rec); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if rec.ID == "" {
		t.Error("expected an id to be assigned")
	}
}

func TestStore_AddDuplicateID(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	rec := NewRecord("alice", "a.txt", nil, "", time.Now())
	if err := store.Add(ctx, rec); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	dup := *rec
	if err := store.Add(ctx, &dup); err == nil {
		t.Error("expected duplicate id to be rejected")
	}
}

func TestStore_GetMissing(t *testing.T) {
	store := setupTestDB(t)

	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, name := range []string{"first", "second", "third"} {
		rec := NewRecord("bob", name, []byte(name), "", base.Add(time.Duration(i)*time.Minute))
		if err := store.Add(ctx, rec); err != nil {
			t.Fatalf("Add %s failed: %v", name, err)
		}
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{"all", 0, []string{"third", "second", "first"}},
		{"limited", 2, []string{"third", "second"}},
		{"negative means all", -1, []string{"third", "second", "first"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := store.List(ctx, tt.limit)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(records) != len(tt.want) {
				t.Fatalf("expected %d records, got %d", len(tt.want), len(records))
			}
			for i, rec := range records {
				if rec.FileName != tt.want[i] {
					t.Errorf("record %d: expected %q, got %q", i, tt.want[i], rec.FileName)
				}
			}
		})
	}
}

func TestStore_Delete(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	rec := NewRecord("alice", "a.txt", nil, "", time.Now())
	if err := store.Add(ctx, rec); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := store.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestStore_Closed(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
	if _, err := store.List(context.Background(), 0); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestStore_CloseWhileAdding(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := NewRecord("alice", fmt.Sprintf("f%d.txt", i), nil, "", time.Now())
			if err := store.Add(context.Background(), rec); err != nil && !errors.Is(err, ErrClosed) {
				t.Errorf("Add %d: unexpected error %v", i, err)
			}
		}(i)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	wg.Wait()

	if err := store.Add(context.Background(), NewRecord("bob", "late.txt", nil, "", time.Now())); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
}
