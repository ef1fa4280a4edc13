package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestSQLiteCacheRoundTrip(t *testing.T) {
	cache, err := OpenSQLiteCache(filepath.Join(t.TempDir(), "assets.db"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()

	if _, err := cache.GetBlob(ctx, "missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("expected ErrBlobNotFound, got %v", err)
	}

	payload := []byte{0x89, 'P', 'N', 'G', 0, 1, 2, 3}
	if err := cache.PutBlob(ctx, "ch1/ILL-1", payload); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := cache.GetBlob(ctx, "ch1/ILL-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("payload mismatch: %v", got)
	}

	// overwrite
	if err := cache.PutBlob(ctx, "ch1/ILL-1", []byte{1}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err = cache.GetBlob(ctx, "ch1/ILL-1")
	if err != nil || len(got) != 1 {
		t.Errorf("overwrite not visible: %v %v", got, err)
	}
}

func TestMemoryCacheHonorsContext(t *testing.T) {
	cache := NewMemoryCache()
	cache.PutBlob("k", []byte{1, 2, 3})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := cache.GetBlob(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
