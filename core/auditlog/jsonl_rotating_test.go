package auditlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestRotatingJSONLStoreRotation(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/audit.jsonl"
	store, err := NewRotatingJSONLStore(path, 1, 2, 1)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()

	// Each encoded record is over 100 bytes, so 12000 of them pass the
	// 1 MB threshold and force at least one rotation.
	rec := Record{Timestamp: time.Now(), TaskId: "Clean0"}
	for i := 0; i < 12000; i++ {
		if err := store.Append(context.Background(), rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	files, _ := filepath.Glob(dir + "/audit*.jsonl")
	if len(files) < 2 {
		t.Fatalf("expected rotated files")
	}
}

func TestRotatingJSONLStoreQuery(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/audit.jsonl"
	store, err := NewRotatingJSONLStore(path, 1, 2, 1)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()

	rec := Record{Timestamp: time.Now(), TaskId: "Clean0"}
	if err := store.Append(context.Background(), rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	out, err := store.Query(context.Background(), Query{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("expected records")
	}
}
