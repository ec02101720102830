package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStorePutFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "http://localhost:8080/static/")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	src := filepath.Join(t.TempDir(), "final.mp4")
	if err := os.WriteFile(src, []byte("video-bytes"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	url, err := store.PutFile(context.Background(), "jobs/j1/final.mp4", src, "video/mp4")
	if err != nil {
		t.Fatalf("PutFile: %v", err)
	}
	if url != "http://localhost:8080/static/jobs/j1/final.mp4" {
		t.Fatalf("url = %q", url)
	}

	data, err := os.ReadFile(filepath.Join(dir, "jobs", "j1", "final.mp4"))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(data) != "video-bytes" {
		t.Fatalf("stored content = %q", data)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://localhost/static")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := store.PutFile(context.Background(), "../escape.mp4", "whatever", "video/mp4"); err == nil {
		t.Fatal("expected traversal key to be rejected")
	}
}
