//go:build cgo

package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"examprephub/internal/logger"
)

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "examprephub.db")
	s, err := NewSQLiteStore(ctx, path, logger.NewNop())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}

	if _, err := s.Get(ctx, "u1:quiz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing: want ErrNotFound, got %v", err)
	}
	if err := s.Put(ctx, "u1:quiz", []byte(`{"stage":"upload"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, "u1:quiz", []byte(`{"stage":"results"}`)); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, err := s.Get(ctx, "u1:quiz")
	if err != nil || string(got) != `{"stage":"results"}` {
		t.Fatalf("last write should win: got=%q err=%v", got, err)
	}

	if err := s.Put(ctx, "u2:quiz", []byte(`{}`)); err != nil {
		t.Fatalf("Put second key: %v", err)
	}
	if err := s.Delete(ctx, "u1:quiz"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "u1:quiz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete: want ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "u1:quiz"); err != nil {
		t.Fatalf("Delete missing key: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening the file keeps the documents and reuses the schema.
	s, err = NewSQLiteStore(ctx, path, logger.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if got, err := s.Get(ctx, "u2:quiz"); err != nil || string(got) != `{}` {
		t.Fatalf("after reopen: got=%q err=%v", got, err)
	}
}
