package document

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kailas-cloud/ragvoice/internal/domain"
)

func newTestFileRepo(t *testing.T) (*FileRepo, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "embeddings")
	repo, err := NewFileRepo(dir)
	if err != nil {
		t.Fatalf("new file repo: %v", err)
	}
	return repo, dir
}

func TestFileRepo_SaveAndLoad(t *testing.T) {
	repo, _ := newTestFileRepo(t)
	ctx := context.Background()

	if err := repo.Save(ctx, testDocument("a", time.Now()), testChunks("a", 3)); err != nil {
		t.Fatalf("save: %v", err)
	}

	docs, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "a" || docs[0].ChunkCount != 3 {
		t.Fatalf("unexpected docs: %+v", docs)
	}

	chunks, err := repo.Chunks(ctx, "a")
	if err != nil {
		t.Fatalf("chunks: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[1].Text != "chunk 1 of a" || chunks[1].Source != "a.pdf" || chunks[1].DocumentID != "a" {
		t.Errorf("unexpected chunk: %+v", chunks[1])
	}
	if chunks[2].Embedding[0] != 2 {
		t.Errorf("vector not preserved: %v", chunks[2].Embedding)
	}
}

func TestFileRepo_ListOrdersByIngestion(t *testing.T) {
	repo, _ := newTestFileRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_ = repo.Save(ctx, testDocument("z", base), testChunks("z", 1))
	_ = repo.Save(ctx, testDocument("m", base.Add(time.Minute)), testChunks("m", 1))
	_ = repo.Save(ctx, testDocument("a", base.Add(2*time.Minute)), testChunks("a", 1))

	docs, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 3 || docs[0].ID != "z" || docs[1].ID != "m" || docs[2].ID != "a" {
		t.Errorf("expected [z m a], got %+v", docs)
	}
}

func TestFileRepo_IgnoresIncompleteEntries(t *testing.T) {
	repo, dir := newTestFileRepo(t)
	ctx := context.Background()

	if err := os.MkdirAll(filepath.Join(dir, "partial"), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "partial", chunksFile), []byte("[]"), 0o600); err != nil {
		t.Fatal(err)
	}

	docs, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected incomplete entry to be skipped, got %+v", docs)
	}
}

func TestFileRepo_Replace(t *testing.T) {
	repo, _ := newTestFileRepo(t)
	ctx := context.Background()

	_ = repo.Save(ctx, testDocument("a", time.Now()), testChunks("a", 5))
	doc := testDocument("a", time.Now())
	doc.Hash = "new-hash"
	if err := repo.Save(ctx, doc, testChunks("a", 2)); err != nil {
		t.Fatalf("resave: %v", err)
	}

	docs, _ := repo.List(ctx)
	if len(docs) != 1 || docs[0].Hash != "new-hash" || docs[0].ChunkCount != 2 {
		t.Errorf("unexpected docs after replace: %+v", docs)
	}
}

func TestFileRepo_Delete(t *testing.T) {
	repo, dir := newTestFileRepo(t)
	ctx := context.Background()

	_ = repo.Save(ctx, testDocument("a", time.Now()), testChunks("a", 1))
	if err := repo.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected document dir removed, got %v", err)
	}
	if err := repo.Delete(ctx, "a"); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
	if _, err := repo.Chunks(ctx, "a"); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestFileRepo_Ping(t *testing.T) {
	repo, dir := newTestFileRepo(t)
	if err := repo.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	if err := repo.Ping(context.Background()); err == nil {
		t.Fatal("expected error after directory removal")
	}
}
