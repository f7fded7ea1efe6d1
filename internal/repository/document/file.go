package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kailas-cloud/ragvoice/internal/domain"
)

const (
	documentFile = "document.json"
	chunksFile   = "chunks.json"
)

// FileRepo keeps each document in its own directory:
// <dir>/<id>/document.json and <dir>/<id>/chunks.json.
// document.json is written last and marks the entry as complete.
type FileRepo struct {
	dir string
}

// NewFileRepo creates a file-backed document repository rooted at dir.
func NewFileRepo(dir string) (*FileRepo, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create embeddings dir %s: %w", dir, err)
	}
	return &FileRepo{dir: dir}, nil
}

// Save stores a document and its chunks, replacing any previous version with the same ID.
func (r *FileRepo) Save(_ context.Context, doc domain.Document, chunks []domain.Chunk) error {
	docDir := filepath.Join(r.dir, doc.ID)
	if err := os.MkdirAll(docDir, 0o750); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}

	// Drop the completion marker first so a crash mid-write leaves an ignorable entry.
	if err := os.Remove(filepath.Join(docDir, documentFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove previous document: %w", err)
	}

	doc.ChunkCount = len(chunks)
	if err := writeJSONAtomic(filepath.Join(docDir, chunksFile), chunksToJSON(chunks)); err != nil {
		return fmt.Errorf("write chunks %s: %w", doc.ID, err)
	}
	if err := writeJSONAtomic(filepath.Join(docDir, documentFile), documentToJSON(doc)); err != nil {
		return fmt.Errorf("write document %s: %w", doc.ID, err)
	}
	return nil
}

// Delete removes a document and its chunks.
func (r *FileRepo) Delete(_ context.Context, id string) error {
	docDir := filepath.Join(r.dir, id)
	if _, err := os.Stat(filepath.Join(docDir, documentFile)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.ErrDocumentNotFound
		}
		return fmt.Errorf("stat document %s: %w", id, err)
	}
	if err := os.RemoveAll(docDir); err != nil {
		return fmt.Errorf("remove document %s: %w", id, err)
	}
	return nil
}

// List returns all complete documents in ingestion order.
func (r *FileRepo) List(_ context.Context) ([]domain.Document, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read embeddings dir: %w", err)
	}

	docs := make([]domain.Document, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		var j documentJSON
		err := readJSON(filepath.Join(r.dir, e.Name(), documentFile), &j)
		if errors.Is(err, fs.ErrNotExist) {
			continue // incomplete write
		}
		if err != nil {
			return nil, fmt.Errorf("read document %s: %w", e.Name(), err)
		}
		docs = append(docs, documentFromJSON(j))
	}

	slices.SortStableFunc(docs, func(a, b domain.Document) int {
		if c := a.IngestedAt.Compare(b.IngestedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return docs, nil
}

// Chunks returns the chunks of a document ordered by ordinal.
func (r *FileRepo) Chunks(_ context.Context, id string) ([]domain.Chunk, error) {
	docDir := filepath.Join(r.dir, id)

	var dj documentJSON
	if err := readJSON(filepath.Join(docDir, documentFile), &dj); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("read document %s: %w", id, err)
	}

	var cj []chunkJSON
	if err := readJSON(filepath.Join(docDir, chunksFile), &cj); err != nil {
		return nil, fmt.Errorf("read chunks %s: %w", id, err)
	}

	chunks := chunksFromJSON(documentFromJSON(dj), cj)
	slices.SortFunc(chunks, func(a, b domain.Chunk) int { return a.Ordinal - b.Ordinal })
	return chunks, nil
}

// Ping reports whether the embeddings directory is reachable.
func (r *FileRepo) Ping(_ context.Context) error {
	info, err := os.Stat(r.dir)
	if err != nil {
		return fmt.Errorf("stat embeddings dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("embeddings path %s is not a directory", r.dir)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err //nolint:wrapcheck // callers inspect fs.ErrNotExist
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
