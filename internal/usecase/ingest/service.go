package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragvoice/internal/domain"
	"github.com/kailas-cloud/ragvoice/internal/extract"
	"github.com/kailas-cloud/ragvoice/internal/metrics"
	"github.com/kailas-cloud/ragvoice/internal/textsplit"
	"github.com/kailas-cloud/ragvoice/internal/usecase/retrieval"
)

// documentNamespace scopes document IDs.
var documentNamespace = uuid.MustParse("6f1c3a52-8e0b-5d7a-9c41-2b7e0f9d3a10")

// Outcome of ingesting one file.
type Outcome string

const (
	// Indexed means the document was new or changed and is now indexed.
	Indexed Outcome = "indexed"
	// Unchanged means the same content was already indexed.
	Unchanged Outcome = "unchanged"
	// Failed means the file could not be ingested.
	Failed Outcome = "failed"
)

// Result describes an ingested file.
type Result struct {
	Document domain.Document
	Outcome  Outcome
	Skipped  int // chunks dropped because their embedding failed
}

// RescanReport summarizes a directory scan.
type RescanReport struct {
	Indexed   int
	Unchanged int
	Failed    int
}

// Config holds ingestion settings.
type Config struct {
	RawDir       string
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
}

// Service turns source files into indexed, embedded chunks.
type Service struct {
	store    Store
	index    Index
	embedder domain.Embedder
	splitter textsplit.Splitter
	rawDir   string
	batch    int
	logger   *zap.Logger
	now      func() time.Time

	mu sync.Mutex // one ingestion at a time
}

// New creates an ingestion service.
func New(store Store, index Index, embedder domain.Embedder, cfg Config, logger *zap.Logger) *Service {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 32
	}
	return &Service{
		store:    store,
		index:    index,
		embedder: embedder,
		splitter: textsplit.New(cfg.ChunkSize, cfg.ChunkOverlap),
		rawDir:   cfg.RawDir,
		batch:    batch,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Load reads every stored document into the index.
func (s *Service) Load(ctx context.Context) (retrieval.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.store.List(ctx)
	if err != nil {
		return retrieval.Stats{}, fmt.Errorf("list documents: %w", err)
	}

	entries := make([]retrieval.Entry, 0, len(docs))
	for _, d := range docs {
		chunks, err := s.store.Chunks(ctx, d.ID)
		if err != nil {
			if errors.Is(err, domain.ErrDocumentNotFound) {
				s.logger.Warn("Document disappeared during load", zap.String("document_id", d.ID))
				continue
			}
			return retrieval.Stats{}, fmt.Errorf("load chunks of %s: %w", d.ID, err)
		}
		entries = append(entries, retrieval.Entry{Document: d, Chunks: chunks})
	}

	st := s.index.Load(entries)
	s.logger.Info("Index loaded",
		zap.Int("documents", st.Documents),
		zap.Int("chunks", st.Chunks),
	)
	return st, nil
}

// List returns the indexed documents in ingestion order.
func (s *Service) List(_ context.Context) []domain.Document {
	return s.index.Documents()
}

// IngestFile indexes the file at path. Files outside the raw directory are
// copied into it first. Re-ingesting unchanged content is a no-op; changed
// content replaces the previous version of the same source.
func (s *Service) IngestFile(ctx context.Context, path string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.ingestFile(ctx, path)
	metrics.IngestDocumentsTotal.WithLabelValues(string(res.Outcome)).Inc()
	return res, err
}

// IngestUpload stores an uploaded document in the raw directory and indexes it.
func (s *Service) IngestUpload(ctx context.Context, filename string, r io.Reader) (Result, error) {
	name, err := sanitizeName(filename)
	if err != nil {
		return Result{Outcome: Failed}, err
	}
	if !extract.Supported(name) {
		return Result{Outcome: Failed}, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, filepath.Ext(name))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dst := filepath.Join(s.rawDir, name)
	if err := writeAtomic(dst, r); err != nil {
		return Result{Outcome: Failed}, fmt.Errorf("store upload: %w", err)
	}

	res, err := s.ingestFile(ctx, dst)
	metrics.IngestDocumentsTotal.WithLabelValues(string(res.Outcome)).Inc()
	return res, err
}

// Rescan ingests every supported file in the raw directory that is new or changed.
// Per-file failures are logged and counted; only cancellation aborts the scan.
func (s *Service) Rescan(ctx context.Context) (RescanReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rep RescanReport

	entries, err := os.ReadDir(s.rawDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rep, nil
		}
		return rep, fmt.Errorf("read raw dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !extract.Supported(e.Name()) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return rep, fmt.Errorf("rescan: %w", err)
		}

		res, err := s.ingestFile(ctx, filepath.Join(s.rawDir, e.Name()))
		metrics.IngestDocumentsTotal.WithLabelValues(string(res.Outcome)).Inc()
		switch res.Outcome {
		case Indexed:
			rep.Indexed++
		case Unchanged:
			rep.Unchanged++
		default:
			rep.Failed++
			if ctx.Err() != nil {
				return rep, fmt.Errorf("rescan: %w", ctx.Err())
			}
			s.logger.Warn("Failed to ingest document", zap.String("source", e.Name()), zap.Error(err))
		}
	}

	s.logger.Info("Rescan completed",
		zap.Int("indexed", rep.Indexed),
		zap.Int("unchanged", rep.Unchanged),
		zap.Int("failed", rep.Failed),
	)
	return rep, nil
}

// ingestFile does the work of IngestFile. Caller holds mu.
func (s *Service) ingestFile(ctx context.Context, path string) (Result, error) {
	failed := Result{Outcome: Failed}

	name, err := sanitizeName(filepath.Base(path))
	if err != nil {
		return failed, err
	}
	if !extract.Supported(name) {
		return failed, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, filepath.Ext(name))
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return failed, fmt.Errorf("read %s: %w", name, err)
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	rawPath := filepath.Join(s.rawDir, name)
	if !samePath(path, rawPath) {
		if err := writeAtomic(rawPath, bytes.NewReader(data)); err != nil {
			return failed, fmt.Errorf("copy %s: %w", name, err)
		}
	}

	previous, hasPrevious := s.bySource(name)
	if hasPrevious && previous.Hash == hash {
		s.logger.Debug("Document unchanged", zap.String("source", name), zap.String("document_id", previous.ID))
		return Result{Document: previous, Outcome: Unchanged}, nil
	}

	text, err := extract.File(rawPath)
	if err != nil {
		return failed, fmt.Errorf("extract %s: %w", name, err)
	}

	doc := domain.Document{
		ID:         documentID(name, hash),
		Source:     name,
		Text:       text,
		Hash:       hash,
		IngestedAt: s.now(),
	}

	chunks, skipped, err := s.embedChunks(ctx, doc, s.splitter.Split(text))
	if err != nil {
		return failed, fmt.Errorf("embed %s: %w", name, err)
	}
	doc.ChunkCount = len(chunks)

	if err := s.store.Save(ctx, doc, chunks); err != nil {
		return failed, fmt.Errorf("save %s: %w", name, err)
	}
	var previousID string
	if hasPrevious {
		previousID = previous.ID
	}
	s.index.Swap(previousID, doc, chunks)

	if hasPrevious && previous.ID != doc.ID {
		if err := s.store.Delete(ctx, previous.ID); err != nil && !errors.Is(err, domain.ErrDocumentNotFound) {
			s.logger.Warn("Failed to delete previous version",
				zap.String("source", name),
				zap.String("document_id", previous.ID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("Document indexed",
		zap.String("source", name),
		zap.String("document_id", doc.ID),
		zap.Int("chunks", len(chunks)),
		zap.Int("skipped", skipped),
		zap.Bool("replaced", hasPrevious),
	)
	return Result{Document: doc, Outcome: Indexed, Skipped: skipped}, nil
}

// embedChunks embeds pieces in batches. A failed batch is retried one text at
// a time; texts that still fail are logged and skipped.
func (s *Service) embedChunks(ctx context.Context, doc domain.Document, pieces []textsplit.Piece) ([]domain.Chunk, int, error) {
	chunks := make([]domain.Chunk, 0, len(pieces))
	skipped := 0
	var lastErr error

	for start := 0; start < len(pieces); start += s.batch {
		end := min(start+s.batch, len(pieces))
		batch := pieces[start:end]

		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = p.Text
		}

		vectors := make([][]float32, len(batch))
		res, err := domain.EmbedAll(ctx, s.embedder, texts)
		if err == nil && len(res.Embeddings) == len(batch) {
			copy(vectors, res.Embeddings)
		} else {
			if ctx.Err() != nil {
				return nil, 0, fmt.Errorf("embed batch: %w", ctx.Err())
			}
			s.logger.Warn("Batch embedding failed, falling back to single requests",
				zap.String("source", doc.Source),
				zap.Int("batch_offset", start),
				zap.Error(err),
			)
			for i, text := range texts {
				one, err := s.embedder.Embed(ctx, text)
				if err != nil {
					if ctx.Err() != nil {
						return nil, 0, fmt.Errorf("embed chunk: %w", ctx.Err())
					}
					s.logger.Warn("Skipping chunk",
						zap.String("source", doc.Source),
						zap.Int("ordinal", start+i),
						zap.Error(err),
					)
					lastErr = err
					continue
				}
				vectors[i] = one.Embedding
			}
		}

		for i, p := range batch {
			if vectors[i] == nil {
				skipped++
				continue
			}
			ordinal := start + i
			chunks = append(chunks, domain.Chunk{
				ID:         fmt.Sprintf("%s:%d", doc.ID, ordinal),
				DocumentID: doc.ID,
				Ordinal:    ordinal,
				Offset:     p.Offset,
				Text:       p.Text,
				Source:     doc.Source,
				Embedding:  vectors[i],
			})
		}
	}

	if len(chunks) == 0 && len(pieces) > 0 {
		return nil, skipped, fmt.Errorf("no chunk could be embedded: %w", lastErr)
	}
	return chunks, skipped, nil
}

func (s *Service) bySource(source string) (domain.Document, bool) {
	for _, d := range s.index.Documents() {
		if d.Source == source {
			return d, true
		}
	}
	return domain.Document{}, false
}

// documentID is a UUIDv5 of the source name and content digest.
func documentID(source, hash string) string {
	return uuid.NewSHA1(documentNamespace, []byte(source+"\x00"+hash)).String()
}

func sanitizeName(filename string) (string, error) {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", fmt.Errorf("%w: invalid file name %q", domain.ErrInvalidInput, filename)
	}
	return name, nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

// writeAtomic writes r to path through a temporary file in the same directory.
func writeAtomic(path string, r io.Reader) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after rename

	if _, err := io.Copy(tmp, r); err != nil {
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
