package document

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/ragvoice/internal/db"
	"github.com/kailas-cloud/ragvoice/internal/domain"
)

// store is the consumer interface for the Redis backend (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LRem(ctx context.Context, key string, value string) error
}

// Hash field names.
const (
	fieldID         = "id"
	fieldSource     = "source"
	fieldHash       = "hash"
	fieldText       = "text"
	fieldChunkCount = "chunk_count"
	fieldIngestedAt = "ingested_at"
	fieldDocumentID = "document_id"
	fieldOrdinal    = "ordinal"
	fieldOffset     = "offset"
	fieldVector     = "vector"
)

// RedisRepo stores documents as hashes, one hash per chunk, and keeps
// ingestion order in a list of document IDs.
type RedisRepo struct {
	store  store
	prefix string
}

// NewRedisRepo creates a Redis-backed document repository. prefix namespaces all keys.
func NewRedisRepo(s store, prefix string) *RedisRepo {
	return &RedisRepo{store: s, prefix: prefix}
}

func (r *RedisRepo) docKey(id string) string { return r.prefix + "doc:" + id }

// chunkKey addresses chunks by storage position, which is dense even when
// ordinals have gaps from skipped chunks.
func (r *RedisRepo) chunkKey(docID string, pos int) string {
	return r.prefix + "chunk:" + docID + ":" + strconv.Itoa(pos)
}

func (r *RedisRepo) orderKey() string { return r.prefix + "docs" }

// Save stores a document and its chunks, replacing any previous version with the same ID.
func (r *RedisRepo) Save(ctx context.Context, doc domain.Document, chunks []domain.Chunk) error {
	if err := r.deleteChunks(ctx, doc.ID); err != nil && !errors.Is(err, domain.ErrDocumentNotFound) {
		return err
	}

	doc.ChunkCount = len(chunks)
	items := make([]db.HashSetItem, 0, len(chunks)+1)
	for i, c := range chunks {
		items = append(items, db.HashSetItem{
			Key: r.chunkKey(doc.ID, i),
			Fields: map[string]string{
				fieldID:         c.ID,
				fieldDocumentID: doc.ID,
				fieldOrdinal:    strconv.Itoa(c.Ordinal),
				fieldOffset:     strconv.Itoa(c.Offset),
				fieldText:       c.Text,
				fieldSource:     doc.Source,
				fieldVector:     string(db.EncodeVector(c.Embedding)),
			},
		})
	}
	// Document hash last: its presence marks the entry as complete.
	items = append(items, db.HashSetItem{
		Key: r.docKey(doc.ID),
		Fields: map[string]string{
			fieldID:         doc.ID,
			fieldSource:     doc.Source,
			fieldHash:       doc.Hash,
			fieldText:       doc.Text,
			fieldChunkCount: strconv.Itoa(doc.ChunkCount),
			fieldIngestedAt: doc.IngestedAt.UTC().Format(time.RFC3339Nano),
		},
	})

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}

	if err := r.store.LRem(ctx, r.orderKey(), doc.ID); err != nil {
		return fmt.Errorf("reorder document %s: %w", doc.ID, err)
	}
	if err := r.store.RPush(ctx, r.orderKey(), doc.ID); err != nil {
		return fmt.Errorf("append document %s: %w", doc.ID, err)
	}
	return nil
}

// Delete removes a document and its chunks.
func (r *RedisRepo) Delete(ctx context.Context, id string) error {
	if err := r.deleteChunks(ctx, id); err != nil {
		return err
	}
	if err := r.store.Del(ctx, r.docKey(id)); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	if err := r.store.LRem(ctx, r.orderKey(), id); err != nil {
		return fmt.Errorf("unlist document %s: %w", id, err)
	}
	return nil
}

func (r *RedisRepo) deleteChunks(ctx context.Context, id string) error {
	doc, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	if doc.ChunkCount == 0 {
		return nil
	}
	keys := make([]string, doc.ChunkCount)
	for i := range keys {
		keys[i] = r.chunkKey(id, i)
	}
	if err := r.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("delete chunks of %s: %w", id, err)
	}
	return nil
}

func (r *RedisRepo) get(ctx context.Context, id string) (domain.Document, error) {
	m, err := r.store.HGetAll(ctx, r.docKey(id))
	if err != nil {
		return domain.Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	if len(m) == 0 {
		return domain.Document{}, domain.ErrDocumentNotFound
	}
	return parseDocument(m)
}

// List returns all documents in ingestion order.
func (r *RedisRepo) List(ctx context.Context) ([]domain.Document, error) {
	ids, err := r.store.LRange(ctx, r.orderKey(), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("list document ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.docKey(id)
	}
	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}

	docs := make([]domain.Document, 0, len(maps))
	for _, m := range maps {
		if len(m) == 0 {
			continue // listed but not written completely
		}
		d, err := parseDocument(m)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// Chunks returns the chunks of a document ordered by ordinal.
func (r *RedisRepo) Chunks(ctx context.Context, id string) ([]domain.Chunk, error) {
	doc, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.ChunkCount == 0 {
		return nil, nil
	}

	keys := make([]string, doc.ChunkCount)
	for i := range keys {
		keys[i] = r.chunkKey(id, i)
	}
	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load chunks of %s: %w", id, err)
	}

	chunks := make([]domain.Chunk, 0, len(maps))
	for i, m := range maps {
		if len(m) == 0 {
			return nil, fmt.Errorf("chunk %s missing", keys[i])
		}
		c, err := parseChunk(m)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", keys[i], err)
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

func parseDocument(m map[string]string) (domain.Document, error) {
	count, err := strconv.Atoi(m[fieldChunkCount])
	if err != nil {
		return domain.Document{}, fmt.Errorf("document %s: bad chunk_count: %w", m[fieldID], err)
	}
	ingested, err := time.Parse(time.RFC3339Nano, m[fieldIngestedAt])
	if err != nil {
		return domain.Document{}, fmt.Errorf("document %s: bad ingested_at: %w", m[fieldID], err)
	}
	return domain.Document{
		ID:         m[fieldID],
		Source:     m[fieldSource],
		Hash:       m[fieldHash],
		Text:       m[fieldText],
		ChunkCount: count,
		IngestedAt: ingested,
	}, nil
}

func parseChunk(m map[string]string) (domain.Chunk, error) {
	ordinal, err := strconv.Atoi(m[fieldOrdinal])
	if err != nil {
		return domain.Chunk{}, fmt.Errorf("bad ordinal: %w", err)
	}
	offset, err := strconv.Atoi(m[fieldOffset])
	if err != nil {
		return domain.Chunk{}, fmt.Errorf("bad offset: %w", err)
	}
	vec, err := db.DecodeVector([]byte(m[fieldVector]))
	if err != nil {
		return domain.Chunk{}, err //nolint:wrapcheck // already descriptive
	}
	return domain.Chunk{
		ID:         m[fieldID],
		DocumentID: m[fieldDocumentID],
		Ordinal:    ordinal,
		Offset:     offset,
		Text:       m[fieldText],
		Source:     m[fieldSource],
		Embedding:  vec,
	}, nil
}
