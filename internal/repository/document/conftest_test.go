package document

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/kailas-cloud/ragvoice/internal/db"
	"github.com/kailas-cloud/ragvoice/internal/domain"
)

// memStore is an in-memory implementation of the consumer interface.
type memStore struct {
	hashes map[string]map[string]string
	lists  map[string][]string

	hsetMultiErr error
	lrangeErr    error
}

func newMemStore() *memStore {
	return &memStore{
		hashes: make(map[string]map[string]string),
		lists:  make(map[string][]string),
	}
}

func (m *memStore) HSetMulti(_ context.Context, items []db.HashSetItem) error {
	if m.hsetMultiErr != nil {
		return m.hsetMultiErr
	}
	for _, it := range items {
		h := m.hashes[it.Key]
		if h == nil {
			h = make(map[string]string)
			m.hashes[it.Key] = h
		}
		for k, v := range it.Fields {
			h[k] = v
		}
	}
	return nil
}

func (m *memStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	return cloneMap(m.hashes[key]), nil
}

func (m *memStore) HGetAllMulti(_ context.Context, keys []string) ([]map[string]string, error) {
	out := make([]map[string]string, len(keys))
	for i, k := range keys {
		out[i] = cloneMap(m.hashes[k])
	}
	return out, nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.hashes, k)
	}
	return nil
}

func (m *memStore) RPush(_ context.Context, key string, values ...string) error {
	m.lists[key] = append(m.lists[key], values...)
	return nil
}

func (m *memStore) LRange(_ context.Context, key string, _, _ int64) ([]string, error) {
	if m.lrangeErr != nil {
		return nil, m.lrangeErr
	}
	return slices.Clone(m.lists[key]), nil
}

func (m *memStore) LRem(_ context.Context, key string, value string) error {
	m.lists[key] = slices.DeleteFunc(m.lists[key], func(v string) bool { return v == value })
	return nil
}

func cloneMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var errStore = errors.New("store unavailable")

func testDocument(id string, at time.Time) domain.Document {
	return domain.Document{
		ID:         id,
		Source:     id + ".pdf",
		Hash:       "hash-" + id,
		Text:       "full text of " + id,
		IngestedAt: at,
	}
}

func testChunks(docID string, n int) []domain.Chunk {
	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		chunks[i] = domain.Chunk{
			ID:         fmt.Sprintf("%s-%d", docID, i),
			DocumentID: docID,
			Ordinal:    i,
			Offset:     i * 10,
			Text:       fmt.Sprintf("chunk %d of %s", i, docID),
			Source:     docID + ".pdf",
			Embedding:  []float32{float32(i), 1, -1},
		}
	}
	return chunks
}
