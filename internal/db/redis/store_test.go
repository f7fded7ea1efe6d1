package redis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/ragvoice/internal/db"
)

func newMockStore(t *testing.T) (*Store, *mock.Client) {
	t.Helper()
	c := mock.NewClient(gomock.NewController(t))
	return NewStoreForTest(c), c
}

func TestPing(t *testing.T) {
	s, c := newMockStore(t)
	gomock.InOrder(
		c.EXPECT().Do(gomock.Any(), mock.Match("PING")).Return(mock.Result(mock.RedisString("PONG"))),
		c.EXPECT().Do(gomock.Any(), mock.Match("PING")).Return(mock.ErrorResult(context.DeadlineExceeded)),
	)

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestWaitForReady_Timeout(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(errors.New("connection refused"))).AnyTimes()

	err := s.WaitForReady(context.Background(), 250*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

// --- document hashes ---

func TestHSetMulti_PipelinesChunks(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisInt64(3)),
			mock.Result(mock.RedisInt64(3)),
		})

	err := s.HSetMulti(context.Background(), []db.HashSetItem{
		{Key: "ragvoice:chunk:doc-1:0", Fields: map[string]string{"text": "intro"}},
		{Key: "ragvoice:chunk:doc-1:1", Fields: map[string]string{"text": "details"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHSetMulti_ReportsFailedKey(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisInt64(3)),
			mock.ErrorResult(errors.New("OOM command not allowed")),
		})

	err := s.HSetMulti(context.Background(), []db.HashSetItem{
		{Key: "ragvoice:chunk:doc-1:0", Fields: map[string]string{"text": "a"}},
		{Key: "ragvoice:chunk:doc-1:1", Fields: map[string]string{"text": "b"}},
	})
	var dbErr *db.Error
	if !errors.As(err, &dbErr) || dbErr.Op != db.OpHSet {
		t.Fatalf("expected HSET db.Error, got %v", err)
	}
	if want := "ragvoice:chunk:doc-1:1"; !strings.Contains(err.Error(), want) {
		t.Errorf("expected %q in %q", want, err)
	}
}

func TestHSetMulti_NothingToWrite(t *testing.T) {
	s := NewStoreForTest(nil) // client not called
	if err := s.HSetMulti(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHGetAll(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "ragvoice:doc:doc-1")).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
			"source": mock.RedisString("handbook.pdf"),
			"hash":   mock.RedisString("ab12"),
		})))

	m, err := s.HGetAll(context.Background(), "ragvoice:doc:doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m["source"] != "handbook.pdf" || m["hash"] != "ab12" {
		t.Errorf("unexpected fields: %v", m)
	}
}

func TestHGetAll_Error(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "ragvoice:doc:doc-1")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	_, err := s.HGetAll(context.Background(), "ragvoice:doc:doc-1")
	var dbErr *db.Error
	if !errors.As(err, &dbErr) || dbErr.Op != db.OpHGetAll {
		t.Fatalf("expected HGETALL db.Error, got %v", err)
	}
}

func TestHGetAllMulti_KeepsKeyOrder(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{"ordinal": mock.RedisString("0")})),
			mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{"ordinal": mock.RedisString("1")})),
		})

	maps, err := s.HGetAllMulti(context.Background(), []string{"chunk:0", "chunk:1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(maps) != 2 || maps[0]["ordinal"] != "0" || maps[1]["ordinal"] != "1" {
		t.Errorf("unexpected results: %v", maps)
	}
}

func TestHGetAllMulti_NoKeys(t *testing.T) {
	s := NewStoreForTest(nil)
	maps, err := s.HGetAllMulti(context.Background(), nil)
	if err != nil || maps != nil {
		t.Fatalf("expected nil result, got %v, %v", maps, err)
	}
}

func TestDel(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().
		Do(gomock.Any(), mock.Match("DEL", "ragvoice:doc:doc-1", "ragvoice:chunk:doc-1:0")).
		Return(mock.Result(mock.RedisInt64(2)))

	if err := s.Del(context.Background(), "ragvoice:doc:doc-1", "ragvoice:chunk:doc-1:0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := NewStoreForTest(nil).Del(context.Background()); err != nil {
		t.Fatalf("empty delete must not reach redis: %v", err)
	}
}

// --- embedding cache values ---

func TestGet(t *testing.T) {
	s, c := newMockStore(t)
	vec := string(db.EncodeVector([]float32{0.25, -1}))
	gomock.InOrder(
		c.EXPECT().Do(gomock.Any(), mock.Match("GET", "emb:hit")).Return(mock.Result(mock.RedisBlobString(vec))),
		c.EXPECT().Do(gomock.Any(), mock.Match("GET", "emb:miss")).Return(mock.Result(mock.RedisNil())),
		c.EXPECT().Do(gomock.Any(), mock.Match("GET", "emb:down")).Return(mock.ErrorResult(context.Canceled)),
	)
	ctx := context.Background()

	data, err := s.Get(ctx, "emb:hit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := db.DecodeVector(data); len(got) != 2 || got[0] != 0.25 {
		t.Errorf("unexpected vector %v", got)
	}

	if _, err := s.Get(ctx, "emb:miss"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}

	var dbErr *db.Error
	if _, err := s.Get(ctx, "emb:down"); !errors.As(err, &dbErr) || dbErr.Op != db.OpGet {
		t.Errorf("expected GET db.Error, got %v", err)
	}
}

func TestSet_WithoutExpiry(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().
		Do(gomock.Any(), mock.Match("SET", "emb:k", "payload")).
		Return(mock.Result(mock.RedisString("OK")))

	if err := s.Set(context.Background(), "emb:k", []byte("payload")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSetWithTTL_SendsExpiry(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().
		Do(gomock.Any(), mock.Match("SET", "emb:k", "payload", "EX", "3600")).
		Return(mock.Result(mock.RedisString("OK")))

	if err := s.SetWithTTL(context.Background(), "emb:k", []byte("payload"), time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- document order list ---

func TestOrderList(t *testing.T) {
	s, c := newMockStore(t)
	gomock.InOrder(
		c.EXPECT().Do(gomock.Any(), mock.Match("LREM", "ragvoice:docs", "0", "doc-1")).
			Return(mock.Result(mock.RedisInt64(1))),
		c.EXPECT().Do(gomock.Any(), mock.Match("RPUSH", "ragvoice:docs", "doc-1")).
			Return(mock.Result(mock.RedisInt64(2))),
		c.EXPECT().Do(gomock.Any(), mock.Match("LRANGE", "ragvoice:docs", "0", "-1")).
			Return(mock.Result(mock.RedisArray(mock.RedisString("doc-0"), mock.RedisString("doc-1")))),
	)
	ctx := context.Background()

	if err := s.LRem(ctx, "ragvoice:docs", "doc-1"); err != nil {
		t.Fatalf("lrem: %v", err)
	}
	if err := s.RPush(ctx, "ragvoice:docs", "doc-1"); err != nil {
		t.Fatalf("rpush: %v", err)
	}
	ids, err := s.LRange(ctx, "ragvoice:docs", 0, -1)
	if err != nil {
		t.Fatalf("lrange: %v", err)
	}
	if len(ids) != 2 || ids[1] != "doc-1" {
		t.Errorf("unexpected ids: %v", ids)
	}
}

func TestRPush_Error(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().
		Do(gomock.Any(), mock.Match("RPUSH", "ragvoice:docs", "doc-1")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	err := s.RPush(context.Background(), "ragvoice:docs", "doc-1")
	var dbErr *db.Error
	if !errors.As(err, &dbErr) || dbErr.Op != db.OpRPush {
		t.Errorf("expected RPUSH db.Error, got %v", err)
	}
	if err := NewStoreForTest(nil).RPush(context.Background(), "ragvoice:docs"); err != nil {
		t.Errorf("empty push must not reach redis: %v", err)
	}
}
