package memory_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claimsqa/internal/domain"
	"claimsqa/internal/store/memory"
)

func record(id string, createdAt time.Time) *domain.ExtractionRecord {
	return &domain.ExtractionRecord{
		DocumentID:    id,
		Content:       json.RawMessage(`{"claims_id":"` + id + `"}`),
		SchemaVersion: "v1",
		CreatedAt:     createdAt,
	}
}

func TestStore_PutGet(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	rec := record("doc-1", time.Now().UTC())

	require.NoError(t, s.Put(ctx, rec))

	got, err := s.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, string(rec.Content), string(got.Content))

	// Mutating the caller's copy must not reach the stored record.
	rec.Content[2] = 'X'
	got.Content[3] = 'Y'
	again, err := s.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, `{"claims_id":"doc-1"}`, string(again.Content))
}

func TestStore_GetUnknown(t *testing.T) {
	_, err := memory.New().Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestStore_PutOverwrites(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, record("doc-1", time.Now())))

	replacement := record("doc-1", time.Now())
	replacement.Content = json.RawMessage(`{"claims_id":"new"}`)
	require.NoError(t, s.Put(ctx, replacement))

	got, err := s.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"claims_id":"new"}`, string(got.Content))

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_PutIsIdempotent(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	rec := record("doc-1", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))

	require.NoError(t, s.Put(ctx, rec))
	first, err := s.Get(ctx, "doc-1")
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, rec))
	second, err := s.Get(ctx, "doc-1")
	require.NoError(t, err)

	assert.Equal(t, []byte(first.Content), []byte(second.Content))
	assert.Equal(t, []byte(rec.Content), []byte(second.Content))
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_ListOrdering(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Put(ctx, record("c", base.Add(2*time.Second))))
	require.NoError(t, s.Put(ctx, record("b", base)))
	require.NoError(t, s.Put(ctx, record("a", base)))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].DocumentID)
	assert.Equal(t, "b", all[1].DocumentID)
	assert.Equal(t, "c", all[2].DocumentID)
}

func TestStore_ListEmpty(t *testing.T) {
	all, err := memory.New().List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestStore_SetsCreatedAt(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, record("doc-1", time.Time{})))

	got, err := s.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("doc-%d", i)
			assert.NoError(t, s.Put(ctx, record(id, time.Now())))
			_, err := s.Get(ctx, id)
			assert.NoError(t, err)
			_, err = s.List(ctx)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 50)
}

func TestStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := memory.New()
	assert.ErrorIs(t, s.Put(ctx, record("doc-1", time.Now())), context.Canceled)
	assert.ErrorIs(t, s.Ping(ctx), context.Canceled)
}
