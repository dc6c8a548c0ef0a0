package knowledge

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreQueryOrdersBySimilarity(t *testing.T) {
	store := NewMemoryVectorStore(3)

	err := store.Upsert(context.Background(), []ExchangeRecord{
		{ID: "q-1", Text: "exact", Role: "user", Timestamp: "1", Embedding: []float32{1, 0, 0}},
		{ID: "q-2", Text: "orthogonal", Role: "user", Timestamp: "2", Embedding: []float32{0, 1, 0}},
		{ID: "q-3", Text: "close", Role: "user", Timestamp: "3", Embedding: []float32{1, 0.2, 0}},
	})
	require.NoError(t, err)

	matches, err := store.Query(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "q-1", matches[0].ID)
	assert.Equal(t, "q-3", matches[1].ID)
	assert.Equal(t, "q-2", matches[2].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.Equal(t, "exact", matches[0].Metadata["text"])
	assert.Equal(t, "user", matches[0].Metadata["role"])
	assert.Equal(t, "1", matches[0].Metadata["timestamp"])
}

func TestMemoryStoreQueryTruncatesToTopK(t *testing.T) {
	store := NewMemoryVectorStore(2)

	var records []ExchangeRecord
	for i := 0; i < 8; i++ {
		records = append(records, ExchangeRecord{
			ID:        fmt.Sprintf("q-%d", i),
			Embedding: []float32{1, float32(i)},
		})
	}
	require.NoError(t, store.Upsert(context.Background(), records))

	matches, err := store.Query(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Len(t, matches, 5)
}

func TestMemoryStoreUpsertOverwritesByID(t *testing.T) {
	store := NewMemoryVectorStore(2)

	require.NoError(t, store.Upsert(context.Background(), []ExchangeRecord{
		{ID: "q-1", Text: "old", Embedding: []float32{1, 0}},
	}))
	require.NoError(t, store.Upsert(context.Background(), []ExchangeRecord{
		{ID: "q-1", Text: "new", Embedding: []float32{1, 0}},
	}))

	matches, err := store.Query(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "new", matches[0].Metadata["text"])
}

func TestMemoryStoreRejectsDimensionMismatch(t *testing.T) {
	store := NewMemoryVectorStore(3)

	err := store.Upsert(context.Background(), []ExchangeRecord{
		{ID: "q-1", Embedding: []float32{1, 0}},
	})
	require.Error(t, err)

	_, err = store.Query(context.Background(), []float32{1, 0}, 5)
	require.Error(t, err)
}
