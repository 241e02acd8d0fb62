package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessStore_SearchRanksBySimilarity(t *testing.T) {
	s := NewInProcessStore()
	ctx := context.Background()
	require.NoError(t, s.EnsureCollection(ctx, 2))

	require.NoError(t, s.Upsert(ctx, "close", []float64{1, 0}, map[string]any{"job_id": "job_1"}))
	require.NoError(t, s.Upsert(ctx, "far", []float64{0, 1}, map[string]any{"job_id": "job_1"}))
	require.NoError(t, s.Upsert(ctx, "other_job", []float64{1, 0}, map[string]any{"job_id": "job_2"}))

	hits, err := s.Search(ctx, SearchQuery{Vector: []float64{1, 0}, Limit: 10, Filter: map[string]any{"job_id": "job_1"}})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "close", hits[0].ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestInProcessStore_UpsertRejectsDimMismatch(t *testing.T) {
	s := NewInProcessStore()
	ctx := context.Background()
	require.NoError(t, s.EnsureCollection(ctx, 3))
	err := s.Upsert(ctx, "bad", []float64{1, 2}, nil)
	require.Error(t, err)
}

func TestInProcessStore_SearchOnEmptyStoreDoesNotFail(t *testing.T) {
	s := NewInProcessStore()
	hits, err := s.Search(context.Background(), SearchQuery{Vector: []float64{1, 0}, Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, hits)
}
