package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/free4inno/intent-hub/internal/domain"
)

func point(id string, routeID int, negative bool, vector ...float64) domain.Point {
	return domain.Point{
		ID:     id,
		Vector: vector,
		Payload: domain.PointPayload{
			RouteID:    routeID,
			Utterance:  id,
			IsNegative: negative,
		},
	}
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewIndex(3)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(context.Background(), []domain.Point{
		point("a1", 1, false, 1, 0, 0),
		point("a2", 1, false, 0, 1, 0),
		point("n1", 1, true, 0, 0, 1),
		point("b1", 2, false, 0.6, 0.8, 0),
	}))
	return idx
}

func TestNewIndexRejectsBadDimension(t *testing.T) {
	_, err := NewIndex(0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUpsertRejectsDimensionMismatch(t *testing.T) {
	idx, err := NewIndex(3)
	require.NoError(t, err)
	err = idx.Upsert(context.Background(), []domain.Point{point("x", 1, false, 1, 0)})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUpsertReplacesInPlace(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Upsert(context.Background(), []domain.Point{point("a1", 1, false, 0, 0, 1)}))
	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestSearchOrdersByScore(t *testing.T) {
	idx := newTestIndex(t)
	hits, err := idx.Search(context.Background(), []float64{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "a1", hits[0].ID)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestSearchHonorsK(t *testing.T) {
	idx := newTestIndex(t)
	hits, err := idx.Search(context.Background(), []float64{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearchFilters(t *testing.T) {
	idx := newTestIndex(t)

	negative := true
	hits, err := idx.Search(context.Background(), []float64{0, 0, 1}, 10, &domain.Filter{Negative: &negative})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "n1", hits[0].ID)

	positive := false
	routeID := 1
	hits, err = idx.Search(context.Background(), []float64{1, 0, 0}, 10, &domain.Filter{RouteID: &routeID, Negative: &positive})
	require.NoError(t, err)
	assert.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, 1, h.Payload.RouteID)
		assert.False(t, h.Payload.IsNegative)
	}
}

func TestDeleteByIDs(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.DeleteByIDs(context.Background(), []string{"a1", "missing"}))
	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDeleteByRouteRemovesNegativesToo(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.DeleteByRoute(context.Background(), 1))
	ids, err := idx.IDsByRoute(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, ids)
	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAllPayloadsAndVectors(t *testing.T) {
	idx := newTestIndex(t)

	payloads, err := idx.AllPayloads(context.Background())
	require.NoError(t, err)
	assert.Len(t, payloads, 4)

	positive := false
	points, err := idx.Vectors(context.Background(), &domain.Filter{Negative: &positive})
	require.NoError(t, err)
	assert.Len(t, points, 3)
	for _, p := range points {
		assert.Len(t, p.Vector, 3)
	}
}
