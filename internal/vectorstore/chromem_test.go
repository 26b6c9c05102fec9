package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore(ChromemConfig{
		Path:       t.TempDir(),
		VectorSize: 3,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// unit vectors along and between the axes; cosine similarity against
// axisX orders them axisX, diagXY, axisY.
var (
	axisX  = []float32{1, 0, 0}
	axisY  = []float32{0, 1, 0}
	diagXY = []float32{0.70710678, 0.70710678, 0}
)

func seedDocs() []Document {
	return []Document{
		{ID: "a", Content: "ciphertext-a", Embedding: axisX, Metadata: map[string]string{"account": "personal"}},
		{ID: "b", Content: "ciphertext-b", Embedding: axisY, Metadata: map[string]string{"account": "work"}},
		{ID: "c", Content: "ciphertext-c", Embedding: diagXY, Metadata: map[string]string{"account": "personal"}},
	}
}

func TestAddAndQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, err := store.Add(ctx, seedDocs())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	results, err := store.Query(ctx, axisX, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "ciphertext-a", results[0].Content)
	assert.InDelta(t, 1.0, float64(results[0].Similarity), 1e-4)
	assert.Equal(t, "c", results[1].ID)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
}

func TestQueryWithFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, seedDocs())
	require.NoError(t, err)

	results, err := store.Query(ctx, axisX, 3, map[string]string{"account": "work"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestQueryEmptyStore(t *testing.T) {
	store := newTestStore(t)

	results, err := store.Query(context.Background(), axisX, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQueryCapsKAtCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, seedDocs())
	require.NoError(t, err)

	results, err := store.Query(ctx, axisX, 50, nil)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestAddRejectsWrongDimension(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Add(context.Background(), []Document{
		{ID: "bad", Content: "x", Embedding: []float32{1, 0}},
	})
	assert.ErrorIs(t, err, ErrMissingEmbedding)
}

func TestAddRejectsEmptyBatch(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Add(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyDocuments)
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, seedDocs())
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, []string{"a", "c"}))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, store.Delete(ctx, nil))
}

func TestUpsertReplacesDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, []Document{{ID: "a", Content: "v1", Embedding: axisX}})
	require.NoError(t, err)
	_, err = store.Add(ctx, []Document{{ID: "a", Content: "v2", Embedding: axisX}})
	require.NoError(t, err)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	results, err := store.Query(ctx, axisX, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "v2", results[0].Content)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewChromemStore(ChromemConfig{Path: dir, VectorSize: 3}, nil)
	require.NoError(t, err)
	_, err = store.Add(ctx, seedDocs())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewChromemStore(ChromemConfig{Path: dir, VectorSize: 3}, nil)
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestConfigValidate(t *testing.T) {
	cfg := ChromemConfig{VectorSize: -1}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}
