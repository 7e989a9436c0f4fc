package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testVectorStore(t *testing.T) *VectorStore {
	t.Helper()

	db := openTestDB(t)
	require.NoError(t, Migrate(db, nil))

	return NewVectorStore(db, zaptest.NewLogger(t).Sugar())
}

// testEmbedding builds a unit-ish vector with one dominant axis so L2
// distances between different axes are predictable.
func testEmbedding(axis int) []float32 {
	v := make([]float32, EmbeddingDimensions)
	v[axis] = 1.0
	return v
}

func TestVectorStorePing(t *testing.T) {
	store := testVectorStore(t)

	require.NoError(t, store.Ping(context.Background()))
}

func TestSaveAndSearchEmbeddings(t *testing.T) {
	store := testVectorStore(t)

	require.NoError(t, store.SaveEmbedding("INV_1", testEmbedding(0)))
	require.NoError(t, store.SaveEmbedding("INV_2", testEmbedding(1)))
	require.NoError(t, store.SaveEmbedding("INV_3", testEmbedding(2)))

	results, err := store.SearchSimilar(testEmbedding(1), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "INV_2", results[0].InnovationID)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-6)
	assert.Greater(t, results[1].Distance, results[0].Distance)
}

func TestSaveEmbeddingReplacesExisting(t *testing.T) {
	store := testVectorStore(t)

	require.NoError(t, store.SaveEmbedding("INV_1", testEmbedding(0)))
	require.NoError(t, store.SaveEmbedding("INV_1", testEmbedding(5)))

	results, err := store.SearchSimilar(testEmbedding(5), 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "INV_1", results[0].InnovationID)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-6)
}

func TestSaveEmbeddingRejectsWrongDimensions(t *testing.T) {
	store := testVectorStore(t)

	err := store.SaveEmbedding("INV_1", make([]float32, 4))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensions")
}

func TestDeleteEmbedding(t *testing.T) {
	store := testVectorStore(t)

	require.NoError(t, store.SaveEmbedding("INV_1", testEmbedding(0)))
	require.NoError(t, store.DeleteEmbedding("INV_1"))

	results, err := store.SearchSimilar(testEmbedding(0), 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSerializeRoundTrip(t *testing.T) {
	original := []float32{1.5, -2.25, 0, 3.14159}

	blob := SerializeFloat32(original)
	assert.Len(t, blob, len(original)*4)

	decoded, err := DeserializeFloat32(blob)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)

	_, err = DeserializeFloat32([]byte{1, 2, 3})
	assert.Error(t, err)
}
