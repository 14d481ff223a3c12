package mongodb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/eventcore/internal/infrastructure/mongodb"
)

func TestGetEventIndexes(t *testing.T) {
	t.Parallel()

	indexes := mongodb.GetEventIndexes()

	assert.Len(t, indexes, 4)

	// Optimistic concurrency depends on this one
	uniqueIdx := findIndexByName(indexes, "idx_events_stream_version_unique")
	require.NotNil(t, uniqueIdx, "unique stream+version index should exist")
	assert.True(t, uniqueIdx.Unique)
	assert.Equal(t, mongodb.CollectionEvents, uniqueIdx.Collection)
	assert.Equal(t, "stream_name", uniqueIdx.Keys[0].Key)
	assert.Equal(t, "version", uniqueIdx.Keys[1].Key)

	seqIdx := findIndexByName(indexes, "idx_events_sequence_unique")
	require.NotNil(t, seqIdx)
	assert.True(t, seqIdx.Unique)
}

func TestGetSnapshotIndexes(t *testing.T) {
	t.Parallel()

	indexes := mongodb.GetSnapshotIndexes()

	require.Len(t, indexes, 1)
	assert.True(t, indexes[0].Unique)
	assert.Equal(t, mongodb.CollectionSnapshots, indexes[0].Collection)
}

func TestGetSagaIndexes(t *testing.T) {
	t.Parallel()

	indexes := mongodb.GetSagaIndexes()

	idx := findIndexByName(indexes, "idx_saga_correlation_unique")
	require.NotNil(t, idx)
	assert.True(t, idx.Unique)
	assert.Equal(t, mongodb.CollectionSagaTransaction, idx.Collection)
}

func TestGetAllIndexDefinitions(t *testing.T) {
	t.Parallel()

	all := mongodb.GetAllIndexDefinitions()

	expected := len(mongodb.GetEventIndexes()) + len(mongodb.GetSnapshotIndexes()) + len(mongodb.GetSagaIndexes())
	assert.Len(t, all, expected)

	names := make(map[string]bool)
	for _, idx := range all {
		assert.NotEmpty(t, idx.Name)
		assert.False(t, names[idx.Name], "index name %s is duplicated", idx.Name)
		names[idx.Name] = true
	}
}

func findIndexByName(indexes []mongodb.IndexDefinition, name string) *mongodb.IndexDefinition {
	for i := range indexes {
		if indexes[i].Name == name {
			return &indexes[i]
		}
	}
	return nil
}
