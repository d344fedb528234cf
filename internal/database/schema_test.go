package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestEnsureIndexes(t *testing.T) {
	s := NewMemoryStore("t")
	require.NoError(t, EnsureIndexes(context.Background(), s))

	results := s.Indexes(CollectionAgentResults)
	require.Len(t, results, 3)
	assert.Equal(t, "agent", results[0].Keys.(bson.D)[0].Key)

	docs := s.Indexes(CollectionDocuments)
	require.Len(t, docs, 3)
	require.NotNil(t, docs[1].Options.Unique)
	assert.True(t, *docs[1].Options.Unique)

	live := s.Indexes(CollectionLiveData)
	require.Len(t, live, 2)
	require.NotNil(t, live[1].Options.ExpireAfterSeconds)
	assert.Equal(t, int32(0), *live[1].Options.ExpireAfterSeconds)
}

func TestEnsureIndexesWrapsFailure(t *testing.T) {
	s := NewMemoryStore("t")
	s.SetFailure(errors.New("not primary"))

	err := EnsureIndexes(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), CollectionAgentResults)
}

func TestAgentStatistics(t *testing.T) {
	s := NewMemoryStore("t")
	c := s.Collection(CollectionAgentResults)
	ctx := context.Background()
	for _, agent := range []string{"pdf_processor", "pdf_processor", "ocr_processor", "archive_search", "live_data"} {
		_, err := c.InsertOne(ctx, bson.M{"agent": agent})
		require.NoError(t, err)
	}

	stats, err := AgentStatistics(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Total)
	assert.Equal(t, int64(2), stats.AgentCounts["pdf_processor"])
	assert.Equal(t, int64(2), stats.PDFAgents)
	assert.Equal(t, int64(1), stats.OCRAgents)
	assert.Equal(t, int64(1), stats.Search)
	assert.Equal(t, int64(1), stats.LiveData)
	assert.False(t, stats.Fallback)
}
