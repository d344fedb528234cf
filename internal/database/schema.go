package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Indexes lists the index models created on each collection
func Indexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		CollectionAgentResults: {
			{Keys: bson.D{{Key: "agent", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "metadata.status", Value: 1}}},
			{
				Keys:    bson.D{{Key: "output.extracted_text", Value: "text"}, {Key: "output.analysis.summary", Value: "text"}},
				Options: options.Index().SetName("agent_results_text"),
			},
		},
		CollectionDocuments: {
			{
				Keys:    bson.D{{Key: "title", Value: "text"}, {Key: "content", Value: "text"}},
				Options: options.Index().SetName("documents_text").SetWeights(bson.D{{Key: "title", Value: 10}, {Key: "content", Value: 1}}),
			},
			{Keys: bson.D{{Key: "fingerprint", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
			{Keys: bson.D{{Key: "type", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		CollectionLiveData: {
			{Keys: bson.D{{Key: "source", Value: 1}, {Key: "query", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		},
	}
}

// EnsureIndexes creates every index. The fallback store is skipped.
func EnsureIndexes(ctx context.Context, store Store) error {
	if store.IsFallback() {
		return nil
	}
	for _, name := range []string{CollectionAgentResults, CollectionDocuments, CollectionLiveData} {
		if err := createIndexes(ctx, store.Collection(name), Indexes()[name]); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", name, err)
		}
	}
	return nil
}

func createIndexes(ctx context.Context, collection Collection, models []mongo.IndexModel) error {
	for _, model := range models {
		if _, err := collection.CreateIndex(ctx, model); err != nil {
			return err
		}
	}
	return nil
}
