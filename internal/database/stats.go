package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// Statistics summarizes stored agent results
type Statistics struct {
	Total       int64            `json:"total_documents"`
	AgentCounts map[string]int64 `json:"agent_counts"`
	PDFAgents   int64            `json:"pdf_agents"`
	OCRAgents   int64            `json:"ocr_agents"`
	Search      int64            `json:"search_agents"`
	LiveData    int64            `json:"live_data_agents"`
	Fallback    bool             `json:"fallback"`
	LastUpdated time.Time        `json:"last_updated"`
}

type agentCount struct {
	Agent string `bson:"_id"`
	Count int64  `bson:"count"`
}

// AgentStatistics counts agent_results by agent and by agent family
func AgentStatistics(ctx context.Context, store Store) (*Statistics, error) {
	results := store.Collection(CollectionAgentResults)
	stats := &Statistics{
		AgentCounts: make(map[string]int64),
		Fallback:    store.IsFallback(),
		LastUpdated: time.Now().UTC(),
	}

	var counts []agentCount
	pipeline := []bson.M{
		{"$group": bson.M{"_id": "$agent", "count": bson.M{"$sum": 1}}},
		{"$sort": bson.M{"count": -1}},
	}
	if err := results.Aggregate(ctx, pipeline, &counts); err != nil {
		return nil, fmt.Errorf("failed to aggregate agent counts: %w", err)
	}
	for _, c := range counts {
		stats.AgentCounts[c.Agent] = c.Count
	}

	total, err := results.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to count agent results: %w", err)
	}
	stats.Total = total

	families := []struct {
		pattern string
		into    *int64
	}{
		{"pdf", &stats.PDFAgents},
		{"ocr", &stats.OCRAgents},
		{"search", &stats.Search},
		{"live", &stats.LiveData},
	}
	for _, f := range families {
		n, err := results.CountDocuments(ctx, bson.M{"agent": bson.M{"$regex": f.pattern, "$options": "i"}})
		if err != nil {
			return nil, fmt.Errorf("failed to count %s agents: %w", f.pattern, err)
		}
		*f.into = n
	}
	return stats, nil
}
