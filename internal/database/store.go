package database

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Collection names
const (
	CollectionAgentResults = "agent_results"
	CollectionDocuments    = "documents"
	CollectionLiveData     = "live_data"
)

// FindOptions narrows a Find call
type FindOptions struct {
	Limit      int64
	Sort       bson.D
	Projection bson.M
}

// UpdateResult reports the outcome of UpdateOne
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
	UpsertedID    interface{}
}

// Collection is the read/write surface agents use. The mongo-backed,
// in-memory and fallback stores all implement it.
type Collection interface {
	InsertOne(ctx context.Context, document interface{}) (interface{}, error)
	// FindOne decodes the first match into out; found is false when nothing matched
	FindOne(ctx context.Context, filter interface{}, out interface{}) (found bool, err error)
	// Find decodes all matches into out, which must point to a slice
	Find(ctx context.Context, filter interface{}, out interface{}, opts FindOptions) error
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, upsert bool) (*UpdateResult, error)
	CountDocuments(ctx context.Context, filter interface{}) (int64, error)
	Aggregate(ctx context.Context, pipeline interface{}, out interface{}) error
	CreateIndex(ctx context.Context, model mongo.IndexModel) (string, error)
}

// Store groups collections of one database
type Store interface {
	Collection(name string) Collection
	Name() string
	IsFallback() bool
}

// Handle is a live connection owned by the ConnectionManager
type Handle interface {
	Store
	Host() string
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Dialer opens a Handle. Driver signals observed after a successful dial are
// reported to sink.
type Dialer interface {
	Dial(ctx context.Context, uri string, sink EventSink) (Handle, error)
}

// DialerFunc adapts a function to Dialer
type DialerFunc func(ctx context.Context, uri string, sink EventSink) (Handle, error)

// Dial calls f
func (f DialerFunc) Dial(ctx context.Context, uri string, sink EventSink) (Handle, error) {
	return f(ctx, uri, sink)
}
