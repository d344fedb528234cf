package database

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// FallbackInsertedID is returned by every fallback insert
var FallbackInsertedID = primitive.NilObjectID

// FallbackIndexName is returned by every fallback index creation
const FallbackIndexName = "fallback"

// FallbackStore stands in for the database when no connection could be
// established. Every operation succeeds: writes are dropped and reads find nothing.
type FallbackStore struct {
	name string
}

// NewFallbackStore creates a fallback store reporting the given database name
func NewFallbackStore(name string) *FallbackStore {
	return &FallbackStore{name: name}
}

func (f *FallbackStore) Collection(string) Collection { return fallbackCollection{} }
func (f *FallbackStore) Name() string                  { return f.name }
func (f *FallbackStore) IsFallback() bool              { return true }

type fallbackCollection struct{}

func (fallbackCollection) InsertOne(context.Context, interface{}) (interface{}, error) {
	return FallbackInsertedID, nil
}

func (fallbackCollection) FindOne(context.Context, interface{}, interface{}) (bool, error) {
	return false, nil
}

func (fallbackCollection) Find(context.Context, interface{}, interface{}, FindOptions) error {
	return nil
}

func (fallbackCollection) UpdateOne(context.Context, interface{}, interface{}, bool) (*UpdateResult, error) {
	return &UpdateResult{UpsertedID: FallbackInsertedID}, nil
}

func (fallbackCollection) CountDocuments(context.Context, interface{}) (int64, error) {
	return 0, nil
}

func (fallbackCollection) Aggregate(context.Context, interface{}, interface{}) error {
	return nil
}

func (fallbackCollection) CreateIndex(context.Context, mongo.IndexModel) (string, error) {
	return FallbackIndexName, nil
}
