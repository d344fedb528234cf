package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DocumentType classifies a persisted document
type DocumentType string

const (
	DocumentPDF   DocumentType = "pdf"
	DocumentImage DocumentType = "image"
	DocumentText  DocumentType = "text"
	DocumentOther DocumentType = "other"
)

// Document is a persisted artifact derived from processed input.
// It is created on first successful persistence and updated only when the
// same source (same fingerprint) is processed again.
type Document struct {
	ID               primitive.ObjectID     `bson:"_id,omitempty" json:"id,omitempty"`
	Title            string                 `bson:"title" json:"title"`
	Description      string                 `bson:"description,omitempty" json:"description,omitempty"`
	Filename         string                 `bson:"filename,omitempty" json:"filename,omitempty"`
	MimeType         string                 `bson:"mime_type,omitempty" json:"mime_type,omitempty"`
	Type             DocumentType           `bson:"type" json:"type"`
	Fingerprint      string                 `bson:"fingerprint" json:"fingerprint"`
	Content          string                 `bson:"content" json:"content"`
	StructuredData   map[string]interface{} `bson:"structured_data,omitempty" json:"structured_data,omitempty"`
	Metadata         map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Analysis         TextAnalysis           `bson:"analysis" json:"analysis"`
	VectorEmbedding  []float64              `bson:"vector_embedding,omitempty" json:"vector_embedding,omitempty"`
	RelatedDocuments []RelatedDocument      `bson:"related_documents" json:"related_documents"`
	CreatedAt        time.Time              `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time              `bson:"updated_at" json:"updated_at"`
}

// RelatedDocument is a weak reference to another document; it never implies ownership
type RelatedDocument struct {
	DocumentID   primitive.ObjectID `bson:"document_id" json:"document_id"`
	Relationship string             `bson:"relationship" json:"relationship"`
	Score        float64            `bson:"score" json:"score"`
}

// LiveDataRecord is a cached live-data fetch stored in the live_data collection
type LiveDataRecord struct {
	ID        primitive.ObjectID     `bson:"_id,omitempty" json:"id,omitempty"`
	Source    string                 `bson:"source" json:"source"`
	Query     string                 `bson:"query" json:"query"`
	Data      map[string]interface{} `bson:"data" json:"data"`
	Cached    bool                   `bson:"cached" json:"cached"`
	FetchedAt time.Time              `bson:"fetched_at" json:"fetched_at"`
	ExpiresAt time.Time              `bson:"expires_at" json:"expires_at"`
}

// Expired reports whether the record must be refetched at now
func (r *LiveDataRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
