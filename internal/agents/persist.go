package agents

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"blackhole/internal/database"
	"blackhole/internal/extract"
	"blackhole/internal/models"
	"blackhole/internal/textproc"
)

const (
	// RelationshipSimilar labels related documents found by embedding similarity
	RelationshipSimilar = "similar_content"

	relatedThreshold  = 0.8
	maxRelated        = 5
	relatedCandidates = 200
	titleChars        = 80
)

func insertResult(ctx context.Context, store database.Store, result *models.AgentResult, now time.Time) error {
	result.CreatedAt = now
	result.UpdatedAt = now
	id, err := store.Collection(database.CollectionAgentResults).InsertOne(ctx, result)
	if err != nil {
		return &PersistenceError{Collection: database.CollectionAgentResults, Err: err}
	}
	if oid, ok := id.(primitive.ObjectID); ok {
		result.ID = oid
	}
	return nil
}

// documentPersister stores the extracted text as a Document keyed by the
// source fingerprint, so reprocessing the same bytes updates one record
func documentPersister(deps Deps) Persister {
	return func(ctx context.Context, store database.Store, p Payload, result *models.AgentResult) error {
		if p.Placeholder || strings.TrimSpace(p.Text) == "" {
			return nil
		}
		now := deps.Clock()
		doc := buildDocument(p, result, deps.EmbeddingDims, now)
		result.VectorEmbedding = doc.VectorEmbedding

		id, err := upsertDocument(ctx, store, doc, now)
		if err != nil {
			return err
		}
		if !id.IsZero() {
			result.DocumentID = &id
		}
		return nil
	}
}

func buildDocument(p Payload, result *models.AgentResult, dims int, now time.Time) *models.Document {
	source := p.Data
	if len(source) == 0 {
		source = []byte(p.Text)
	}

	doc := &models.Document{
		Title:            documentTitle(p),
		Filename:         p.Filename,
		MimeType:         p.MimeType,
		Type:             documentType(p),
		Fingerprint:      textproc.Fingerprint(source),
		Content:          p.Text,
		StructuredData:   structuredData(p),
		Analysis:         p.Analysis,
		VectorEmbedding:  textproc.Embed(p.Text, dims),
		RelatedDocuments: []models.RelatedDocument{},
		Metadata: map[string]interface{}{
			"agent":         result.Agent,
			"agent_id":      result.AgentID,
			"invocation_id": result.Metadata.InvocationID,
		},
		UpdatedAt: now,
	}
	if p.Input != nil && p.Input.URL != "" {
		doc.Metadata["source_url"] = p.Input.URL
	}
	if len(p.Analysis.Authors) > 0 {
		doc.Description = "By " + strings.Join(p.Analysis.Authors, ", ")
	}
	return doc
}

func documentTitle(p Payload) string {
	if p.Input != nil && strings.TrimSpace(p.Input.Options.Title) != "" {
		return strings.TrimSpace(p.Input.Options.Title)
	}
	if p.Filename != "" {
		return strings.TrimSuffix(p.Filename, filepath.Ext(p.Filename))
	}
	for _, line := range strings.Split(p.Text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "---") {
			return textproc.Preview(line, titleChars)
		}
	}
	return "Untitled"
}

func documentType(p Payload) models.DocumentType {
	switch {
	case p.PDF != nil || extract.IsPDFType(p.MimeType):
		return models.DocumentPDF
	case p.Image != nil || extract.IsImageType(p.MimeType):
		return models.DocumentImage
	case p.Data == nil || strings.HasPrefix(p.MimeType, "text/"):
		return models.DocumentText
	}
	return models.DocumentOther
}

func structuredData(p Payload) map[string]interface{} {
	data := map[string]interface{}{"engine": p.Engine}
	if p.PDF != nil {
		data["page_count"] = p.PDF.PageCount
		data["pages_with_text"] = p.PDF.PagesWithText
		data["page_word_counts"] = p.PDF.PageWordCounts
		data["truncated"] = p.PDF.Truncated
	}
	if p.Image != nil {
		data["width"] = p.Image.Width
		data["height"] = p.Image.Height
		data["format"] = p.Image.Format
		data["confidence"] = p.Confidence
	}
	return data
}

func upsertDocument(ctx context.Context, store database.Store, doc *models.Document, now time.Time) (primitive.ObjectID, error) {
	coll := store.Collection(database.CollectionDocuments)

	related, err := findRelated(ctx, coll, doc)
	if err != nil {
		return primitive.NilObjectID, &PersistenceError{Collection: database.CollectionDocuments, Err: err}
	}
	doc.RelatedDocuments = related

	filter := bson.M{"fingerprint": doc.Fingerprint}
	update := bson.M{
		"$set": bson.M{
			"title":             doc.Title,
			"description":       doc.Description,
			"filename":          doc.Filename,
			"mime_type":         doc.MimeType,
			"type":              doc.Type,
			"content":           doc.Content,
			"structured_data":   doc.StructuredData,
			"metadata":          doc.Metadata,
			"analysis":          doc.Analysis,
			"vector_embedding":  doc.VectorEmbedding,
			"related_documents": doc.RelatedDocuments,
			"updated_at":        now,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}
	res, err := coll.UpdateOne(ctx, filter, update, true)
	if err != nil {
		return primitive.NilObjectID, &PersistenceError{Collection: database.CollectionDocuments, Err: err}
	}
	if id, ok := res.UpsertedID.(primitive.ObjectID); ok && !id.IsZero() {
		return id, nil
	}

	var ref struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	found, err := coll.FindOne(ctx, filter, &ref)
	if err != nil {
		return primitive.NilObjectID, &PersistenceError{Collection: database.CollectionDocuments, Err: err}
	}
	if !found {
		return primitive.NilObjectID, nil
	}
	return ref.ID, nil
}

// findRelated returns up to maxRelated documents of the same type whose
// embeddings are at least relatedThreshold similar to doc's
func findRelated(ctx context.Context, coll database.Collection, doc *models.Document) ([]models.RelatedDocument, error) {
	related := []models.RelatedDocument{}
	if len(doc.VectorEmbedding) == 0 {
		return related, nil
	}

	var candidates []struct {
		ID        primitive.ObjectID `bson:"_id"`
		Embedding []float64          `bson:"vector_embedding"`
	}
	filter := bson.M{
		"type":             doc.Type,
		"fingerprint":      bson.M{"$ne": doc.Fingerprint},
		"vector_embedding": bson.M{"$exists": true},
	}
	opts := database.FindOptions{
		Limit:      relatedCandidates,
		Sort:       bson.D{{Key: "updated_at", Value: -1}},
		Projection: bson.M{"vector_embedding": 1},
	}
	if err := coll.Find(ctx, filter, &candidates, opts); err != nil {
		return nil, err
	}

	for _, c := range candidates {
		score := textproc.Cosine(doc.VectorEmbedding, c.Embedding)
		if score >= relatedThreshold {
			related = append(related, models.RelatedDocument{
				DocumentID:   c.ID,
				Relationship: RelationshipSimilar,
				Score:        score,
			})
		}
	}
	sort.SliceStable(related, func(i, j int) bool { return related[i].Score > related[j].Score })
	if len(related) > maxRelated {
		related = related[:maxRelated]
	}
	return related, nil
}
