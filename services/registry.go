package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"village-chatbot-backend/models"
)

// DocumentRegistry tracks every uploaded document and its indexing status
// in the chatbot_documents collection. The registry is the source of truth
// for what an indexing run has to do.
type DocumentRegistry struct {
	collection *mongo.Collection
}

func NewDocumentRegistry(db *mongo.Database) *DocumentRegistry {
	return &DocumentRegistry{
		collection: db.Collection("chatbot_documents"),
	}
}

// Register records an uploaded document as PENDING. Re-uploading a file
// with the same stored name resets its status so the next run picks it up.
func (r *DocumentRegistry) Register(ctx context.Context, fileName, originalName, filePath string) (*models.DocumentRecord, error) {
	now := time.Now().UTC()

	filter := bson.M{"file_name": fileName}
	update := bson.M{
		"$set": bson.M{
			"file_name":        fileName,
			"original_name":    originalName,
			"file_path":        filePath,
			"status":           models.StatusPending,
			"upload_timestamp": now,
		},
		"$unset": bson.M{"last_indexed_timestamp": ""},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var record models.DocumentRecord
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&record)
	if err != nil {
		return nil, fmt.Errorf("failed to register document: %w", err)
	}
	return &record, nil
}

// GetByID fetches one document record.
func (r *DocumentRegistry) GetByID(ctx context.Context, id string) (*models.DocumentRecord, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid document id: %w", err)
	}

	var record models.DocumentRecord
	err = r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&record)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("document not found")
		}
		return nil, err
	}
	return &record, nil
}

// ListAll returns every registered document, newest upload first.
func (r *DocumentRegistry) ListAll(ctx context.Context) ([]models.DocumentRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "upload_timestamp", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := []models.DocumentRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// ListPending returns documents an incremental run should process: fresh
// uploads plus previously failed ones. UNSUPPORTED stays as-is because a
// retry cannot change the file's format.
func (r *DocumentRegistry) ListPending(ctx context.Context) ([]models.DocumentRecord, error) {
	filter := bson.M{"status": bson.M{"$in": []string{
		models.StatusPending,
		models.StatusErrorNotFound,
		models.StatusErrorParsing,
	}}}

	opts := options.Find().SetSort(bson.D{{Key: "upload_timestamp", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := []models.DocumentRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// UpdateStatus moves a document to a new status. Reaching INDEXED also
// stamps last_indexed_timestamp.
func (r *DocumentRegistry) UpdateStatus(ctx context.Context, id primitive.ObjectID, status string) error {
	set := bson.M{"status": status}
	if status == models.StatusIndexed {
		set["last_indexed_timestamp"] = time.Now().UTC()
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("document not found")
	}
	return nil
}

// Delete removes a registry record.
func (r *DocumentRegistry) Delete(ctx context.Context, id string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid document id: %w", err)
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("document not found")
	}
	return nil
}

// Stats aggregates document counts per status group.
func (r *DocumentRegistry) Stats(ctx context.Context) (*models.DocumentStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []struct {
		Status string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}

	stats := &models.DocumentStats{}
	for _, res := range results {
		stats.Total += res.Count
		switch res.Status {
		case models.StatusIndexed:
			stats.Indexed += res.Count
		case models.StatusPending:
			stats.Pending += res.Count
		case models.StatusErrorNotFound, models.StatusErrorParsing:
			stats.Failed += res.Count
		case models.StatusUnsupported:
			stats.Unsupported += res.Count
		}
	}
	return stats, nil
}
