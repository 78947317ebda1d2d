package services

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"village-chatbot-backend/internal/logger"
	"village-chatbot-backend/models"
)

// ResponseCache stores answered questions in the chatbot_cache collection
// keyed by the exact question text, trimmed of surrounding whitespace.
//
// TTL is enforced lazily on read, so a stale entry can never be served
// even if the background sweep has not run yet.
type ResponseCache struct {
	collection *mongo.Collection
	ttl        time.Duration
	maxMB      float64
}

func NewResponseCache(db *mongo.Database, ttl time.Duration, maxMB float64) *ResponseCache {
	return &ResponseCache{
		collection: db.Collection("chatbot_cache"),
		ttl:        ttl,
		maxMB:      maxMB,
	}
}

// cacheKey trims the question but deliberately keeps its case: the cache
// contract is exact-match, and widening it would serve one phrasing's
// answer for another.
func cacheKey(question string) string {
	return strings.TrimSpace(question)
}

// Get looks up a cached answer. Expired entries are deleted on sight and
// reported as a miss. Hits bump last_accessed and usage_count.
func (c *ResponseCache) Get(ctx context.Context, question string) (*models.CacheEntry, bool, error) {
	key := cacheKey(question)

	var entry models.CacheEntry
	err := c.collection.FindOne(ctx, bson.M{"question": key}).Decode(&entry)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, false, nil
		}
		return nil, false, err
	}

	if time.Since(entry.CreatedAt) > c.ttl {
		if _, err := c.collection.DeleteOne(ctx, bson.M{"_id": entry.ID}); err != nil {
			logger.Warn("Failed to delete expired cache entry", "error", err)
		}
		return nil, false, nil
	}

	_, err = c.collection.UpdateOne(ctx, bson.M{"_id": entry.ID}, bson.M{
		"$set": bson.M{"last_accessed": time.Now().UTC()},
		"$inc": bson.M{"usage_count": 1},
	})
	if err != nil {
		logger.Warn("Failed to update cache entry access", "error", err)
	}

	return &entry, true, nil
}

// Set stores an answer, replacing any previous entry for the question.
// Replacement resets created_at, so the TTL clock restarts.
func (c *ResponseCache) Set(ctx context.Context, question, answer, source string) error {
	now := time.Now().UTC()

	_, err := c.collection.ReplaceOne(ctx,
		bson.M{"question": cacheKey(question)},
		models.CacheEntry{
			Question:     cacheKey(question),
			Answer:       answer,
			Source:       source,
			CreatedAt:    now,
			LastAccessed: now,
			UsageCount:   1,
		},
		options.Replace().SetUpsert(true),
	)
	return err
}

// List returns all cache entries, most recently used first.
func (c *ResponseCache) List(ctx context.Context) ([]models.CacheEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_accessed", Value: -1}})
	cursor, err := c.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	entries := []models.CacheEntry{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Delete removes a single cache entry.
func (c *ResponseCache) Delete(ctx context.Context, id string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}
	_, err = c.collection.DeleteOne(ctx, bson.M{"_id": objID})
	return err
}

// Clear drops every cached answer. Called after each finished indexing run
// so no response survives a knowledge base change.
func (c *ResponseCache) Clear(ctx context.Context) (int64, error) {
	result, err := c.collection.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// SweepExpired removes entries past their TTL. The lazy check in Get is
// the correctness floor; the sweep just keeps the collection small.
func (c *ResponseCache) SweepExpired(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-c.ttl)
	result, err := c.collection.DeleteMany(ctx, bson.M{"created_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// Stats summarizes cache usage for the admin dashboard.
func (c *ResponseCache) Stats(ctx context.Context) (*models.CacheStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"count": bson.M{"$sum": 1},
			"chars": bson.M{"$sum": bson.M{"$add": bson.A{
				bson.M{"$strLenCP": "$question"},
				bson.M{"$strLenCP": "$answer"},
			}}},
		}}},
	}

	cursor, err := c.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []struct {
		Count int64 `bson:"count"`
		Chars int64 `bson:"chars"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}

	stats := &models.CacheStats{MaxMB: c.maxMB, MaxKB: c.maxMB * 1024}
	if len(results) > 0 {
		stats.Total = results[0].Count
		stats.TotalChars = results[0].Chars
		stats.UsedKB = float64(results[0].Chars) / 1024
	}
	if stats.MaxKB > 0 {
		stats.Percent = float64(stats.UsedKB) / float64(stats.MaxKB) * 100
	}
	return stats, nil
}
