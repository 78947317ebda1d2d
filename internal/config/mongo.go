package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	// Create indexes
	err = createIndexes(client, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

func createIndexes(client *mongo.Client, dbName string) error {
	db := client.Database(dbName)

	// Document registry indexes
	documentsCollection := db.Collection("chatbot_documents")
	documentIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "file_name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "upload_timestamp", Value: -1}},
		},
	}
	_, err := documentsCollection.Indexes().CreateMany(context.Background(), documentIndexes)
	if err != nil {
		return err
	}

	// Response cache indexes: exact-match question key, admin listing order
	cacheCollection := db.Collection("chatbot_cache")
	cacheIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "question", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "last_accessed", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "created_at", Value: 1}},
		},
	}
	_, err = cacheCollection.Indexes().CreateMany(context.Background(), cacheIndexes)
	if err != nil {
		return err
	}

	return nil
}
