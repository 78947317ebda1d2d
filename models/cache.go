package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CacheEntry maps an exact question string to a previously computed answer.
// At most one live entry exists per question; expiry is checked lazily on read.
type CacheEntry struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Question     string             `bson:"question" json:"question"`
	Answer       string             `bson:"answer" json:"answer"`
	Source       string             `bson:"source" json:"source"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	LastAccessed time.Time          `bson:"last_accessed" json:"last_accessed"`
	UsageCount   int64              `bson:"usage_count" json:"usage_count"`
}

// CacheStats summarizes cache usage for the admin panel.
type CacheStats struct {
	Total      int64   `json:"total"`
	UsedKB     float64 `json:"usedKB"`
	MaxKB      float64 `json:"maxKB"`
	MaxMB      float64 `json:"maxMB"`
	Percent    float64 `json:"percent"`
	TotalChars int64   `json:"-"`
}
