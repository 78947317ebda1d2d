package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DocumentRecord is one uploaded document tracked by the registry.
// The indexing pipeline only ever advances Status; file bytes live on disk
// under FilePath/FileName.
type DocumentRecord struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FileName             string             `bson:"file_name" json:"file_name"`
	OriginalName         string             `bson:"original_name" json:"original_name"`
	FilePath             string             `bson:"file_path" json:"file_path"`
	Status               string             `bson:"status" json:"status"`
	UploadTimestamp      time.Time          `bson:"upload_timestamp" json:"upload_timestamp"`
	LastIndexedTimestamp *time.Time         `bson:"last_indexed_timestamp,omitempty" json:"last_indexed_timestamp,omitempty"`
}

// Document status constants. A record starts PENDING and is advanced by the
// indexing pipeline; error states are terminal for that pass.
const (
	StatusPending       = "PENDING"
	StatusIndexed       = "INDEXED"
	StatusErrorNotFound = "ERROR_NOT_FOUND"
	StatusErrorParsing  = "ERROR_PARSING"
	StatusUnsupported   = "UNSUPPORTED"
)

// DocumentStats aggregates registry status counts for the admin panel.
type DocumentStats struct {
	Total       int64 `json:"total"`
	Indexed     int64 `json:"indexed"`
	Pending     int64 `json:"pending"`
	Failed      int64 `json:"failed"`
	Unsupported int64 `json:"unsupported"`
}
