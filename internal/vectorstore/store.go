// Package vectorstore persists embedded document chunks in a single bbolt
// file and serves nearest-neighbour search over an in-memory copy.
//
// Writes and reads never share a bbolt handle. The indexing worker opens
// the file through a Builder, which holds bbolt's exclusive file lock for
// the duration of a run, so readers observe either the previous index or
// the finished one, never a half-written state. The server loads the whole
// index into memory via Load and closes the file immediately, then swaps
// the loaded Index into a Holder.
package vectorstore

import (
	"village-chatbot-backend/models"
)

const indexFileName = "chunks.db"

var (
	bucketVectors   = []byte("vectors")
	bucketChunks    = []byte("chunks")
	bucketBlobs     = []byte("blobs")
	bucketDocChunks = []byte("doc_chunks")
)

type storedVector struct {
	V []float32 `json:"v"`
}

type chunkMeta struct {
	Source     string `json:"source"`
	UploadedAt string `json:"uploaded_at"`
	FileID     string `json:"file_id"`
	Algorithm  string `json:"algo"`
}

// SearchResult pairs a retrieved chunk with its cosine similarity score.
type SearchResult struct {
	Chunk models.TextChunk
	Score float64
}
