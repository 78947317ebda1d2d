package models

// TextChunk is a bounded text segment produced from one document's extracted
// text. Metadata is attached by the indexing pipeline before embedding; chunks
// are ephemeral until persisted into the vector index.
type TextChunk struct {
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ChunkMetadata records the provenance of a chunk.
type ChunkMetadata struct {
	Source     string `json:"source"`
	UploadedAt string `json:"uploaded_at"`
	FileID     string `json:"file_id"`
}
