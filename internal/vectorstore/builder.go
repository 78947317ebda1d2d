package vectorstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"encoding/json"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"village-chatbot-backend/models"
	"village-chatbot-backend/utils"
)

// Builder is the exclusive writer for an indexing run. Opening it takes
// bbolt's file lock; Close releases it and makes the run visible to the
// next Load.
type Builder struct {
	db *bbolt.DB
}

// OpenBuilder opens the index file under dir for writing. With rebuild set,
// any existing index file is removed first so the run starts from empty.
func OpenBuilder(dir string, rebuild bool) (*Builder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	path := filepath.Join(dir, indexFileName)
	if rebuild {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove old index: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{bucketVectors, bucketChunks, bucketBlobs, bucketDocChunks}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Builder{db: db}, nil
}

// AddBatch stores one embedded batch. chunks and vectors are index-aligned.
func (b *Builder) AddBatch(chunks []models.TextChunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vectors))
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		vectorsBucket := tx.Bucket(bucketVectors)
		chunksBucket := tx.Bucket(bucketChunks)
		blobsBucket := tx.Bucket(bucketBlobs)
		docChunksBucket := tx.Bucket(bucketDocChunks)

		perDoc := make(map[string][]string)

		for i, chunk := range chunks {
			id := uuid.New().String()

			vecData, err := json.Marshal(storedVector{V: vectors[i]})
			if err != nil {
				return err
			}
			if err := vectorsBucket.Put([]byte(id), vecData); err != nil {
				return err
			}

			compressed, algorithm, err := utils.CompressText(chunk.Text)
			if err != nil {
				return fmt.Errorf("failed to compress chunk text: %w", err)
			}
			if err := blobsBucket.Put([]byte(id), compressed); err != nil {
				return err
			}

			meta := chunkMeta{
				Source:     chunk.Metadata.Source,
				UploadedAt: chunk.Metadata.UploadedAt,
				FileID:     chunk.Metadata.FileID,
				Algorithm:  string(algorithm),
			}
			metaData, err := json.Marshal(meta)
			if err != nil {
				return err
			}
			if err := chunksBucket.Put([]byte(id), metaData); err != nil {
				return err
			}

			perDoc[chunk.Metadata.FileID] = append(perDoc[chunk.Metadata.FileID], id)
		}

		for fileID, ids := range perDoc {
			var existing []string
			if data := docChunksBucket.Get([]byte(fileID)); data != nil {
				json.Unmarshal(data, &existing)
			}
			existing = append(existing, ids...)
			data, err := json.Marshal(existing)
			if err != nil {
				return err
			}
			if err := docChunksBucket.Put([]byte(fileID), data); err != nil {
				return err
			}
		}

		return nil
	})
}

// DeleteByFileID removes every chunk that came from the given registry
// document. Incremental runs call this before re-adding a document so stale
// chunks never survive a re-index. The registry id is the key, not the
// display name: two documents may share an original file name.
func (b *Builder) DeleteByFileID(fileID string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		docChunksBucket := tx.Bucket(bucketDocChunks)
		data := docChunksBucket.Get([]byte(fileID))
		if data == nil {
			return nil
		}

		var ids []string
		if err := json.Unmarshal(data, &ids); err != nil {
			return err
		}

		vectorsBucket := tx.Bucket(bucketVectors)
		chunksBucket := tx.Bucket(bucketChunks)
		blobsBucket := tx.Bucket(bucketBlobs)
		for _, id := range ids {
			vectorsBucket.Delete([]byte(id))
			chunksBucket.Delete([]byte(id))
			blobsBucket.Delete([]byte(id))
		}

		return docChunksBucket.Delete([]byte(fileID))
	})
}

// Count returns the number of stored chunks.
func (b *Builder) Count() (int, error) {
	count := 0
	err := b.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket(bucketChunks).Stats().KeyN
		return nil
	})
	return count, err
}

// Close releases the file lock. The run's writes become visible to readers.
func (b *Builder) Close() error {
	return b.db.Close()
}
