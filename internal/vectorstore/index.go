package vectorstore

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"village-chatbot-backend/models"
	"village-chatbot-backend/utils"
)

// Index is an immutable in-memory snapshot of the persisted index. Load
// reads everything and closes the file, so a loaded Index never contends
// with the indexing worker for the bbolt lock.
type Index struct {
	entries []indexEntry
}

type indexEntry struct {
	vector []float32
	chunk  models.TextChunk
}

// Load reads the index file under dir into memory. A missing file is not
// an error: it returns an empty Index, which callers treat as
// "knowledge base not ready".
func Load(dir string) (*Index, error) {
	path := filepath.Join(dir, indexFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Index{}, nil
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{ReadOnly: true, Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}
	defer db.Close()

	var entries []indexEntry
	err = db.View(func(tx *bbolt.Tx) error {
		vectorsBucket := tx.Bucket(bucketVectors)
		chunksBucket := tx.Bucket(bucketChunks)
		blobsBucket := tx.Bucket(bucketBlobs)
		if vectorsBucket == nil || chunksBucket == nil || blobsBucket == nil {
			return nil
		}

		return vectorsBucket.ForEach(func(k, v []byte) error {
			var stored storedVector
			if err := json.Unmarshal(v, &stored); err != nil {
				return nil // Skip corrupted entries
			}

			metaData := chunksBucket.Get(k)
			if metaData == nil {
				return nil
			}
			var meta chunkMeta
			if err := json.Unmarshal(metaData, &meta); err != nil {
				return nil
			}

			text, err := utils.DecompressText(blobsBucket.Get(k), utils.CompressionAlgorithm(meta.Algorithm))
			if err != nil {
				return nil
			}

			entries = append(entries, indexEntry{
				vector: stored.V,
				chunk: models.TextChunk{
					Text: text,
					Metadata: models.ChunkMetadata{
						Source:     meta.Source,
						UploadedAt: meta.UploadedAt,
						FileID:     meta.FileID,
					},
				},
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return &Index{entries: entries}, nil
}

// Search returns the k chunks most similar to the query vector, scored by
// cosine similarity, best first. Brute force over all entries.
func (idx *Index) Search(query []float32, k int) []SearchResult {
	if idx == nil || len(idx.entries) == 0 || k <= 0 {
		return nil
	}

	scores := make([]SearchResult, 0, len(idx.entries))
	for _, entry := range idx.entries {
		scores = append(scores, SearchResult{
			Chunk: entry.chunk,
			Score: cosineSimilarity(query, entry.vector),
		})
	}

	sort.Slice(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})

	if k > len(scores) {
		k = len(scores)
	}
	return scores[:k]
}

// Count returns the number of chunks in the snapshot.
func (idx *Index) Count() int {
	if idx == nil {
		return 0
	}
	return len(idx.entries)
}

// Ready reports whether the snapshot has any content to answer from.
func (idx *Index) Ready() bool {
	return idx.Count() > 0
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
