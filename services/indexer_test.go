package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"village-chatbot-backend/internal/vectorstore"
	"village-chatbot-backend/models"
)

type fakeRegistry struct {
	docs  []*models.DocumentRecord
	stats map[string]string // file name -> last status set
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{stats: map[string]string{}}
}

func (r *fakeRegistry) add(fileName, filePath, status string) *models.DocumentRecord {
	doc := &models.DocumentRecord{
		ID:              primitive.NewObjectID(),
		FileName:        fileName,
		OriginalName:    fileName,
		FilePath:        filePath,
		Status:          status,
		UploadTimestamp: time.Now().UTC(),
	}
	r.docs = append(r.docs, doc)
	return doc
}

func (r *fakeRegistry) ListAll(_ context.Context) ([]models.DocumentRecord, error) {
	out := make([]models.DocumentRecord, len(r.docs))
	for i, d := range r.docs {
		out[i] = *d
	}
	return out, nil
}

func (r *fakeRegistry) ListPending(_ context.Context) ([]models.DocumentRecord, error) {
	var out []models.DocumentRecord
	for _, d := range r.docs {
		switch d.Status {
		case models.StatusPending, models.StatusErrorNotFound, models.StatusErrorParsing:
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r *fakeRegistry) UpdateStatus(_ context.Context, id primitive.ObjectID, status string) error {
	for _, d := range r.docs {
		if d.ID == id {
			d.Status = status
			r.stats[d.FileName] = status
			return nil
		}
	}
	return errors.New("document not found")
}

type fakeDocEmbedder struct {
	failFor string // substring that makes a batch fail
	calls   int
}

func (e *fakeDocEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if e.failFor != "" && strings.Contains(text, e.failFor) {
			return nil, errors.New("embedding backend unavailable")
		}
		vectors[i] = []float32{float32(len(text)), 1}
	}
	return vectors, nil
}

type progressRecorder struct {
	updates []models.IndexProgress
}

func (p *progressRecorder) Set(_ context.Context, progress models.IndexProgress) error {
	p.updates = append(p.updates, progress)
	return nil
}

func (p *progressRecorder) last() models.IndexProgress {
	return p.updates[len(p.updates)-1]
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newTestIndexer(registry *fakeRegistry, embedder *fakeDocEmbedder, progress *progressRecorder, indexDir string) *Indexer {
	return NewIndexer(registry, embedder, progress, NewTextSplitter(100, 20), indexDir, 25, nil)
}

func TestIndexerRebuildIndexesAllDocuments(t *testing.T) {
	docDir := t.TempDir()
	indexDir := t.TempDir()

	registry := newFakeRegistry()
	registry.add("profil.txt", writeDoc(t, docDir, "profil.txt", "profil desa alas kokon"), models.StatusPending)
	registry.add("aturan.txt", writeDoc(t, docDir, "aturan.txt", "peraturan desa tentang sampah"), models.StatusIndexed)

	progress := &progressRecorder{}
	ix := newTestIndexer(registry, &fakeDocEmbedder{}, progress, indexDir)

	require.NoError(t, ix.Run(context.Background(), models.IndexModeRebuild, "run-1"))

	assert.Equal(t, models.StatusIndexed, registry.stats["profil.txt"])
	assert.Equal(t, models.StatusIndexed, registry.stats["aturan.txt"])

	idx, err := vectorstore.Load(indexDir)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Count())

	last := progress.last()
	assert.Equal(t, 100, last.Percent)
	assert.False(t, last.Running)
	assert.Equal(t, "run-1", last.RunID)
}

func TestIndexerIncrementalSkipsIndexedDocuments(t *testing.T) {
	docDir := t.TempDir()
	indexDir := t.TempDir()

	registry := newFakeRegistry()
	registry.add("baru.txt", writeDoc(t, docDir, "baru.txt", "dokumen baru"), models.StatusPending)
	registry.add("lama.txt", writeDoc(t, docDir, "lama.txt", "dokumen lama"), models.StatusIndexed)

	embedder := &fakeDocEmbedder{}
	ix := newTestIndexer(registry, embedder, &progressRecorder{}, indexDir)

	require.NoError(t, ix.Run(context.Background(), models.IndexModeIncremental, "run-1"))

	idx, err := vectorstore.Load(indexDir)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Count(), "only the pending document is processed")
	assert.Equal(t, models.StatusIndexed, registry.stats["baru.txt"])
	_, touched := registry.stats["lama.txt"]
	assert.False(t, touched)
}

func TestIndexerMarksMissingAndUnsupportedDocuments(t *testing.T) {
	docDir := t.TempDir()
	indexDir := t.TempDir()

	registry := newFakeRegistry()
	registry.add("hilang.txt", filepath.Join(docDir, "hilang.txt"), models.StatusPending)
	registry.add("gambar.png", writeDoc(t, docDir, "gambar.png", "not really text"), models.StatusPending)
	registry.add("bagus.txt", writeDoc(t, docDir, "bagus.txt", "isi dokumen yang valid"), models.StatusPending)

	ix := newTestIndexer(registry, &fakeDocEmbedder{}, &progressRecorder{}, indexDir)
	require.NoError(t, ix.Run(context.Background(), models.IndexModeIncremental, "run-1"))

	assert.Equal(t, models.StatusErrorNotFound, registry.stats["hilang.txt"])
	assert.Equal(t, models.StatusUnsupported, registry.stats["gambar.png"])
	assert.Equal(t, models.StatusIndexed, registry.stats["bagus.txt"])

	idx, err := vectorstore.Load(indexDir)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Count())
}

func TestIndexerEmbedFailureLeavesDocumentForRetry(t *testing.T) {
	docDir := t.TempDir()
	indexDir := t.TempDir()

	registry := newFakeRegistry()
	registry.add("rusak.txt", writeDoc(t, docDir, "rusak.txt", "konten yang selalu gagal"), models.StatusPending)
	registry.add("sehat.txt", writeDoc(t, docDir, "sehat.txt", "konten normal"), models.StatusPending)

	embedder := &fakeDocEmbedder{failFor: "selalu gagal"}
	ix := newTestIndexer(registry, embedder, &progressRecorder{}, indexDir)

	require.NoError(t, ix.Run(context.Background(), models.IndexModeIncremental, "run-1"))

	// The failed document keeps PENDING so the next run retries it.
	_, touched := registry.stats["rusak.txt"]
	assert.False(t, touched)
	assert.Equal(t, models.StatusIndexed, registry.stats["sehat.txt"])

	idx, err := vectorstore.Load(indexDir)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Count())
}

func TestIndexerIncrementalReplacesReuploadedDocument(t *testing.T) {
	docDir := t.TempDir()
	indexDir := t.TempDir()

	registry := newFakeRegistry()
	doc := registry.add("profil.txt", writeDoc(t, docDir, "profil.txt", "versi pertama"), models.StatusPending)

	ix := newTestIndexer(registry, &fakeDocEmbedder{}, &progressRecorder{}, indexDir)
	require.NoError(t, ix.Run(context.Background(), models.IndexModeIncremental, "run-1"))

	// Re-upload: same file name, new content, back to PENDING.
	writeDoc(t, docDir, "profil.txt", "versi kedua yang sudah direvisi")
	doc.Status = models.StatusPending

	require.NoError(t, ix.Run(context.Background(), models.IndexModeIncremental, "run-2"))

	idx, err := vectorstore.Load(indexDir)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Count(), "old chunks are replaced, not duplicated")

	results := idx.Search([]float32{1, 1}, 10)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Chunk.Text, "versi kedua")
}

func TestIndexerRebuildWithAllDocumentsFailingKeepsIndex(t *testing.T) {
	docDir := t.TempDir()
	indexDir := t.TempDir()

	registry := newFakeRegistry()
	path := writeDoc(t, docDir, "profil.txt", "profil desa alas kokon")
	registry.add("profil.txt", path, models.StatusPending)

	ix := newTestIndexer(registry, &fakeDocEmbedder{}, &progressRecorder{}, indexDir)
	require.NoError(t, ix.Run(context.Background(), models.IndexModeRebuild, "run-1"))

	idx, err := vectorstore.Load(indexDir)
	require.NoError(t, err)
	require.Equal(t, 1, idx.Count())

	// Second rebuild with the file gone: every document fails extraction,
	// so the persisted index must survive untouched.
	require.NoError(t, os.Remove(path))

	progress := &progressRecorder{}
	ix = newTestIndexer(registry, &fakeDocEmbedder{}, progress, indexDir)
	require.NoError(t, ix.Run(context.Background(), models.IndexModeRebuild, "run-2"))

	assert.Equal(t, models.StatusErrorNotFound, registry.stats["profil.txt"])

	idx, err = vectorstore.Load(indexDir)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Count(), "index was wiped even though no chunks were accumulated")

	last := progress.last()
	assert.Equal(t, 100, last.Percent)
	assert.False(t, last.Running)
	assert.Contains(t, last.Message, "0 dokumen diindeks")
}

func TestIndexerChunksCarryOriginalDocumentName(t *testing.T) {
	docDir := t.TempDir()
	indexDir := t.TempDir()

	registry := newFakeRegistry()
	stored := "3f2a-profil.txt"
	doc := registry.add(stored, writeDoc(t, docDir, stored, "profil desa"), models.StatusPending)
	doc.OriginalName = "profil.txt"

	ix := newTestIndexer(registry, &fakeDocEmbedder{}, &progressRecorder{}, indexDir)
	require.NoError(t, ix.Run(context.Background(), models.IndexModeIncremental, "run-1"))

	idx, err := vectorstore.Load(indexDir)
	require.NoError(t, err)
	results := idx.Search([]float32{1, 1}, 1)
	require.Len(t, results, 1)
	assert.Equal(t, "profil.txt", results[0].Chunk.Metadata.Source, "provenance shows the upload name, not the stored one")
	assert.Equal(t, doc.ID.Hex(), results[0].Chunk.Metadata.FileID)
}

func TestIndexerNoDocumentsFinishesImmediately(t *testing.T) {
	progress := &progressRecorder{}
	ix := newTestIndexer(newFakeRegistry(), &fakeDocEmbedder{}, progress, t.TempDir())

	require.NoError(t, ix.Run(context.Background(), models.IndexModeIncremental, "run-1"))

	last := progress.last()
	assert.Equal(t, 100, last.Percent)
	assert.False(t, last.Running)
}

func TestIndexerProgressCoversBothPhases(t *testing.T) {
	docDir := t.TempDir()

	registry := newFakeRegistry()
	registry.add("a.txt", writeDoc(t, docDir, "a.txt", "dokumen a"), models.StatusPending)
	registry.add("b.txt", writeDoc(t, docDir, "b.txt", "dokumen b"), models.StatusPending)

	progress := &progressRecorder{}
	ix := newTestIndexer(registry, &fakeDocEmbedder{}, progress, t.TempDir())
	require.NoError(t, ix.Run(context.Background(), models.IndexModeRebuild, "run-1"))

	sawExtractPhase := false
	sawEmbedPhase := false
	prev := -1
	for _, update := range progress.updates {
		assert.GreaterOrEqual(t, update.Percent, prev, "progress never goes backwards")
		prev = update.Percent
		if update.Running && update.Percent > 0 && update.Percent <= 50 {
			sawExtractPhase = true
		}
		if update.Running && update.Percent > 50 {
			sawEmbedPhase = true
		}
	}
	assert.True(t, sawExtractPhase)
	assert.True(t, sawEmbedPhase)
	assert.Equal(t, 100, progress.last().Percent)
}
