package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"village-chatbot-backend/internal/logger"
	"village-chatbot-backend/internal/telemetry"
	"village-chatbot-backend/internal/vectorstore"
	"village-chatbot-backend/models"
)

// IndexerRegistry is the slice of the document registry the indexer uses.
type IndexerRegistry interface {
	ListAll(ctx context.Context) ([]models.DocumentRecord, error)
	ListPending(ctx context.Context) ([]models.DocumentRecord, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status string) error
}

// DocumentEmbedder embeds chunk batches.
type DocumentEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// ProgressReporter publishes run progress for the /index-progress endpoint.
type ProgressReporter interface {
	Set(ctx context.Context, progress models.IndexProgress) error
}

// Indexer runs the document indexing pipeline: extract and chunk each
// document (first half of the progress bar), then embed and persist the
// chunks in batches (second half).
//
// Failures are isolated per document: a file that cannot be read or
// parsed gets an error status and the run continues. A document whose
// embedding call fails keeps its current status so the next run retries it.
type Indexer struct {
	registry  IndexerRegistry
	embedder  DocumentEmbedder
	progress  ProgressReporter
	splitter  *TextSplitter
	indexDir  string
	batchSize int
	metrics   *telemetry.Metrics
}

func NewIndexer(
	registry IndexerRegistry,
	embedder DocumentEmbedder,
	progress ProgressReporter,
	splitter *TextSplitter,
	indexDir string,
	batchSize int,
	metrics *telemetry.Metrics,
) *Indexer {
	return &Indexer{
		registry:  registry,
		embedder:  embedder,
		progress:  progress,
		splitter:  splitter,
		indexDir:  indexDir,
		batchSize: batchSize,
		metrics:   metrics,
	}
}

type preparedDoc struct {
	record models.DocumentRecord
	chunks []models.TextChunk
}

// Run executes one indexing run. Rebuild mode starts from an empty index
// and reprocesses every document; incremental mode only processes pending
// and previously failed documents and replaces their chunks in place.
func (ix *Indexer) Run(ctx context.Context, mode, runID string) error {
	start := time.Now()
	rebuild := mode == models.IndexModeRebuild

	ix.report(ctx, 0, "Memulai proses indexing...", true, runID, mode)

	var docs []models.DocumentRecord
	var err error
	if rebuild {
		docs, err = ix.registry.ListAll(ctx)
	} else {
		docs, err = ix.registry.ListPending(ctx)
	}
	if err != nil {
		ix.report(ctx, 0, "Gagal membaca daftar dokumen.", false, runID, mode)
		return fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	if len(docs) == 0 {
		logger.Info("No documents to index", "mode", mode)
		ix.report(ctx, 100, "Tidak ada dokumen yang perlu diindeks.", false, runID, mode)
		return nil
	}

	// Phase 1: extract and chunk, 0-50%. The index file stays untouched
	// until this phase proves there is something to write: a rebuild in
	// which every document fails must not destroy the existing index.
	prepared := make([]preparedDoc, 0, len(docs))
	failed := 0
	for i, doc := range docs {
		chunks, status := ix.prepareDocument(doc)
		if status != "" {
			ix.setStatus(ctx, doc, status)
			failed++
		} else {
			prepared = append(prepared, preparedDoc{record: doc, chunks: chunks})
		}

		percent := (i + 1) * 50 / len(docs)
		ix.report(ctx, percent, fmt.Sprintf("Memproses dokumen %d dari %d...", i+1, len(docs)), true, runID, mode)
	}

	if len(prepared) == 0 {
		logger.Warn("No documents survived extraction, index left untouched", "mode", mode, "failed", failed)
		message := fmt.Sprintf("Indexing selesai. 0 dokumen diindeks, %d gagal, 0 ditunda.", failed)
		ix.report(ctx, 100, message, false, runID, mode)
		return nil
	}

	builder, err := vectorstore.OpenBuilder(ix.indexDir, rebuild)
	if err != nil {
		ix.report(ctx, 50, "Gagal membuka index.", false, runID, mode)
		return fmt.Errorf("failed to open index builder: %w", err)
	}
	defer builder.Close()

	// Phase 2: embed and persist, 50-100%.
	indexed := 0
	skipped := 0
	for i, doc := range prepared {
		if err := ix.embedDocument(ctx, builder, doc, rebuild); err != nil {
			// Status untouched: the next incremental run retries it.
			logger.Error("Failed to embed document, will retry next run",
				"file", doc.record.FileName, "error", err)
			skipped++
		} else {
			ix.setStatus(ctx, doc.record, models.StatusIndexed)
			indexed++
		}

		percent := 50 + (i+1)*50/len(prepared)
		ix.report(ctx, percent, fmt.Sprintf("Menyimpan embedding %d dari %d...", i+1, len(prepared)), true, runID, mode)
	}

	if err := builder.Close(); err != nil {
		logger.Error("Failed to close index builder", "error", err)
	}

	message := fmt.Sprintf("Indexing selesai. %d dokumen diindeks, %d gagal, %d ditunda.", indexed, failed, skipped)
	ix.report(ctx, 100, message, false, runID, mode)

	logger.Info("Indexing run finished",
		"mode", mode, "run_id", runID,
		"indexed", indexed, "failed", failed, "skipped", skipped,
		"duration", time.Since(start))

	if ix.metrics != nil {
		ix.metrics.RecordIndexRun(mode, int64(len(docs)), time.Since(start).Seconds())
	}
	return nil
}

// prepareDocument extracts and chunks one document. A non-empty returned
// status means the document failed and should be marked.
func (ix *Indexer) prepareDocument(doc models.DocumentRecord) ([]models.TextChunk, string) {
	text, err := ExtractText(doc.FilePath)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			logger.Warn("Document file missing", "file", doc.FileName)
			return nil, models.StatusErrorNotFound
		case errors.Is(err, ErrUnsupportedFormat):
			logger.Warn("Document format unsupported", "file", doc.FileName)
			return nil, models.StatusUnsupported
		default:
			logger.Error("Document extraction failed", "file", doc.FileName, "error", err)
			return nil, models.StatusErrorParsing
		}
	}

	pieces := ix.splitter.Split(text)
	if len(pieces) == 0 {
		logger.Warn("Document produced no text", "file", doc.FileName)
		return nil, models.StatusErrorParsing
	}

	chunks := make([]models.TextChunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = models.TextChunk{
			Text: piece,
			Metadata: models.ChunkMetadata{
				Source:     doc.OriginalName,
				UploadedAt: doc.UploadTimestamp.UTC().Format(time.RFC3339),
				FileID:     doc.ID.Hex(),
			},
		}
	}
	return chunks, ""
}

// embedDocument embeds a document's chunks in batches and stores them.
// In incremental mode the document's previous chunks are replaced first.
func (ix *Indexer) embedDocument(ctx context.Context, builder *vectorstore.Builder, doc preparedDoc, rebuild bool) error {
	if !rebuild {
		if err := builder.DeleteByFileID(doc.record.ID.Hex()); err != nil {
			return fmt.Errorf("failed to replace old chunks: %w", err)
		}
	}

	for start := 0; start < len(doc.chunks); start += ix.batchSize {
		end := start + ix.batchSize
		if end > len(doc.chunks) {
			end = len(doc.chunks)
		}
		batch := doc.chunks[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
		}

		vectors, err := ix.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding batch failed: %w", err)
		}
		if err := builder.AddBatch(batch, vectors); err != nil {
			return fmt.Errorf("failed to store batch: %w", err)
		}
	}
	return nil
}

func (ix *Indexer) setStatus(ctx context.Context, doc models.DocumentRecord, status string) {
	if err := ix.registry.UpdateStatus(ctx, doc.ID, status); err != nil {
		logger.Error("Failed to update document status", "file", doc.FileName, "status", status, "error", err)
	}
}

func (ix *Indexer) report(ctx context.Context, percent int, message string, running bool, runID, mode string) {
	err := ix.progress.Set(ctx, models.IndexProgress{
		Percent: percent,
		Message: message,
		Running: running,
		RunID:   runID,
		Mode:    mode,
	})
	if err != nil {
		logger.Warn("Failed to publish index progress", "error", err)
	}
}
