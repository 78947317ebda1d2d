package routes

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"village-chatbot-backend/internal/config"
	"village-chatbot-backend/internal/logger"
	"village-chatbot-backend/internal/queue"
	"village-chatbot-backend/internal/vectorstore"
	"village-chatbot-backend/models"
	"village-chatbot-backend/services"
	"village-chatbot-backend/utils"
)

// AdminHandler serves the document, cache and indexing management endpoints.
type AdminHandler struct {
	cfg        *config.Config
	registry   *services.DocumentRegistry
	cache      *services.ResponseCache
	statistics *services.StatisticsService
	progress   *services.ProgressStore
	holder     *vectorstore.Holder
	queue      *asynq.Client
}

func NewAdminHandler(
	cfg *config.Config,
	registry *services.DocumentRegistry,
	cache *services.ResponseCache,
	statistics *services.StatisticsService,
	progress *services.ProgressStore,
	holder *vectorstore.Holder,
	queueClient *asynq.Client,
) *AdminHandler {
	return &AdminHandler{
		cfg:        cfg,
		registry:   registry,
		cache:      cache,
		statistics: statistics,
		progress:   progress,
		holder:     holder,
		queue:      queueClient,
	}
}

// SetupAdminRoutes registers the management endpoints.
func SetupAdminRoutes(r *gin.Engine, h *AdminHandler) {
	r.POST("/upload", h.UploadDocument)
	r.GET("/documents", h.ListDocuments)
	r.GET("/documents/stats", h.DocumentStats)
	r.GET("/documents/size", h.DocumentsSize)
	r.GET("/documents/storage", h.StorageUsage)
	r.GET("/download/:id", h.DownloadDocument)
	r.DELETE("/delete-document/:id", h.DeleteDocument)

	r.POST("/run-indexer", h.RunIndexer)
	r.POST("/run-incremental-indexer", h.RunIncrementalIndexer)
	r.GET("/index-progress", h.IndexProgress)
	r.POST("/reload-index", h.ReloadIndex)

	r.GET("/cache", h.ListCache)
	r.GET("/cache/list", h.ListCache)
	r.GET("/cache/stats", h.CacheStats)
	r.POST("/cache/clear", h.ClearCache)
	r.DELETE("/cache/delete/:id", h.DeleteCacheEntry)

	r.POST("/upload-statistik", h.UploadStatistics)
	r.GET("/download-statistik", h.DownloadStatistics)
}

// UploadDocument stores a knowledge base file and registers it as PENDING.
// The statistics table has its own endpoint and is rejected here so it never
// ends up in the document corpus.
func (h *AdminHandler) UploadDocument(c *gin.Context) {
	file, err := c.FormFile("document")
	if err != nil {
		utils.RespondWithBadRequest(c, "Tidak ada file yang diunggah.", nil)
		return
	}

	if file.Filename == filepath.Base(h.cfg.StatisticsFile) {
		utils.RespondWithBadRequest(c,
			"File statistik tidak boleh diunggah di sini. Gunakan form Kelola Data Statistik.", nil)
		return
	}

	if file.Size > h.cfg.MaxFileSize {
		utils.RespondWithBadRequest(c, "Ukuran file melebihi batas maksimal.", gin.H{
			"max_bytes": h.cfg.MaxFileSize,
		})
		return
	}

	used, err := dirSize(h.cfg.FileStorageDir)
	if err != nil {
		utils.RespondWithInternalError(c, "Gagal memeriksa kapasitas penyimpanan.", nil)
		return
	}
	if used+file.Size > h.cfg.StorageQuota {
		utils.RespondWithBadRequest(c, "Kapasitas penyimpanan dokumen sudah penuh.", gin.H{
			"used_bytes":  used,
			"quota_bytes": h.cfg.StorageQuota,
		})
		return
	}

	storedName := uuid.NewString() + "-" + filepath.Base(file.Filename)
	storedPath := filepath.Join(h.cfg.FileStorageDir, storedName)

	if err := os.MkdirAll(h.cfg.FileStorageDir, 0o755); err != nil {
		utils.RespondWithInternalError(c, "Gagal menyiapkan direktori penyimpanan.", nil)
		return
	}
	if err := c.SaveUploadedFile(file, storedPath); err != nil {
		logger.Error("Failed to save uploaded file", "file", file.Filename, "error", err)
		utils.RespondWithInternalError(c, "Gagal menyimpan file.", nil)
		return
	}

	record, err := h.registry.Register(c.Request.Context(), storedName, file.Filename, storedPath)
	if err != nil {
		logger.Error("Failed to register document", "file", file.Filename, "error", err)
		// Do not leave an orphaned file behind.
		os.Remove(storedPath)
		utils.RespondWithInternalError(c, "Gagal mendaftarkan dokumen.", nil)
		return
	}

	logger.Info("Document uploaded", "file", file.Filename, "id", record.ID.Hex())
	c.JSON(http.StatusOK, gin.H{
		"message":  "File berhasil diunggah dan menunggu indexing.",
		"document": record,
	})
}

// ListDocuments returns the registry, newest upload first.
func (h *AdminHandler) ListDocuments(c *gin.Context) {
	docs, err := h.registry.ListAll(c.Request.Context())
	if err != nil {
		utils.RespondWithInternalError(c, "Gagal membaca daftar dokumen.", nil)
		return
	}
	c.JSON(http.StatusOK, docs)
}

// DocumentStats returns status counts for the admin panel.
func (h *AdminHandler) DocumentStats(c *gin.Context) {
	stats, err := h.registry.Stats(c.Request.Context())
	if err != nil {
		utils.RespondWithInternalError(c, "Gagal menghitung statistik dokumen.", nil)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// DocumentsSize reports the total bytes stored on disk.
func (h *AdminHandler) DocumentsSize(c *gin.Context) {
	used, err := dirSize(h.cfg.FileStorageDir)
	if err != nil {
		utils.RespondWithInternalError(c, "Gagal menghitung ukuran penyimpanan.", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"totalBytes": used})
}

// StorageUsage reports usage against the corpus quota in KB.
func (h *AdminHandler) StorageUsage(c *gin.Context) {
	used, err := dirSize(h.cfg.FileStorageDir)
	if err != nil {
		utils.RespondWithInternalError(c, "Gagal menghitung ukuran penyimpanan.", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"usedKB": used / 1024,
		"maxKB":  h.cfg.StorageQuota / 1024,
	})
}

// DownloadDocument streams a stored file under its original name.
func (h *AdminHandler) DownloadDocument(c *gin.Context) {
	record, err := h.registry.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondWithNotFound(c, "Dokumen tidak ditemukan.")
		return
	}

	path := record.FilePath
	if path == "" {
		path = filepath.Join(h.cfg.FileStorageDir, record.FileName)
	}
	if _, err := os.Stat(path); err != nil {
		utils.RespondWithNotFound(c, "File fisik tidak ditemukan di server.")
		return
	}

	c.FileAttachment(path, record.OriginalName)
}

// DeleteDocument removes the file, its registry entry and the response cache.
// A missing physical file is not fatal, the registry entry still goes away.
func (h *AdminHandler) DeleteDocument(c *gin.Context) {
	record, err := h.registry.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondWithNotFound(c, "Dokumen tidak ditemukan.")
		return
	}

	path := record.FilePath
	if path == "" {
		path = filepath.Join(h.cfg.FileStorageDir, record.FileName)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to remove document file", "path", path, "error", err)
	}

	if err := h.registry.Delete(c.Request.Context(), c.Param("id")); err != nil {
		utils.RespondWithInternalError(c, "Gagal menghapus dokumen.", nil)
		return
	}

	// Answers may reference the removed document.
	if _, err := h.cache.Clear(c.Request.Context()); err != nil {
		logger.Warn("Failed to clear response cache after delete", "error", err)
	}

	logger.Info("Document deleted", "id", c.Param("id"), "file", record.OriginalName)
	c.JSON(http.StatusOK, gin.H{"message": "Dokumen berhasil dihapus."})
}

// RunIndexer enqueues a full rebuild.
func (h *AdminHandler) RunIndexer(c *gin.Context) {
	h.enqueueIndexRun(c, models.IndexModeRebuild)
}

// RunIncrementalIndexer enqueues a run over pending and retryable documents.
func (h *AdminHandler) RunIncrementalIndexer(c *gin.Context) {
	h.enqueueIndexRun(c, models.IndexModeIncremental)
}

func (h *AdminHandler) enqueueIndexRun(c *gin.Context, mode string) {
	ctx := c.Request.Context()

	current, err := h.progress.Get(ctx)
	if err != nil {
		utils.RespondWithInternalError(c, "Gagal membaca status indexing.", nil)
		return
	}
	if current.Running {
		utils.RespondWithConflict(c, "Proses indexing lain sedang berjalan.", gin.H{
			"run_id": current.RunID,
		})
		return
	}

	runID := uuid.NewString()
	task, err := queue.NewIndexRunTask(mode, runID)
	if err != nil {
		utils.RespondWithInternalError(c, "Gagal menyiapkan tugas indexing.", nil)
		return
	}
	if _, err := h.queue.EnqueueContext(ctx, task); err != nil {
		logger.Error("Failed to enqueue indexing run", "mode", mode, "error", err)
		utils.RespondWithInternalError(c, "Gagal mengantrekan proses indexing.", nil)
		return
	}

	// Publish an initial state so the progress endpoint reflects the queued
	// run before the worker picks it up.
	if err := h.progress.Set(ctx, models.IndexProgress{
		Percent: 0,
		Message: "Menunggu worker memulai indexing...",
		Running: true,
		RunID:   runID,
		Mode:    mode,
	}); err != nil {
		logger.Warn("Failed to publish initial index progress", "error", err)
	}

	logger.Info("Indexing run enqueued", "mode", mode, "run_id", runID)
	c.JSON(http.StatusAccepted, gin.H{
		"message": fmt.Sprintf("Proses indexing (%s) dimulai.", mode),
		"run_id":  runID,
	})
}

// IndexProgress returns the shared run state.
func (h *AdminHandler) IndexProgress(c *gin.Context) {
	progress, err := h.progress.Get(c.Request.Context())
	if err != nil {
		utils.RespondWithInternalError(c, "Gagal membaca status indexing.", nil)
		return
	}
	c.JSON(http.StatusOK, progress)
}

// ReloadIndex swaps in the vector index currently on disk.
func (h *AdminHandler) ReloadIndex(c *gin.Context) {
	if err := h.holder.Reload(); err != nil {
		logger.Error("Failed to reload vector index", "error", err)
		utils.RespondWithInternalError(c, "Gagal memuat ulang index.", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Index berhasil dimuat ulang.",
		"chunks":  h.holder.Get().Count(),
	})
}

// ListCache returns all cached answers, most recently used first.
func (h *AdminHandler) ListCache(c *gin.Context) {
	entries, err := h.cache.List(c.Request.Context())
	if err != nil {
		utils.RespondWithInternalError(c, "Gagal membaca cache.", nil)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// CacheStats summarizes cache usage.
func (h *AdminHandler) CacheStats(c *gin.Context) {
	stats, err := h.cache.Stats(c.Request.Context())
	if err != nil {
		utils.RespondWithInternalError(c, "Gagal menghitung statistik cache.", nil)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ClearCache drops every cached answer.
func (h *AdminHandler) ClearCache(c *gin.Context) {
	deleted, err := h.cache.Clear(c.Request.Context())
	if err != nil {
		utils.RespondWithInternalError(c, "Gagal mengosongkan cache.", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Cache berhasil dikosongkan.",
		"deleted": deleted,
	})
}

// DeleteCacheEntry removes one cached answer.
func (h *AdminHandler) DeleteCacheEntry(c *gin.Context) {
	if err := h.cache.Delete(c.Request.Context(), c.Param("id")); err != nil {
		utils.RespondWithNotFound(c, "Entri cache tidak ditemukan.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Entri cache berhasil dihapus."})
}

// UploadStatistics replaces the statistics table and reloads it in place.
func (h *AdminHandler) UploadStatistics(c *gin.Context) {
	file, err := c.FormFile("statistik_file")
	if err != nil {
		utils.RespondWithBadRequest(c, "Tidak ada file statistik yang diunggah.", nil)
		return
	}

	if err := os.MkdirAll(filepath.Dir(h.cfg.StatisticsFile), 0o755); err != nil {
		utils.RespondWithInternalError(c, "Gagal menyiapkan direktori penyimpanan.", nil)
		return
	}
	if err := c.SaveUploadedFile(file, h.cfg.StatisticsFile); err != nil {
		logger.Error("Failed to save statistics file", "error", err)
		utils.RespondWithInternalError(c, "Gagal menyimpan file statistik.", nil)
		return
	}

	if err := h.statistics.Load(); err != nil {
		logger.Error("Failed to load statistics table", "error", err)
		utils.RespondWithInternalError(c, "File statistik tersimpan tapi gagal dibaca.", nil)
		return
	}

	logger.Info("Statistics table replaced", "rows", len(h.statistics.Rows()))
	c.JSON(http.StatusOK, gin.H{
		"message": "Data statistik berhasil diperbarui.",
		"rows":    len(h.statistics.Rows()),
	})
}

// DownloadStatistics streams the current statistics table.
func (h *AdminHandler) DownloadStatistics(c *gin.Context) {
	if _, err := os.Stat(h.cfg.StatisticsFile); err != nil {
		utils.RespondWithNotFound(c, "File statistik belum diunggah.")
		return
	}
	c.FileAttachment(h.cfg.StatisticsFile, "statistik_desa_terbaru.xlsx")
}

// dirSize sums regular files directly under dir. The corpus directory is
// flat, so there is no need to walk.
func dirSize(dir string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	var total int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}
