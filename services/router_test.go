package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"village-chatbot-backend/internal/expr"
	"village-chatbot-backend/internal/vectorstore"
	"village-chatbot-backend/models"
)

type fakeGemini struct {
	category    string
	classifyErr error
	filter      string
	plannerErr  error
	answer      string
	completeErr error

	completePrompts []string
	completeModels  []string
	classifyCalls   int
}

func (f *fakeGemini) Complete(_ context.Context, model, prompt string, _ float32) (string, error) {
	f.completePrompts = append(f.completePrompts, prompt)
	f.completeModels = append(f.completeModels, model)
	if f.completeErr != nil {
		return "", f.completeErr
	}
	return f.answer, nil
}

func (f *fakeGemini) CompleteJSON(_ context.Context, _ string, prompt string, out any) error {
	if strings.Contains(prompt, "routing agent") {
		f.classifyCalls++
		if f.classifyErr != nil {
			return f.classifyErr
		}
		out.(*models.Classification).Category = f.category
		return nil
	}
	if f.plannerErr != nil {
		return f.plannerErr
	}
	out.(*filterPlan).Filter = f.filter
	return nil
}

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return f.vector, f.err
}

type fakeCache struct {
	entries map[string]string
	sources map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]string{}, sources: map[string]string{}}
}

func (f *fakeCache) Get(_ context.Context, question string) (*models.CacheEntry, bool, error) {
	answer, ok := f.entries[question]
	if !ok {
		return nil, false, nil
	}
	return &models.CacheEntry{Question: question, Answer: answer}, true, nil
}

func (f *fakeCache) Set(_ context.Context, question, answer, source string) error {
	f.entries[question] = answer
	f.sources[question] = source
	return nil
}

func buildTestIndex(t *testing.T, texts []string, vectors [][]float32) *vectorstore.Holder {
	t.Helper()
	dir := t.TempDir()

	if len(texts) > 0 {
		builder, err := vectorstore.OpenBuilder(dir, true)
		require.NoError(t, err)
		chunks := make([]models.TextChunk, len(texts))
		for i, text := range texts {
			chunks[i] = models.TextChunk{Text: text, Metadata: models.ChunkMetadata{Source: "doc.pdf"}}
		}
		require.NoError(t, builder.AddBatch(chunks, vectors))
		require.NoError(t, builder.Close())
	}

	holder := vectorstore.NewHolder(dir)
	require.NoError(t, holder.Reload())
	return holder
}

func newTestRouter(t *testing.T, gemini *fakeGemini, holder *vectorstore.Holder, statsPath string) (*RouterService, *fakeCache) {
	t.Helper()

	stats := NewStatisticsService(statsPath)
	require.NoError(t, stats.Load())

	cache := newFakeCache()
	router := NewRouterService(
		gemini,
		&fakeEmbedder{vector: []float32{1, 0}},
		holder,
		NewIntentService(),
		cache,
		NewDataQueryService(gemini, stats, "router-model"),
		nil,
		RouterConfig{RouterModel: "router-model", ChitchatModel: "chitchat-model", RetrievalTopK: 10},
	)
	return router, cache
}

func emptyStats(t *testing.T) string {
	t.Helper()
	return t.TempDir() + "/missing.xlsx"
}

func TestAskChitchat(t *testing.T) {
	gemini := &fakeGemini{category: models.CategoryChitchat, answer: "Halo! Saya LAAKON."}
	router, cache := newTestRouter(t, gemini, buildTestIndex(t, nil, nil), emptyStats(t))

	resp, err := router.Ask(context.Background(), "siapa namamu?", "")
	require.NoError(t, err)
	assert.Equal(t, "Halo! Saya LAAKON.", resp.Answer)
	assert.NotEmpty(t, resp.SessionID)

	// Chitchat used the lighter model and the answer was cached.
	require.NotEmpty(t, gemini.completeModels)
	assert.Equal(t, "chitchat-model", gemini.completeModels[0])
	assert.Equal(t, "Halo! Saya LAAKON.", cache.entries["siapa namamu?"])
	assert.Equal(t, models.CategoryChitchat, cache.sources["siapa namamu?"])
}

func TestAskEchoesSessionID(t *testing.T) {
	gemini := &fakeGemini{category: models.CategoryChitchat, answer: "Halo!"}
	router, _ := newTestRouter(t, gemini, buildTestIndex(t, nil, nil), emptyStats(t))

	resp, err := router.Ask(context.Background(), "halo kak", "session-123")
	require.NoError(t, err)
	assert.Equal(t, "session-123", resp.SessionID)
}

func TestAskCacheHitSkipsModels(t *testing.T) {
	gemini := &fakeGemini{category: models.CategoryChitchat, answer: "fresh"}
	router, cache := newTestRouter(t, gemini, buildTestIndex(t, nil, nil), emptyStats(t))
	cache.entries["berapa jumlah penduduk?"] = "cached answer"

	resp, err := router.Ask(context.Background(), "berapa jumlah penduduk?", "")
	require.NoError(t, err)
	assert.Equal(t, "cached answer", resp.Answer)
	assert.Zero(t, gemini.classifyCalls)
	assert.Empty(t, gemini.completePrompts)
}

func TestAskIntentHitSkipsEverything(t *testing.T) {
	gemini := &fakeGemini{category: models.CategoryChitchat, answer: "model answer"}
	router, cache := newTestRouter(t, gemini, buildTestIndex(t, nil, nil), emptyStats(t))

	intentsPath := writeIntentsFile(t, `[{"keywords": ["halo"], "response": "Halo! Ada yang bisa dibantu?"}]`)
	require.NoError(t, router.intents.Load(intentsPath))

	resp, err := router.Ask(context.Background(), "halo pak", "")
	require.NoError(t, err)
	assert.Equal(t, "Halo! Ada yang bisa dibantu?", resp.Answer)
	assert.Zero(t, gemini.classifyCalls)
	assert.Empty(t, cache.entries, "intent answers are not cached")
}

func TestAskClassificationFailureIsHardError(t *testing.T) {
	gemini := &fakeGemini{classifyErr: errors.New("model down")}
	router, _ := newTestRouter(t, gemini, buildTestIndex(t, nil, nil), emptyStats(t))

	_, err := router.Ask(context.Background(), "berapa jumlah penduduk?", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClassification)
}

func TestAskGeneralQueryUsesRetrievedContext(t *testing.T) {
	gemini := &fakeGemini{category: models.CategoryGeneralQuery, answer: "Jawaban dari dokumen."}
	holder := buildTestIndex(t,
		[]string{"peraturan desa tentang sampah", "jadwal posyandu"},
		[][]float32{{1, 0}, {0, 1}},
	)
	router, cache := newTestRouter(t, gemini, holder, emptyStats(t))

	resp, err := router.Ask(context.Background(), "apa isi peraturan sampah?", "")
	require.NoError(t, err)
	assert.Equal(t, "Jawaban dari dokumen.", resp.Answer)

	require.NotEmpty(t, gemini.completePrompts)
	assert.Contains(t, gemini.completePrompts[0], "peraturan desa tentang sampah")
	assert.Equal(t, models.CategoryGeneralQuery, cache.sources["apa isi peraturan sampah?"])
}

func TestAskGeneralQueryWithEmptyIndexIsNotCached(t *testing.T) {
	gemini := &fakeGemini{category: models.CategoryGeneralQuery, answer: "unused"}
	router, cache := newTestRouter(t, gemini, buildTestIndex(t, nil, nil), emptyStats(t))

	resp, err := router.Ask(context.Background(), "apa isi peraturan sampah?", "")
	require.NoError(t, err)
	assert.Equal(t, knowledgeBaseNotReadyAnswer, resp.Answer)
	assert.Empty(t, cache.entries)
}

func TestAskDataQueryFormatsMatches(t *testing.T) {
	statsPath := writeStatisticsFile(t, [][]any{
		{"Nama", "Jenis Kelamin"},
		{"Budi", "Laki - Laki"},
		{"Siti", "Perempuan"},
		{"Andi", "LAKI LAKI"},
	})

	gemini := &fakeGemini{
		category: models.CategoryDataQuery,
		filter:   `"Jenis Kelamin" contains "laki-laki"`,
		answer:   "Ada 2 penduduk laki-laki, yaitu Budi dan Andi.",
	}
	router, cache := newTestRouter(t, gemini, buildTestIndex(t, nil, nil), statsPath)

	resp, err := router.Ask(context.Background(), "berapa jumlah laki laki?", "")
	require.NoError(t, err)
	assert.Equal(t, "Ada 2 penduduk laki-laki, yaitu Budi dan Andi.", resp.Answer)

	// The formatter saw the analysis of the filtered rows.
	require.NotEmpty(t, gemini.completePrompts)
	assert.Contains(t, gemini.completePrompts[0], "Ditemukan 2 data yang cocok.")
	assert.Contains(t, gemini.completePrompts[0], "Budi, Andi")
	assert.Equal(t, models.CategoryDataQuery, cache.sources["berapa jumlah laki laki?"])
}

func TestAskDataQueryZeroMatchesFallsBackToDocuments(t *testing.T) {
	statsPath := writeStatisticsFile(t, [][]any{
		{"Nama", "Agama"},
		{"Budi", "Islam"},
	})

	gemini := &fakeGemini{
		category: models.CategoryDataQuery,
		filter:   `"Agama" contains "buddha"`,
		answer:   "Jawaban dari dokumen.",
	}
	holder := buildTestIndex(t, []string{"data keagamaan desa"}, [][]float32{{1, 0}})
	router, _ := newTestRouter(t, gemini, holder, statsPath)

	resp, err := router.Ask(context.Background(), "berapa penganut buddha?", "")
	require.NoError(t, err)
	assert.Equal(t, "Jawaban dari dokumen.", resp.Answer)
	require.NotEmpty(t, gemini.completePrompts)
	assert.Contains(t, gemini.completePrompts[0], "data keagamaan desa")
}

func TestAskDataQueryUnsafeFilterFailsRequest(t *testing.T) {
	statsPath := writeStatisticsFile(t, [][]any{
		{"Nama"},
		{"Budi"},
	})

	gemini := &fakeGemini{
		category: models.CategoryDataQuery,
		filter:   `require('fs').readFileSync('/etc/passwd')`,
		answer:   "unused",
	}
	// Empty index: a fallback here would produce a bogus "knowledge base
	// not ready" answer instead of surfacing the failure.
	router, cache := newTestRouter(t, gemini, buildTestIndex(t, nil, nil), statsPath)

	_, err := router.Ask(context.Background(), "data penduduk?", "")
	require.Error(t, err)

	var unsafeErr *expr.UnsafeExpressionError
	assert.ErrorAs(t, err, &unsafeErr)
	// The rejected filter never executed and nothing was answered or cached.
	assert.Empty(t, gemini.completePrompts)
	assert.Empty(t, cache.entries)
}

func TestAskDataQueryPlannerFailureFailsRequest(t *testing.T) {
	statsPath := writeStatisticsFile(t, [][]any{
		{"Nama"},
		{"Budi"},
	})

	gemini := &fakeGemini{
		category:   models.CategoryDataQuery,
		plannerErr: errors.New("model down"),
		answer:     "unused",
	}
	holder := buildTestIndex(t, []string{"profil desa"}, [][]float32{{1, 0}})
	router, cache := newTestRouter(t, gemini, holder, statsPath)

	_, err := router.Ask(context.Background(), "data penduduk?", "")
	require.Error(t, err)
	assert.Empty(t, gemini.completePrompts, "no document answer masks the failure")
	assert.Empty(t, cache.entries)
}
