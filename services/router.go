package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"village-chatbot-backend/internal/logger"
	"village-chatbot-backend/internal/telemetry"
	"village-chatbot-backend/internal/vectorstore"
	"village-chatbot-backend/models"
)

// QueryEmbedder embeds a question for retrieval.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// AnswerCache is the response cache as seen by the router.
type AnswerCache interface {
	Get(ctx context.Context, question string) (*models.CacheEntry, bool, error)
	Set(ctx context.Context, question, answer, source string) error
}

// RouterConfig carries the model names and retrieval depth for the pipeline.
type RouterConfig struct {
	RouterModel   string
	ChitchatModel string
	RetrievalTopK int
}

// RouterService answers questions. The pipeline is: intents, then the
// response cache, then model classification into data_query,
// general_query or chitchat, then the matching answer path.
type RouterService struct {
	gemini    CompletionClient
	embedder  QueryEmbedder
	index     *vectorstore.Holder
	intents   *IntentService
	cache     AnswerCache
	dataQuery *DataQueryService
	metrics   *telemetry.Metrics
	cfg       RouterConfig
}

func NewRouterService(
	gemini CompletionClient,
	embedder QueryEmbedder,
	index *vectorstore.Holder,
	intents *IntentService,
	cache AnswerCache,
	dataQuery *DataQueryService,
	metrics *telemetry.Metrics,
	cfg RouterConfig,
) *RouterService {
	return &RouterService{
		gemini:    gemini,
		embedder:  embedder,
		index:     index,
		intents:   intents,
		cache:     cache,
		dataQuery: dataQuery,
		metrics:   metrics,
		cfg:       cfg,
	}
}

const routerPromptTemplate = `You are a routing agent for a village chatbot. Classify the user's question into one of the following categories:

1. "data_query" -> Questions about structured data like gender, age, education, religion, number of people, or citizenship. These usually relate to statistics stored in a spreadsheet.
Examples:
- Berapa jumlah penduduk laki-laki?
- Berapa warga yang beragama Islam?
- Siapa saja yang sedang menempuh pendidikan SMA?

2. "general_query" -> Questions about documents like regulations, procedures, policies, or written rules in uploaded files.
Examples:
- Apa isi peraturan desa tentang pengelolaan sampah?
- Peraturan desa terbaru
- Apakah ada dokumen tentang kebersihan lingkungan?

3. "chitchat" -> Greetings or casual questions not related to data or documents.
Examples:
- Hai, siapa namamu?
- Kamu robot ya?

User question: %q

Respond ONLY with a JSON like: {"category": "data_query"}`

const knowledgeBaseNotReadyAnswer = "Maaf, database pengetahuan dokumen sedang tidak siap."

// Ask runs the full answer pipeline for one question. A caller-supplied
// session id is echoed back; otherwise a fresh one is generated.
func (s *RouterService) Ask(ctx context.Context, question, sessionID string) (*models.AskResponse, error) {
	start := time.Now()
	question = strings.TrimSpace(question)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	respond := func(answer string) *models.AskResponse {
		return &models.AskResponse{Answer: answer, SessionID: sessionID}
	}

	// Stage 0: static intents, no model involved.
	if answer, ok := s.intents.Match(question); ok {
		s.recordAnswer("intent", start)
		return respond(answer), nil
	}

	// Stage 1: response cache.
	if entry, hit, err := s.cache.Get(ctx, question); err != nil {
		logger.Warn("Cache lookup failed", "error", err)
	} else if hit {
		logger.Info("Answer served from cache")
		if s.metrics != nil {
			s.metrics.RecordCacheHit()
		}
		return respond(entry.Answer), nil
	}

	// Stage 2: classification. No default category: an unclassifiable
	// question is a hard error rather than a silently wrong answer path.
	var classification models.Classification
	if err := s.gemini.CompleteJSON(ctx, s.cfg.RouterModel, fmt.Sprintf(routerPromptTemplate, question), &classification); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassification, err)
	}
	category := classification.Category
	logger.Info("Question classified", "category", category)

	// Stage 3: the matching answer path.
	var answer string
	cacheable := true
	var err error

	switch category {
	case models.CategoryDataQuery:
		answer, cacheable, err = s.answerDataQuery(ctx, question)
	case models.CategoryGeneralQuery:
		answer, cacheable, err = s.answerFromDocuments(ctx, question)
	default:
		category = models.CategoryChitchat
		answer, err = s.answerChitchat(ctx, question)
	}
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := s.cache.Set(ctx, question, answer, category); err != nil {
			logger.Warn("Failed to cache answer", "error", err)
		}
	}

	s.recordAnswer(category, start)
	return respond(answer), nil
}

func (s *RouterService) answerDataQuery(ctx context.Context, question string) (string, bool, error) {
	// Execution failures (no table, rejected filter, planner down) fail the
	// request outright. Falling back here would dress up a malfunction as
	// a document answer; the fallback is reserved for an empty result set.
	result, err := s.dataQuery.Execute(ctx, question)
	if err != nil {
		return "", false, fmt.Errorf("data query failed: %w", err)
	}

	// Zero matches usually means the question was about documents after
	// all, so retry against the knowledge base when one exists.
	if result.Count == 0 && s.index.Get().Ready() {
		logger.Info("Data query matched nothing, falling back to documents")
		return s.answerFromDocuments(ctx, question)
	}

	prompt := fmt.Sprintf(
		`You are LAAKON, a friendly and helpful village assistant from Alas Kokon Village. The user asked: %q. The analysis result is: %q. Formulate a friendly answer in Indonesian without mentioning the analysis step.`,
		question, s.dataQuery.Summary(result),
	)
	answer, err := s.gemini.Complete(ctx, s.cfg.RouterModel, prompt, 0.5)
	if err != nil {
		return "", false, err
	}
	return strings.TrimSpace(answer), true, nil
}

func (s *RouterService) answerFromDocuments(ctx context.Context, question string) (string, bool, error) {
	idx := s.index.Get()
	if !idx.Ready() {
		// Not cached: the knowledge base may be ready a moment later.
		return knowledgeBaseNotReadyAnswer, false, nil
	}

	vector, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return "", false, fmt.Errorf("failed to embed question: %w", err)
	}

	results := idx.Search(vector, s.cfg.RetrievalTopK)
	contexts := make([]string, 0, len(results))
	for _, r := range results {
		contexts = append(contexts, r.Chunk.Text)
	}

	prompt := fmt.Sprintf(
		"You are LAAKON, a friendly and helpful village assistant from Alas Kokon Village. Answer the user's question: %q based ONLY on the following context:\n\n%s\n\nIf the context is not relevant, say you don't have the information. Answer in Indonesian.",
		question, strings.Join(contexts, "\n\n---\n\n"),
	)
	answer, err := s.gemini.Complete(ctx, s.cfg.RouterModel, prompt, 0.5)
	if err != nil {
		return "", false, err
	}
	return strings.TrimSpace(answer), true, nil
}

func (s *RouterService) answerChitchat(ctx context.Context, question string) (string, error) {
	prompt := fmt.Sprintf(
		"You are LAAKON, a friendly and helpful village assistant from Alas Kokon Village. The user says: %q. Respond briefly and politely in Indonesian.",
		question,
	)
	answer, err := s.gemini.Complete(ctx, s.cfg.ChitchatModel, prompt, 0.7)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

func (s *RouterService) recordAnswer(category string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordAnswer(category, time.Since(start).Seconds())
	}
}
