package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	QuestionsAnswered metric.Int64Counter
	AnswerDuration    metric.Float64Histogram
	CacheHits         metric.Int64Counter
	TokensUsed        metric.Int64Counter
	DocumentsIndexed  metric.Int64Counter
	IndexRunDuration  metric.Float64Histogram
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("village-chatbot-backend")

	questionsAnswered, err := meter.Int64Counter(
		"chatbot.questions.answered",
		metric.WithDescription("Total questions answered per category"),
	)
	if err != nil {
		return nil, err
	}

	answerDuration, err := meter.Float64Histogram(
		"chatbot.answer.duration",
		metric.WithDescription("End-to-end answer duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	cacheHits, err := meter.Int64Counter(
		"chatbot.cache.hits",
		metric.WithDescription("Response cache hits"),
	)
	if err != nil {
		return nil, err
	}

	tokensUsed, err := meter.Int64Counter(
		"gemini.tokens.used",
		metric.WithDescription("Total Gemini tokens used"),
	)
	if err != nil {
		return nil, err
	}

	documentsIndexed, err := meter.Int64Counter(
		"indexer.documents.processed",
		metric.WithDescription("Documents processed by indexing runs"),
	)
	if err != nil {
		return nil, err
	}

	indexRunDuration, err := meter.Float64Histogram(
		"indexer.run.duration",
		metric.WithDescription("Indexing run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		QuestionsAnswered: questionsAnswered,
		AnswerDuration:    answerDuration,
		CacheHits:         cacheHits,
		TokensUsed:        tokensUsed,
		DocumentsIndexed:  documentsIndexed,
		IndexRunDuration:  indexRunDuration,
	}, nil
}

// RecordAnswer records one answered question
func (m *Metrics) RecordAnswer(category string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("chatbot.category", category),
	}

	m.QuestionsAnswered.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.AnswerDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordCacheHit records a response cache hit
func (m *Metrics) RecordCacheHit() {
	m.CacheHits.Add(context.Background(), 1)
}

// RecordTokensUsed records Gemini token usage
func (m *Metrics) RecordTokensUsed(tokens int64, model string) {
	attrs := []attribute.KeyValue{
		attribute.String("gemini.model", model),
	}

	m.TokensUsed.Add(context.Background(), tokens, metric.WithAttributes(attrs...))
}

// RecordIndexRun records metrics for a completed indexing run
func (m *Metrics) RecordIndexRun(mode string, documents int64, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("indexer.mode", mode),
	}

	m.DocumentsIndexed.Add(context.Background(), documents, metric.WithAttributes(attrs...))
	m.IndexRunDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}
