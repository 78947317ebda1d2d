package ai

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// EmbeddingProvider wraps the Google embeddings model. The underlying client
// is created lazily on first use so the server can boot without an API key
// reaching the network, and a semaphore caps concurrent embedding calls.
type EmbeddingProvider struct {
	apiKey    string
	modelName string

	mu     sync.Mutex
	client *genai.Client

	sem chan struct{}
}

const maxConcurrentEmbeds = 5

func NewEmbeddingProvider(apiKey, modelName string) *EmbeddingProvider {
	return &EmbeddingProvider{
		apiKey:    apiKey,
		modelName: modelName,
		sem:       make(chan struct{}, maxConcurrentEmbeds),
	}
}

func (ep *EmbeddingProvider) getClient(ctx context.Context) (*genai.Client, error) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if ep.client != nil {
		return ep.client, nil
	}
	if ep.apiKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(ep.apiKey))
	if err != nil {
		return nil, err
	}
	ep.client = client
	return client, nil
}

// EmbedDocuments embeds a batch of chunk texts in a single API call.
// The returned slice is index-aligned with texts.
func (ep *EmbeddingProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	client, err := ep.getClient(ctx)
	if err != nil {
		return nil, err
	}

	select {
	case ep.sem <- struct{}{}:
		defer func() { <-ep.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	model := client.EmbeddingModel(ep.modelName)
	batch := model.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	resp, err := model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d texts", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("no embedding returned for text %d", i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// EmbedQuery embeds a single question for retrieval.
func (ep *EmbeddingProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	client, err := ep.getClient(ctx)
	if err != nil {
		return nil, err
	}

	select {
	case ep.sem <- struct{}{}:
		defer func() { <-ep.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	model := client.EmbeddingModel(ep.modelName)
	resp, err := model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	return resp.Embedding.Values, nil
}

// Close releases the underlying client if one was created.
func (ep *EmbeddingProvider) Close() error {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.client != nil {
		err := ep.client.Close()
		ep.client = nil
		return err
	}
	return nil
}
