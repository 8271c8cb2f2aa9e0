package similarity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIOracle scores semantic similarity as the cosine of embedding vectors
// from an OpenAI-compatible endpoint. Embeddings are memoised per text for
// the life of the oracle, so the question template is embedded once.
type OpenAIOracle struct {
	client     *openai.Client
	model      string
	maxElapsed time.Duration

	mu    sync.RWMutex
	cache map[string][]float32
}

// NewOpenAI returns an embedding-backed oracle. baseURL may be empty; a
// timeout of zero or less means DefaultTimeout.
func NewOpenAI(apiKey, baseURL, model string, timeout time.Duration) *OpenAIOracle {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIOracle{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		maxElapsed: timeout,
		cache:      make(map[string][]float32),
	}
}

func (o *OpenAIOracle) SemanticSimilarity(ctx context.Context, a, b string) (float64, error) {
	a, b = strings.ToLower(a), strings.ToLower(b)
	vecs, err := o.embed(ctx, a, b)
	if err != nil {
		return 0, err
	}
	return clamp(cosine(vecs[a], vecs[b])), nil
}

func (o *OpenAIOracle) LexicalRatio(a, b string) float64 {
	return LexicalRatio(a, b)
}

// embed returns vectors for texts, requesting only the ones not yet cached.
func (o *OpenAIOracle) embed(ctx context.Context, texts ...string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(texts))
	var missing []string

	o.mu.RLock()
	for _, t := range texts {
		if v, ok := o.cache[t]; ok {
			out[t] = v
		} else if !contains(missing, t) {
			missing = append(missing, t)
		}
	}
	o.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}

	var resp openai.EmbeddingResponse
	op := func() error {
		r, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: missing,
			Model: openai.EmbeddingModel(o.model),
		})
		if err != nil {
			return fmt.Errorf("create embeddings: %w", err)
		}
		resp = r
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = o.maxElapsed
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}

	if len(resp.Data) != len(missing) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(missing), len(resp.Data))
	}

	o.mu.Lock()
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(missing) {
			o.mu.Unlock()
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		t := missing[d.Index]
		o.cache[t] = d.Embedding
		out[t] = d.Embedding
	}
	o.mu.Unlock()

	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
