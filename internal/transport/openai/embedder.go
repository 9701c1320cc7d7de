package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/profdex/internal/domain"
	"github.com/kailas-cloud/profdex/internal/metrics"
)

// Embedder calls an OpenAI-compatible /embeddings endpoint.
type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	user       string
	provider   string
	logger     *zap.Logger
}

// Config holds the embedding provider settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int // 0 lets the model pick its native size
	User       string
	Provider   string // metrics label
	Logger     *zap.Logger
}

// NewEmbedder creates an embedding client.
func NewEmbedder(cfg *Config) *Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Embedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		user:       cfg.User,
		provider:   cfg.Provider,
		logger:     logger,
	}
}

// Embed embeds one text.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	vecs, usage, err := e.create(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    vecs[0],
		PromptTokens: usage.PromptTokens,
		TotalTokens:  usage.TotalTokens,
	}, nil
}

// BatchEmbed embeds texts in one upstream request, returning vectors in input order.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	vecs, usage, err := e.create(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   vecs,
		PromptTokens: usage.PromptTokens,
		TotalTokens:  usage.TotalTokens,
	}, nil
}

// create issues the request and places each returned vector at its Index.
// Billed tokens are also added to the context usage collector.
func (e *Embedder) create(ctx context.Context, texts []string) ([][]float32, openai.Usage, error) {
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
		Dimensions:     e.dimensions,
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		e.fail("api_error")
		return nil, openai.Usage{}, wrapAPIError("embedding", err, domain.ErrEmbeddingUnavailable)
	}

	if len(resp.Data) != len(texts) {
		e.fail("count_mismatch")
		return nil, openai.Usage{}, fmt.Errorf("embedding response has %d vectors for %d inputs: %w",
			len(resp.Data), len(texts), domain.ErrEmbeddingUnavailable)
	}

	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vecs) || vecs[d.Index] != nil {
			e.fail("bad_index")
			return nil, openai.Usage{}, fmt.Errorf("embedding response index %d invalid for %d inputs: %w",
				d.Index, len(texts), domain.ErrEmbeddingUnavailable)
		}
		if len(d.Embedding) == 0 {
			e.fail("empty_vector")
			return nil, openai.Usage{}, fmt.Errorf("empty vector at index %d: %w", d.Index, domain.ErrEmbeddingUnavailable)
		}
		vecs[d.Index] = d.Embedding
	}

	e.succeed(elapsed, resp.Usage)
	domain.UsageFromContext(ctx).AddTokens(resp.Usage.TotalTokens)
	e.logger.Debug("Embedding request completed",
		zap.Int("inputs", len(texts)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("elapsed", elapsed),
	)
	return vecs, resp.Usage, nil
}

func (e *Embedder) fail(reason string) {
	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, string(e.model), "error").Inc()
	metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, string(e.model), reason).Inc()
}

func (e *Embedder) succeed(elapsed time.Duration, usage openai.Usage) {
	model := string(e.model)
	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, model).Observe(elapsed.Seconds())
	if usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, model, "prompt").Add(float64(usage.PromptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, model, "total").Add(float64(usage.TotalTokens))
	}
}

// HealthCheck lists models, which costs no tokens.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
