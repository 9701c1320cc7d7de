package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/profdex/internal/domain"
	"github.com/kailas-cloud/profdex/internal/metrics"
)

// MaxUpstreamBatch caps the number of texts sent in one provider request.
const MaxUpstreamBatch = 256

// Budget is what MeteredEmbedder needs from a BudgetTracker.
type Budget interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	Remaining() (daily, monthly int64)
}

// MeteredEmbedder charges upstream embedding calls against a token budget.
// It sits below the cache, so cache hits are never checked or billed.
type MeteredEmbedder struct {
	inner    domain.Embedder
	budget   Budget
	provider string
	logger   *zap.Logger
}

// NewMeteredEmbedder wraps inner with budget enforcement.
func NewMeteredEmbedder(inner domain.Embedder, budget Budget, provider string, logger *zap.Logger) *MeteredEmbedder {
	return &MeteredEmbedder{inner: inner, budget: budget, provider: provider, logger: logger}
}

// Embed checks the budget, delegates and records the consumed tokens.
func (m *MeteredEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := m.check(ctx, 1); err != nil {
		return domain.EmbeddingResult{}, err
	}
	res, err := m.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("metered embed: %w", err)
	}
	m.record(res.TotalTokens)
	return res, nil
}

// BatchEmbed splits texts into provider-sized requests and re-checks the
// budget before each one. Tokens of completed requests are recorded even when
// a later request fails.
func (m *MeteredEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}
	for offset := 0; offset < len(texts); offset += MaxUpstreamBatch {
		chunk := texts[offset:min(offset+MaxUpstreamBatch, len(texts))]
		if err := m.check(ctx, len(chunk)); err != nil {
			return domain.BatchEmbeddingResult{}, err
		}

		res, err := m.batch(ctx, chunk)
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("metered batch embed at %d: %w", offset, err)
		}
		m.record(res.TotalTokens)

		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}
	return out, nil
}

// HealthCheck delegates to the inner embedder. The budget never fails a health check.
func (m *MeteredEmbedder) HealthCheck(ctx context.Context) error {
	return domain.CheckHealth(ctx, m.inner)
}

func (m *MeteredEmbedder) batch(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	return domain.EmbedTexts(ctx, m.inner, texts)
}

func (m *MeteredEmbedder) check(ctx context.Context, size int) error {
	if err := m.budget.Check(ctx); err != nil {
		m.logger.Warn("Embedding request rejected by token budget",
			zap.String("provider", m.provider),
			zap.Int("texts", size),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (m *MeteredEmbedder) record(tokens int) {
	if tokens <= 0 {
		return
	}
	m.budget.Record(int64(tokens))
	daily, monthly := m.budget.Remaining()
	metrics.EmbeddingBudgetTokensRemaining.WithLabelValues(m.provider, "daily").Set(float64(daily))
	metrics.EmbeddingBudgetTokensRemaining.WithLabelValues(m.provider, "monthly").Set(float64(monthly))
}
