package domain

import (
	"context"
	"fmt"
	"math"
)

// Embedder turns one text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes several texts in one upstream call.
// Implementations return exactly one embedding per input, in input order.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// HealthChecker verifies upstream provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult is one vector plus the tokens it was billed.
// Cache hits report zero tokens.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult is a set of vectors in input order plus aggregate usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

func (r *BatchEmbeddingResult) add(res EmbeddingResult) {
	r.Embeddings = append(r.Embeddings, res.Embedding)
	r.PromptTokens += res.PromptTokens
	r.TotalTokens += res.TotalTokens
}

// EmbedTexts embeds texts with e's batch endpoint when it has one, and one
// Embed call per text otherwise. The first per-text failure aborts the rest.
func EmbedTexts(ctx context.Context, e Embedder, texts []string) (BatchEmbeddingResult, error) {
	if be, ok := e.(BatchEmbedder); ok {
		return be.BatchEmbed(ctx, texts)
	}

	out := BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}
	for i, text := range texts {
		res, err := e.Embed(ctx, text)
		if err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("embed text %d of %d: %w", i+1, len(texts), err)
		}
		out.add(res)
	}
	return out, nil
}

// CheckHealth runs e's health check, treating embedders without one as healthy.
func CheckHealth(ctx context.Context, e Embedder) error {
	if hc, ok := e.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// ValidateEmbedding checks an upstream vector against the expected dimensionality.
// dim <= 0 disables the length check. NaN and Inf components are rejected.
func ValidateEmbedding(vec []float32, dim int) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty embedding: %w", ErrEmbeddingUnavailable)
	}
	if dim > 0 && len(vec) != dim {
		return fmt.Errorf("embedding has %d dimensions, expected %d: %w", len(vec), dim, ErrEmbeddingUnavailable)
	}
	for i, f := range vec {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return fmt.Errorf("embedding component %d is not a finite number: %w", i, ErrEmbeddingUnavailable)
		}
	}
	return nil
}

// InstructionEmbedder prefixes every text with a model instruction
// (e.g. "query: " for E5-style models) before embedding.
type InstructionEmbedder struct {
	inner       Embedder
	instruction string
}

// NewInstructionEmbedder wraps inner with the given prefix.
func NewInstructionEmbedder(inner Embedder, instruction string) *InstructionEmbedder {
	return &InstructionEmbedder{inner: inner, instruction: instruction}
}

// Embed prefixes text and delegates.
func (e *InstructionEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	res, err := e.inner.Embed(ctx, e.instruction+text)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("instruction embed: %w", err)
	}
	return res, nil
}

// BatchEmbed prefixes every text and delegates through EmbedTexts.
func (e *InstructionEmbedder) BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error) {
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = e.instruction + t
	}
	res, err := EmbedTexts(ctx, e.inner, prefixed)
	if err != nil {
		return BatchEmbeddingResult{}, fmt.Errorf("instruction batch embed: %w", err)
	}
	return res, nil
}

// HealthCheck delegates to the wrapped embedder.
func (e *InstructionEmbedder) HealthCheck(ctx context.Context) error {
	return CheckHealth(ctx, e.inner)
}
