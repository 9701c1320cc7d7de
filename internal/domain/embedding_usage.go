package domain

import (
	"context"
	"sync/atomic"
)

type embeddingUsageKey struct{}

// EmbeddingUsage collects upstream token usage for a single search or ingest call.
// The caller puts a pointer into the context; embedders add to it; the caller reads it
// for response diagnostics.
type EmbeddingUsage struct {
	totalTokens atomic.Int64
	used        atomic.Bool
}

// NewContextWithUsage returns a context with an embedded usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *EmbeddingUsage) {
	u := &EmbeddingUsage{}
	return context.WithValue(ctx, embeddingUsageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *EmbeddingUsage {
	u, _ := ctx.Value(embeddingUsageKey{}).(*EmbeddingUsage)
	return u
}

// AddTokens records consumed tokens. Safe on a nil receiver.
func (u *EmbeddingUsage) AddTokens(n int) {
	if u == nil {
		return
	}
	u.totalTokens.Add(int64(n))
	u.used.Store(true)
}

// TotalTokens returns the accumulated token count.
func (u *EmbeddingUsage) TotalTokens() int {
	if u == nil {
		return 0
	}
	return int(u.totalTokens.Load())
}

// Used reports whether any embedding was requested, even a cache hit with 0 tokens.
func (u *EmbeddingUsage) Used() bool {
	return u != nil && u.used.Load()
}
