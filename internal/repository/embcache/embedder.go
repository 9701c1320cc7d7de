// Package embcache is the embedding gateway cache: a content-addressed decorator
// in front of the upstream embedder with an in-process LRU and a durable store.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/profdex/internal/db"
	"github.com/kailas-cloud/profdex/internal/domain"
)

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Options configures the cache decorator.
type Options struct {
	// KeyPrefix is the storage key prefix, e.g. "profdex:".
	KeyPrefix string
	// Model scopes cache entries so a model change never serves stale vectors.
	Model string
	// Dimensions is the expected vector length; 0 disables the check.
	Dimensions int
	// LocalSize is the in-process LRU capacity; 0 disables the local tier.
	LocalSize int
	// CacheTotal is a counter vec with label "result" ("hit"/"miss").
	CacheTotal *prometheus.CounterVec
	// LoadTimeout bounds a shared upstream load. Default 30s.
	LoadTimeout time.Duration
}

const defaultLoadTimeout = 30 * time.Second

// CacheReadError reports a failed durable-cache lookup. It is logged and
// treated as a miss.
type CacheReadError struct {
	Key string
	Err error
}

func (e *CacheReadError) Error() string {
	return "embedding cache read " + e.Key + ": " + e.Err.Error()
}
func (e *CacheReadError) Unwrap() error { return e.Err }

// CacheWriteError reports a failed durable-cache write. It is logged and never
// fails the embedding call.
type CacheWriteError struct {
	Key string
	Err error
}

func (e *CacheWriteError) Error() string {
	return "embedding cache write " + e.Key + ": " + e.Err.Error()
}
func (e *CacheWriteError) Unwrap() error { return e.Err }

// CachedEmbedder caches embeddings keyed by a hash of the text.
type CachedEmbedder struct {
	inner       domain.Embedder
	store       store
	local       *lru.Cache[string, []float32]
	group       singleflight.Group
	keyPrefix   string
	dim         int
	loadTimeout time.Duration
	cacheTotal  *prometheus.CounterVec
	logger      *zap.Logger
}

// New creates a caching decorator.
func New(inner domain.Embedder, s store, opts Options, logger *zap.Logger) *CachedEmbedder {
	c := &CachedEmbedder{
		inner:      inner,
		store:      s,
		keyPrefix:  opts.KeyPrefix + "emb_cache:" + opts.Model + ":",
		dim:        opts.Dimensions,
		cacheTotal: opts.CacheTotal,
		logger:     logger,
	}
	c.loadTimeout = opts.LoadTimeout
	if c.loadTimeout <= 0 {
		c.loadTimeout = defaultLoadTimeout
	}
	if opts.LocalSize > 0 {
		// lru.New only fails for a non-positive size
		c.local, _ = lru.New[string, []float32](opts.LocalSize)
	}
	return c
}

// Embed returns a cached embedding or calls the inner embedder.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
// Concurrent misses for the same text share one upstream call.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if text == "" {
		return domain.EmbeddingResult{}, fmt.Errorf("empty text: %w", domain.ErrInvalidRequest)
	}
	key := c.cacheKey(text)

	if vec, ok := c.lookup(ctx, key); ok {
		c.incCache("hit")
		return domain.EmbeddingResult{Embedding: slices.Clone(vec)}, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// the load is shared, so it must outlive the caller that started it
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()
		return c.load(lctx, key, text)
	})

	select {
	case <-ctx.Done():
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", r.Err)
		}
		res := r.Val.(domain.EmbeddingResult)
		res.Embedding = slices.Clone(res.Embedding)
		return res, nil
	}
}

func (c *CachedEmbedder) load(ctx context.Context, key, text string) (domain.EmbeddingResult, error) {
	// a concurrent load may have finished between lookup and DoChan
	if vec, ok := c.lookup(ctx, key); ok {
		return domain.EmbeddingResult{Embedding: vec}, nil
	}
	c.incCache("miss")

	res, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, unavailable(err)
	}
	if err := domain.ValidateEmbedding(res.Embedding, c.dim); err != nil {
		return domain.EmbeddingResult{}, err
	}
	c.put(ctx, key, res.Embedding)
	return res, nil
}

// BatchEmbed returns one embedding per text in input order. Only distinct cache
// misses are sent upstream, in a single batch call when the inner embedder supports it.
func (c *CachedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	embeddings := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	missIdx := make(map[string][]int) // text -> positions
	var missTexts []string

	for i, text := range texts {
		if text == "" {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("empty text at %d: %w", i, domain.ErrInvalidRequest)
		}
		keys[i] = c.cacheKey(text)
		if vec, ok := c.lookup(ctx, keys[i]); ok {
			c.incCache("hit")
			embeddings[i] = slices.Clone(vec)
			continue
		}
		if _, seen := missIdx[text]; !seen {
			missTexts = append(missTexts, text)
			c.incCache("miss")
		}
		missIdx[text] = append(missIdx[text], i)
	}

	if len(missTexts) == 0 {
		return domain.BatchEmbeddingResult{Embeddings: embeddings}, nil
	}

	res, err := c.embedMisses(ctx, missTexts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
	}
	if len(res.Embeddings) != len(missTexts) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"batch embed returned %d vectors for %d texts: %w",
			len(res.Embeddings), len(missTexts), domain.ErrEmbeddingUnavailable,
		)
	}

	for j, text := range missTexts {
		vec := res.Embeddings[j]
		if err := domain.ValidateEmbedding(vec, c.dim); err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed [%d]: %w", j, err)
		}
		positions := missIdx[text]
		c.put(ctx, keys[positions[0]], vec)
		for _, i := range positions {
			embeddings[i] = slices.Clone(vec)
		}
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// HealthCheck delegates to the inner embedder when it supports health checks.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	return domain.CheckHealth(ctx, c.inner)
}

func (c *CachedEmbedder) embedMisses(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	res, err := domain.EmbedTexts(ctx, c.inner, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, unavailable(err)
	}
	return res, nil
}

// lookup checks the local tier, then the durable store. Dimension mismatches
// and read failures count as misses.
func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	if c.local != nil {
		if vec, ok := c.local.Get(key); ok {
			return vec, true
		}
	}

	vec, err := c.read(ctx, key)
	if err != nil {
		c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if vec == nil {
		return nil, false
	}
	if c.dim > 0 && len(vec) != c.dim {
		c.logger.Warn("Discarding cached embedding with wrong dimension",
			zap.String("key", key), zap.Int("got", len(vec)), zap.Int("want", c.dim))
		return nil, false
	}
	if c.local != nil {
		c.local.Add(key, vec)
	}
	return vec, true
}

// read returns (nil, nil) on a clean miss.
func (c *CachedEmbedder) read(ctx context.Context, key string) ([]float32, error) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, &CacheReadError{Key: key, Err: err}
	}
	if len(data) == 0 {
		return nil, nil
	}
	vec, err := bytesToVector(data)
	if err != nil {
		return nil, &CacheReadError{Key: key, Err: err}
	}
	return vec, nil
}

// put stores a vector in both tiers. The write is idempotent: a key always maps
// to the same vector, so concurrent writers never conflict.
func (c *CachedEmbedder) put(ctx context.Context, key string, vec []float32) {
	if c.local != nil {
		c.local.Add(key, slices.Clone(vec))
	}
	if err := c.write(ctx, key, vec); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func (c *CachedEmbedder) write(ctx context.Context, key string, vec []float32) error {
	if err := c.store.Set(ctx, key, vectorToCacheBytes(vec)); err != nil {
		return &CacheWriteError{Key: key, Err: err}
	}
	return nil
}

func (c *CachedEmbedder) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	return c.keyPrefix + ContentHash(text)
}

// ContentHash is the hex SHA-256 of text, the content address of its embedding.
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func unavailable(err error) error {
	if errors.Is(err, domain.ErrEmbeddingUnavailable) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
}

func vectorToCacheBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
