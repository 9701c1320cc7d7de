package embcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/profdex/internal/db"
	"github.com/kailas-cloud/profdex/internal/domain"
)

type mockEmbedder struct {
	result      domain.EmbeddingResult
	err         error
	batchResult domain.BatchEmbeddingResult
	batchErr    error
	gate        chan struct{} // when set, Embed blocks until closed
	calls       atomic.Int32
	batchCalls  atomic.Int32
	batchInputs [][]string
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls.Add(1)
	if m.gate != nil {
		<-m.gate
	}
	return m.result, m.err
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchCalls.Add(1)
	m.batchInputs = append(m.batchInputs, texts)
	if m.batchErr != nil {
		return domain.BatchEmbeddingResult{}, m.batchErr
	}
	if m.batchResult.Embeddings != nil {
		return m.batchResult, nil
	}
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = m.result.Embedding
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: m.result.PromptTokens * len(texts),
		TotalTokens:  m.result.TotalTokens * len(texts),
	}, nil
}

// singleEmbedder has no batch endpoint.
type singleEmbedder struct {
	vec   []float32
	calls atomic.Int32
}

func (s *singleEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	s.calls.Add(1)
	return domain.EmbeddingResult{Embedding: s.vec, TotalTokens: 1}, nil
}

// blockingEmbedder holds every call until release is closed or the call's
// context ends. entered is closed on the first call.
type blockingEmbedder struct {
	vec     []float32
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	calls   atomic.Int32
}

func newBlockingEmbedder(vec []float32) *blockingEmbedder {
	return &blockingEmbedder{vec: vec, entered: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingEmbedder) Embed(ctx context.Context, _ string) (domain.EmbeddingResult, error) {
	b.calls.Add(1)
	b.once.Do(func() { close(b.entered) })
	select {
	case <-b.release:
		return domain.EmbeddingResult{Embedding: b.vec, TotalTokens: 3}, nil
	case <-ctx.Done():
		return domain.EmbeddingResult{}, ctx.Err()
	}
}

// mockKVStore implements the consumer interface for tests. Without overrides
// it behaves as an in-memory store.
type mockKVStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	getFn func(ctx context.Context, key string) ([]byte, error)
	setFn func(ctx context.Context, key string, value []byte) error
	sets  int
}

func (m *mockKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKVStore) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	m.sets++
	m.mu.Unlock()
	if m.setFn != nil {
		return m.setFn(ctx, key, value)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = value
	return nil
}

func testOptions(dim, local int) Options {
	return Options{KeyPrefix: "test:", Model: "m1", Dimensions: dim, LocalSize: local}
}

func newTestCachedEmbedder(t *testing.T, inner domain.Embedder, opts Options) (*CachedEmbedder, *mockKVStore) {
	t.Helper()
	ms := &mockKVStore{}
	ce := New(inner, ms, opts, zap.NewNop())
	return ce, ms
}
