package index

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/kailas-cloud/profdex/internal/db"
	"github.com/kailas-cloud/profdex/internal/domain"
	domrec "github.com/kailas-cloud/profdex/internal/domain/record"
)

const testDim = 4

// mockStore implements the consumer interface for tests. Hash calls fall
// back to an in-memory map when no override is set.
type mockStore struct {
	mu     sync.Mutex
	hashes map[string]map[string]string

	hsetFn        func(ctx context.Context, key string, fields map[string]string) error
	hsetMultiFn   func(ctx context.Context, items []db.HashSetItem) error
	delFn         func(ctx context.Context, keys ...string) error
	scanFn        func(ctx context.Context, pattern string, limit int) ([]string, error)
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	dropIndexFn   func(ctx context.Context, name string) error
	indexExistsFn func(ctx context.Context, name string) (bool, error)
	searchKNNFn   func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

func newMockStore() *mockStore {
	return &mockStore{hashes: map[string]map[string]string{}}
}

func (m *mockStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, key, fields)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[key] = fields
	return nil
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hsetMultiFn != nil {
		return m.hsetMultiFn(ctx, items)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		m.hashes[it.Key] = it.Fields
	}
	return nil
}

func (m *mockStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.hashes[key]; ok {
		return h, nil
	}
	return map[string]string{}, nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	if m.delFn != nil {
		return m.delFn(ctx, keys...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.hashes, k)
	}
	return nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string, limit int) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range m.hashes {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
			if limit > 0 && len(keys) >= limit {
				break
			}
		}
	}
	return keys, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) DropIndex(ctx context.Context, name string) error {
	if m.dropIndexFn != nil {
		return m.dropIndexFn(ctx, name)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) keyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hashes)
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := newMockStore()
	repo := New(ms, Config{
		KeyPrefix:     "profdex:",
		Name:          "profiles",
		Host:          "localhost:6379",
		TagFields:     []string{"location", "seniority"},
		NumericFields: []string{"years"},
	}, nil)
	return repo, ms
}

func testRecord(t *testing.T, ns, id, name string) domrec.Record {
	t.Helper()
	r, err := domrec.New(id, domain.MustNamespace(ns), domrec.Fields{
		Name:     name,
		Headline: "backend engineer",
		Location: "Berlin",
	}, map[string]any{"seniority": "senior", "years": float64(7)})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	return r
}
