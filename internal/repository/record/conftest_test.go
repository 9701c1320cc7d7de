package record

import (
	"context"
	"strings"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hashes         map[string]map[string]string
	scanFn         func(ctx context.Context, pattern string, limit int) ([]string, error)
	hgetAllMultiFn func(ctx context.Context, keys []string) ([]map[string]string, error)

	scanPattern string
	scanLimit   int
	fetchCalls  int
}

func (m *mockStore) Scan(ctx context.Context, pattern string, limit int) ([]string, error) {
	m.scanPattern, m.scanLimit = pattern, limit
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern, limit)
	}
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range m.hashes {
		if strings.HasPrefix(k, prefix) && len(keys) < limit {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *mockStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	m.fetchCalls++
	if m.hgetAllMultiFn != nil {
		return m.hgetAllMultiFn(ctx, keys)
	}
	out := make([]map[string]string, len(keys))
	for i, k := range keys {
		out[i] = m.hashes[k]
	}
	return out, nil
}
