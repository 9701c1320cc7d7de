package retrieve

import (
	"context"
	"testing"

	"github.com/kailas-cloud/profdex/internal/domain"
	"github.com/kailas-cloud/profdex/internal/domain/record"
	"github.com/kailas-cloud/profdex/internal/domain/search/filter"
	"github.com/kailas-cloud/profdex/internal/domain/search/result"
)

type mockEmbedder struct {
	err  error
	text string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.text = text
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0, 0}, TotalTokens: 3}, nil
}

type mockIndex struct {
	cands []result.Candidate
	err   error

	ns   domain.Namespace
	topK int
}

func (m *mockIndex) Query(
	_ context.Context, ns domain.Namespace, _ []float32, topK int, _ filter.Expression,
) ([]result.Candidate, error) {
	m.ns, m.topK = ns, topK
	return m.cands, m.err
}

type mockScanner struct {
	recs  []record.Record
	err   error
	calls int
	limit int
}

func (m *mockScanner) ScanNamespace(_ context.Context, ns domain.Namespace, limit int) ([]record.Record, error) {
	m.calls++
	m.limit = limit
	if m.err != nil {
		return nil, m.err
	}
	var out []record.Record
	for _, r := range m.recs {
		if r.Namespace() == ns {
			out = append(out, r)
		}
	}
	return out, nil
}

func rec(t *testing.T, ns, id, headline, skills string, attrs map[string]any) record.Record {
	t.Helper()
	r, err := record.New(id, domain.MustNamespace(ns), record.Fields{
		Name:     "Person " + id,
		Headline: headline,
		Skills:   skills,
	}, attrs)
	if err != nil {
		t.Fatal(err)
	}
	return r
}
